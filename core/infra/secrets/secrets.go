// Package secrets masks credentials before they leave the process in logs,
// security events or API responses.
package secrets

import (
	"encoding/json"
	"regexp"
	"strings"
)

const (
	secretPrefix = "secret://"
	bearerPrefix = "bearer "
	redacted     = "<redacted>"
)

var (
	sensitiveKeys = []string{"password", "passwd", "secret", "token", "authorization", "apikey", "api_key", "cookie", "credential"}
	jwtPattern    = regexp.MustCompile(`eyJ[A-Za-z0-9_-]{4,}\.[A-Za-z0-9_-]{4,}\.[A-Za-z0-9_-]*`)
)

// ContainsSecrets reports whether value carries anything Redact would mask.
func ContainsSecrets(value any) bool {
	_, found := redact("", value, false)
	return found
}

// Redact returns a copy of value with credentials replaced by "<redacted>":
// values under credential-like keys, secret:// references, bearer
// credentials and JWTs embedded in free text.
func Redact(value any) (any, bool) {
	return redact("", value, true)
}

// RedactDetails is Redact specialised to event detail maps. The input map is
// never modified.
func RedactDetails(details map[string]any) (map[string]any, bool) {
	if len(details) == 0 {
		return details, false
	}
	out, changed := redact("", details, true)
	if !changed {
		return details, false
	}
	return out.(map[string]any), true
}

// RedactJSON redacts credentials inside a JSON payload.
func RedactJSON(data []byte) ([]byte, bool, error) {
	if len(data) == 0 {
		return data, false, nil
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return data, false, err
	}
	out, changed := Redact(payload)
	if !changed {
		return data, false, nil
	}
	encoded, err := json.Marshal(out)
	return encoded, true, err
}

func sensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, k := range sensitiveKeys {
		if strings.Contains(key, k) {
			return true
		}
	}
	return false
}

func redactString(key, v string, replace bool) (string, bool) {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return v, false
	}
	if sensitiveKey(key) || strings.HasPrefix(trimmed, secretPrefix) || strings.HasPrefix(strings.ToLower(trimmed), bearerPrefix) {
		if replace {
			return redacted, true
		}
		return v, true
	}
	if jwtPattern.MatchString(v) {
		if replace {
			return jwtPattern.ReplaceAllString(v, redacted), true
		}
		return v, true
	}
	return v, false
}

func redact(key string, value any, replace bool) (any, bool) {
	switch v := value.(type) {
	case nil:
		return v, false
	case string:
		return redactString(key, v, replace)
	case map[string]any:
		changed := false
		out := make(map[string]any, len(v))
		for k, child := range v {
			red, childChanged := redact(k, child, replace)
			if childChanged {
				changed = true
			}
			out[k] = red
		}
		return out, changed
	case map[string]string:
		changed := false
		out := make(map[string]any, len(v))
		for k, child := range v {
			red, childChanged := redact(k, child, replace)
			if childChanged {
				changed = true
			}
			out[k] = red
		}
		return out, changed
	case []any:
		changed := false
		out := make([]any, len(v))
		for i, child := range v {
			red, childChanged := redact(key, child, replace)
			if childChanged {
				changed = true
			}
			out[i] = red
		}
		return out, changed
	case []string:
		changed := false
		out := make([]any, len(v))
		for i, child := range v {
			red, childChanged := redact(key, child, replace)
			if childChanged {
				changed = true
			}
			out[i] = red
		}
		if !changed {
			return v, false
		}
		return out, true
	default:
		return v, false
	}
}
