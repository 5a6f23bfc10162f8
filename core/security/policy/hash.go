package policy

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// volatileFields never participate in the config hash.
var volatileFields = []string{"version", "lastUpdated"}

// GenerateConfigHash fingerprints a policy over sorted-key JSON with version and
// lastUpdated removed. Two policies that differ only in those fields hash equal.
func GenerateConfigHash(p SecurityPolicy) (string, error) {
	doc, err := toDocument(p)
	if err != nil {
		return "", err
	}
	for _, field := range volatileFields {
		delete(doc, field)
	}
	encoded, err := canonicalJSON(doc)
	if err != nil {
		return "", err
	}
	return sha256Sum(encoded), nil
}

// Comparison is the result of CompareConfigs.
type Comparison struct {
	Identical   bool     `json:"identical"`
	Differences []string `json:"differences"`
}

// CompareConfigs lists the section.field paths whose serialized values differ.
// Top-level scalars such as version are reported by their bare name.
func CompareConfigs(a, b SecurityPolicy) (Comparison, error) {
	left, err := toDocument(a)
	if err != nil {
		return Comparison{}, err
	}
	right, err := toDocument(b)
	if err != nil {
		return Comparison{}, err
	}
	diffs := []string{}
	for _, key := range unionKeys(left, right) {
		lm, lok := left[key].(map[string]any)
		rm, rok := right[key].(map[string]any)
		if lok && rok {
			for _, field := range unionKeys(lm, rm) {
				if !reflect.DeepEqual(lm[field], rm[field]) {
					diffs = append(diffs, key+"."+field)
				}
			}
			continue
		}
		if !reflect.DeepEqual(left[key], right[key]) {
			diffs = append(diffs, key)
		}
	}
	return Comparison{Identical: len(diffs) == 0, Differences: diffs}, nil
}

func toDocument(p SecurityPolicy) (map[string]any, error) {
	data, err := json.Marshal(p.Clone())
	if err != nil {
		return nil, fmt.Errorf("encode policy: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	return doc, nil
}

func unionKeys(a, b map[string]any) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func canonicalJSON(value any) ([]byte, error) {
	var buf bytes.Buffer
	if err := appendCanonical(&buf, value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func appendCanonical(buf *bytes.Buffer, value any) error {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case json.Number:
		buf.WriteString(v.String())
		return nil
	case map[string]any:
		return appendCanonicalMap(buf, v)
	case []any:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := appendCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode canonical json: %w", err)
		}
		buf.Write(encoded)
		return nil
	}
}

func appendCanonicalMap(buf *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, _ := json.Marshal(k)
		buf.Write(keyBytes)
		buf.WriteByte(':')
		if err := appendCanonical(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func sha256Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
