package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cutty/cutty/core/infra/logging"
	"github.com/cutty/cutty/core/security/policy"
)

const maxConfigBody = 1 << 20

func (s *server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAuthenticated(w, r); !ok {
		return
	}
	p, err := s.policies.GetConfig(r.Context())
	if err != nil {
		s.writePolicyError(w, err)
		return
	}
	if hash, err := policy.GenerateConfigHash(p); err == nil {
		etag := `"` + hash + `"`
		w.Header().Set("ETag", etag)
		if match := strings.TrimSpace(r.Header.Get("If-None-Match")); match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	patch, ok := decodePatch(w, r)
	if !ok {
		return
	}
	updated, err := s.policies.UpdateConfig(r.Context(), patch)
	if err != nil {
		s.writePolicyError(w, err)
		return
	}
	logging.Info(component, "security configuration updated", "by", admin.UserID, "version", updated.Version)
	writeJSON(w, http.StatusOK, updated)
}

// handleValidateConfig reports whether the posted partial policy, merged
// onto the active one, would be accepted. Nothing is persisted.
func (s *server) handleValidateConfig(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAuthenticated(w, r); !ok {
		return
	}
	patch, ok := decodePatch(w, r)
	if !ok {
		return
	}
	current, err := s.policies.GetConfig(r.Context())
	if err != nil {
		s.writePolicyError(w, err)
		return
	}
	candidate := policy.MergeConfigs(current, patch)
	writeJSON(w, http.StatusOK, s.policies.ValidateConfig(candidate))
}

func (s *server) handleResetConfig(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	reset, err := s.policies.ResetToDefaults(r.Context())
	if err != nil {
		s.writePolicyError(w, err)
		return
	}
	logging.Info(component, "security configuration reset to defaults", "by", admin.UserID, "version", reset.Version)
	writeJSON(w, http.StatusOK, reset)
}

func (s *server) handleConfigSummary(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAuthenticated(w, r); !ok {
		return
	}
	summary, err := s.policies.Summary(r.Context())
	if err != nil {
		s.writePolicyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *server) handleConfigSection(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAuthenticated(w, r); !ok {
		return
	}
	var (
		section any
		err     error
	)
	ctx := r.Context()
	switch r.PathValue("section") {
	case "auth":
		section, err = s.policies.Auth(ctx)
	case "fileUpload":
		section, err = s.policies.FileUpload(ctx)
	case "rateLimit":
		section, err = s.policies.RateLimit(ctx)
	case "headers":
		section, err = s.policies.Headers(ctx)
	case "dataProtection":
		section, err = s.policies.DataProtection(ctx)
	case "monitoring":
		section, err = s.policies.Monitoring(ctx)
	default:
		writeError(w, http.StatusNotFound, "Unknown configuration section")
		return
	}
	if err != nil {
		s.writePolicyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, section)
}

func decodePatch(w http.ResponseWriter, r *http.Request) (policy.PolicyPatch, bool) {
	var patch policy.PolicyPatch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConfigBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return policy.PolicyPatch{}, false
	}
	return patch, true
}
