package policy

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }
func boolPtr(v bool) *bool    { return &v }

func TestDefaultPolicyEnvironmentDeltas(t *testing.T) {
	prod := DefaultPolicy(EnvProduction)
	if !prod.Auth.RequireMFA || prod.RateLimit.MaxRequests != 50 {
		t.Fatalf("unexpected production defaults: mfa=%v max=%d", prod.Auth.RequireMFA, prod.RateLimit.MaxRequests)
	}
	if prod.Auth.JWTExpirationSeconds != 300 {
		t.Fatalf("expected production jwt expiry 300, got %d", prod.Auth.JWTExpirationSeconds)
	}
	dev := DefaultPolicy(EnvDevelopment)
	if dev.Auth.RequireMFA || dev.RateLimit.MaxRequests != 1000 {
		t.Fatalf("unexpected development defaults: mfa=%v max=%d", dev.Auth.RequireMFA, dev.RateLimit.MaxRequests)
	}
	for _, p := range []SecurityPolicy{prod, dev} {
		if res := ValidateConfig(p); !res.Valid {
			t.Fatalf("default %s invalid: %v", p.Environment, res.Errors)
		}
	}
}

func TestParseEnvironment(t *testing.T) {
	cases := map[string]Environment{"": EnvDevelopment, "dev": EnvDevelopment, "Production": EnvProduction, " prod ": EnvProduction}
	for in, want := range cases {
		got, err := ParseEnvironment(in)
		if err != nil || got != want {
			t.Fatalf("parse %q: got %q err %v", in, got, err)
		}
	}
	if _, err := ParseEnvironment("staging"); err == nil {
		t.Fatalf("expected error for unknown environment")
	}
}

func TestValidateConfigJWTFloor(t *testing.T) {
	p := DefaultPolicy(EnvDevelopment)
	p.Auth.JWTExpirationSeconds = 60
	res := ValidateConfig(p)
	if res.Valid {
		t.Fatalf("expected invalid policy")
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "5 minutes") || !strings.Contains(res.Errors[0], "300") {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
}

func TestValidateConfigReportsEveryViolation(t *testing.T) {
	p := DefaultPolicy(EnvProduction)
	p.Auth.MaxLoginAttempts = 0
	p.Auth.PasswordMinLength = 4
	p.FileUpload.MaxFileSize = 10
	p.FileUpload.MaxFilesPerHour = 0
	p.FileUpload.AllowedMimeTypes = nil
	p.RateLimit.WindowMs = 10
	p.RateLimit.MaxRequests = 0
	p.DataProtection.DataRetentionDays = 0
	p.Monitoring.MetricsRetentionDays = 0
	p.Environment = "staging"

	res := ValidateConfig(p)
	if res.Valid {
		t.Fatalf("expected invalid policy")
	}
	for _, field := range []string{
		"auth.maxLoginAttempts", "auth.passwordMinLength", "fileUpload.maxFileSize",
		"fileUpload.maxFilesPerHour", "fileUpload.allowedMimeTypes", "rateLimit.windowMs",
		"rateLimit.maxRequests", "dataProtection.dataRetentionDays", "monitoring.metricsRetentionDays",
		"environment",
	} {
		if !containsPrefix(res.Errors, field) {
			t.Fatalf("expected violation for %s in %v", field, res.Errors)
		}
	}
}

func TestValidateConfigRateLimitDisabled(t *testing.T) {
	p := DefaultPolicy(EnvDevelopment)
	p.RateLimit.Enabled = false
	p.RateLimit.WindowMs = 0
	p.RateLimit.MaxRequests = 0
	if res := ValidateConfig(p); !res.Valid {
		t.Fatalf("disabled rate limit should skip window checks: %v", res.Errors)
	}
}

func TestMergeConfigsPerField(t *testing.T) {
	base := DefaultPolicy(EnvDevelopment)
	base.FileUpload.AllowedMimeTypes = []string{"text/csv"}
	merged := MergeConfigs(base, PolicyPatch{FileUpload: &FileUploadPatch{MaxFileSize: int64Ptr(2048)}})

	if merged.FileUpload.MaxFileSize != 2048 {
		t.Fatalf("expected max size 2048, got %d", merged.FileUpload.MaxFileSize)
	}
	if !reflect.DeepEqual(merged.FileUpload.AllowedMimeTypes, []string{"text/csv"}) {
		t.Fatalf("expected mime types untouched, got %v", merged.FileUpload.AllowedMimeTypes)
	}
	if merged.FileUpload.MaxFilesPerHour != base.FileUpload.MaxFilesPerHour {
		t.Fatalf("sibling field changed")
	}
}

func TestMergeConfigsEmptyPatchIsIdentity(t *testing.T) {
	base := DefaultPolicy(EnvProduction)
	base.Version = "v1"
	base.LastUpdated = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	merged := MergeConfigs(base, PolicyPatch{})
	if !reflect.DeepEqual(base, merged) {
		t.Fatalf("empty patch changed the policy")
	}
}

func TestMergeConfigsDoesNotAliasSlices(t *testing.T) {
	base := DefaultPolicy(EnvDevelopment)
	origins := []string{"https://a.example"}
	merged := MergeConfigs(base, PolicyPatch{Auth: &AuthPatch{AllowedOrigins: origins}})
	origins[0] = "https://mutated.example"
	if merged.Auth.AllowedOrigins[0] != "https://a.example" {
		t.Fatalf("merged policy aliases patch slice")
	}
	merged.FileUpload.AllowedExtensions[0] = ".exe"
	if base.FileUpload.AllowedExtensions[0] == ".exe" {
		t.Fatalf("merged policy aliases base slice")
	}
}

func TestMergeConfigsNestedThresholds(t *testing.T) {
	base := DefaultPolicy(EnvDevelopment)
	merged := MergeConfigs(base, PolicyPatch{Monitoring: &MonitoringPatch{
		AlertThresholds: &AlertThresholdsPatch{FailedLoginsPerHour: intPtr(3)},
	}})
	if merged.Monitoring.AlertThresholds.FailedLoginsPerHour != 3 {
		t.Fatalf("threshold not merged")
	}
	if merged.Monitoring.AlertThresholds.BlockedUploadsPerHour != base.Monitoring.AlertThresholds.BlockedUploadsPerHour {
		t.Fatalf("sibling threshold changed")
	}
}

func TestPatchFromPolicyRoundTrip(t *testing.T) {
	src := DefaultPolicy(EnvProduction)
	src.RateLimit.Enabled = false
	src.Version = "ignored"
	patch := PatchFromPolicy(src)
	if patch.Version != nil || patch.LastUpdated != nil || patch.Environment != nil {
		t.Fatalf("volatile fields should not be carried")
	}
	base := DefaultPolicy(EnvDevelopment)
	merged := MergeConfigs(base, patch)
	if merged.RateLimit.Enabled {
		t.Fatalf("false boolean lost in patch")
	}
	if merged.RateLimit.MaxRequests != 50 || !merged.Auth.RequireMFA {
		t.Fatalf("patch did not carry section values")
	}
	if merged.Environment != EnvDevelopment {
		t.Fatalf("environment should be untouched")
	}
}

func TestGenerateConfigHashExcludesVolatileFields(t *testing.T) {
	a := DefaultPolicy(EnvDevelopment)
	a.Version = "v1"
	a.LastUpdated = time.Unix(10, 0)
	b := a.Clone()
	b.Version = "v2"
	b.LastUpdated = time.Unix(20, 0)

	ha, err := GenerateConfigHash(a)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	hb, _ := GenerateConfigHash(b)
	if ha != hb {
		t.Fatalf("volatile fields changed the hash")
	}
	again, _ := GenerateConfigHash(a)
	if again != ha {
		t.Fatalf("hash not deterministic")
	}
	b.RateLimit.MaxRequests++
	if hc, _ := GenerateConfigHash(b); hc == ha {
		t.Fatalf("content change did not change the hash")
	}
	b = a.Clone()
	b.Environment = EnvProduction
	if hc, _ := GenerateConfigHash(b); hc == ha {
		t.Fatalf("environment should be hashed")
	}
}

func TestCompareConfigs(t *testing.T) {
	a := DefaultPolicy(EnvDevelopment)
	same, err := CompareConfigs(a, a.Clone())
	if err != nil || !same.Identical || len(same.Differences) != 0 {
		t.Fatalf("expected identical: %+v %v", same, err)
	}
	b := a.Clone()
	b.Auth.RequireMFA = true
	b.FileUpload.AllowedExtensions = []string{".csv"}
	b.Version = "v9"
	diff, _ := CompareConfigs(a, b)
	want := []string{"auth.requireMfa", "fileUpload.allowedExtensions", "version"}
	if diff.Identical || !reflect.DeepEqual(diff.Differences, want) {
		t.Fatalf("unexpected differences: %v", diff.Differences)
	}
}

func TestSummarizeLevels(t *testing.T) {
	prod := DefaultPolicy(EnvProduction)
	if s := Summarize(prod); s.SecurityLevel != LevelHigh || len(s.EnabledFeatures) != 6 {
		t.Fatalf("expected high with six features, got %+v", s)
	}

	dev := DefaultPolicy(EnvDevelopment)
	s := Summarize(dev)
	if s.SecurityLevel != LevelMedium {
		t.Fatalf("expected medium without mfa, got %s", s.SecurityLevel)
	}
	for _, f := range s.EnabledFeatures {
		if f == FeatureMFA {
			t.Fatalf("mfa should not be listed for development")
		}
	}

	low := dev.Clone()
	low.FileUpload.EnableContentScanning = false
	low.RateLimit.Enabled = false
	low.DataProtection.EnableEncryptionAtRest = false
	low.Monitoring.EnableThreatDetection = false
	if s := Summarize(low); s.SecurityLevel != LevelLow || len(s.EnabledFeatures) != 1 {
		t.Fatalf("expected low, got %+v", s)
	}

	highMinus := prod.Clone()
	highMinus.Monitoring.EnableAnomalyDetection = false
	if s := Summarize(highMinus); s.SecurityLevel != LevelHigh {
		t.Fatalf("anomaly detection is not a high-value flag")
	}
}

func TestParseOverrides(t *testing.T) {
	patch, err := ParseOverrides([]byte("rateLimit:\n  maxRequests: 25\nauth:\n  allowedOrigins:\n    - https://ops.example\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	merged := MergeConfigs(DefaultPolicy(EnvProduction), *patch)
	if merged.RateLimit.MaxRequests != 25 || merged.Auth.AllowedOrigins[0] != "https://ops.example" {
		t.Fatalf("overrides not applied: %+v", merged.RateLimit)
	}
	if _, err := ParseOverrides([]byte("rateLimit:\n  bogus: 1\n")); err == nil {
		t.Fatalf("expected unknown field error")
	}
	if patch, err := ParseOverrides(nil); err != nil || patch != nil {
		t.Fatalf("expected empty overrides, got %+v %v", patch, err)
	}
}

func TestLoadOverridesMissingFile(t *testing.T) {
	patch, err := LoadOverrides(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil || patch != nil {
		t.Fatalf("expected nil overrides, got %+v %v", patch, err)
	}
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	if err := os.WriteFile(path, []byte("fileUpload:\n  maxFilesPerHour: 7\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	patch, err = LoadOverrides(path)
	if err != nil || patch == nil || patch.FileUpload == nil || *patch.FileUpload.MaxFilesPerHour != 7 {
		t.Fatalf("unexpected overrides %+v %v", patch, err)
	}
}

func containsPrefix(items []string, prefix string) bool {
	for _, item := range items {
		if strings.HasPrefix(item, prefix) {
			return true
		}
	}
	return false
}
