package policy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfigUnavailable means no policy could be produced and fallback is disabled.
	ErrConfigUnavailable = errors.New("security configuration unavailable")
	// ErrDynamicUpdatesDisabled means the Manager is read-only.
	ErrDynamicUpdatesDisabled = errors.New("dynamic configuration updates are disabled")
	// ErrPolicyNotFound means the store holds no usable document for the environment.
	ErrPolicyNotFound = errors.New("security policy not found")
)

// ValidationResult is the structured outcome of ValidateConfig.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ValidationError rejects a candidate policy; the current policy is left unchanged.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid security policy: " + strings.Join(e.Errors, "; ")
}

// ValidateConfig checks every policy invariant and reports all violations.
func ValidateConfig(p SecurityPolicy) ValidationResult {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if p.Auth.JWTExpirationSeconds < 300 {
		add("auth.jwtExpirationSeconds must be at least 5 minutes (300 seconds), got %d", p.Auth.JWTExpirationSeconds)
	}
	if p.Auth.MaxLoginAttempts < 1 {
		add("auth.maxLoginAttempts must be at least 1, got %d", p.Auth.MaxLoginAttempts)
	}
	if p.Auth.PasswordMinLength < 8 {
		add("auth.passwordMinLength must be at least 8 characters, got %d", p.Auth.PasswordMinLength)
	}

	if p.FileUpload.MaxFileSize < 1024 {
		add("fileUpload.maxFileSize must be at least 1KB (1024 bytes), got %d", p.FileUpload.MaxFileSize)
	}
	if p.FileUpload.MaxFilesPerHour < 1 {
		add("fileUpload.maxFilesPerHour must be at least 1, got %d", p.FileUpload.MaxFilesPerHour)
	}
	if len(p.FileUpload.AllowedMimeTypes) == 0 {
		add("fileUpload.allowedMimeTypes must contain at least one MIME type")
	}

	if p.RateLimit.Enabled {
		if p.RateLimit.WindowMs < 1000 {
			add("rateLimit.windowMs must be at least 1 second (1000 ms) when rate limiting is enabled, got %d", p.RateLimit.WindowMs)
		}
		if p.RateLimit.MaxRequests < 1 {
			add("rateLimit.maxRequests must be at least 1 when rate limiting is enabled, got %d", p.RateLimit.MaxRequests)
		}
	}

	if p.DataProtection.DataRetentionDays < 1 {
		add("dataProtection.dataRetentionDays must be at least 1 day, got %d", p.DataProtection.DataRetentionDays)
	}
	if p.Monitoring.MetricsRetentionDays < 1 {
		add("monitoring.metricsRetentionDays must be at least 1 day, got %d", p.Monitoring.MetricsRetentionDays)
	}
	if !p.Environment.valid() {
		add("environment must be %q or %q, got %q", EnvDevelopment, EnvProduction, p.Environment)
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: nonNil(errs)}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
