// Package policy holds the versioned security policy document together with
// its validation, merge, persistence, caching and the Manager that serves the
// active policy to the request pipeline and admin endpoints.
package policy

import (
	"fmt"
	"strings"
	"time"
)

// Environment selects the default baseline and the store key of a policy.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// ParseEnvironment normalizes an environment name.
func ParseEnvironment(raw string) (Environment, error) {
	switch Environment(strings.ToLower(strings.TrimSpace(raw))) {
	case EnvDevelopment, "dev", "":
		return EnvDevelopment, nil
	case EnvProduction, "prod":
		return EnvProduction, nil
	default:
		return "", fmt.Errorf("unknown environment %q", raw)
	}
}

func (e Environment) valid() bool {
	return e == EnvDevelopment || e == EnvProduction
}

// SecurityPolicy is the full security configuration document.
type SecurityPolicy struct {
	Auth           AuthConfig           `json:"auth"`
	FileUpload     FileUploadConfig     `json:"fileUpload"`
	RateLimit      RateLimitConfig      `json:"rateLimit"`
	Headers        HeadersConfig        `json:"headers"`
	DataProtection DataProtectionConfig `json:"dataProtection"`
	Monitoring     MonitoringConfig     `json:"monitoring"`
	Version        string               `json:"version"`
	LastUpdated    time.Time            `json:"lastUpdated"`
	Environment    Environment          `json:"environment"`
}

type AuthConfig struct {
	JWTExpirationSeconds          int      `json:"jwtExpirationSeconds"`
	RefreshTokenExpirationSeconds int      `json:"refreshTokenExpirationSeconds"`
	MaxLoginAttempts              int      `json:"maxLoginAttempts"`
	LockoutDurationMinutes        int      `json:"lockoutDurationMinutes"`
	RequireMFA                    bool     `json:"requireMfa"`
	PasswordMinLength             int      `json:"passwordMinLength"`
	PasswordRequireSpecialChars   bool     `json:"passwordRequireSpecialChars"`
	AllowedOrigins                []string `json:"allowedOrigins"`
}

type FileUploadConfig struct {
	MaxFileSize               int64    `json:"maxFileSize"`
	MaxFilesPerHour           int      `json:"maxFilesPerHour"`
	MaxTotalSizePerHour       int64    `json:"maxTotalSizePerHour"`
	AllowedMimeTypes          []string `json:"allowedMimeTypes"`
	AllowedExtensions         []string `json:"allowedExtensions"`
	EnableMagicByteValidation bool     `json:"enableMagicByteValidation"`
	EnableContentScanning     bool     `json:"enableContentScanning"`
	QuarantineHighRiskFiles   bool     `json:"quarantineHighRiskFiles"`
	VirusScanTimeout          int      `json:"virusScanTimeout"` // milliseconds
}

type RateLimitConfig struct {
	Enabled                bool `json:"enabled"`
	WindowMs               int  `json:"windowMs"`
	MaxRequests            int  `json:"maxRequests"`
	SkipSuccessfulRequests bool `json:"skipSuccessfulRequests"`
	SkipFailedRequests     bool `json:"skipFailedRequests"`
	StandardHeaders        bool `json:"standardHeaders"`
	LegacyHeaders          bool `json:"legacyHeaders"`
}

// Window returns the rate limit window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMs) * time.Millisecond
}

type HeadersConfig struct {
	ContentSecurityPolicy   string `json:"contentSecurityPolicy"`
	StrictTransportSecurity string `json:"strictTransportSecurity"`
	XFrameOptions           string `json:"xFrameOptions"`
	XContentTypeOptions     string `json:"xContentTypeOptions"`
	ReferrerPolicy          string `json:"referrerPolicy"`
	PermissionsPolicy       string `json:"permissionsPolicy"`
}

type DataProtectionConfig struct {
	EnableEncryptionAtRest    bool `json:"enableEncryptionAtRest"`
	EnableEncryptionInTransit bool `json:"enableEncryptionInTransit"`
	PIIDetectionEnabled       bool `json:"piiDetectionEnabled"`
	DataRetentionDays         int  `json:"dataRetentionDays"`
	EnableAuditLogging        bool `json:"enableAuditLogging"`
	EnableDataLineageTracking bool `json:"enableDataLineageTracking"`
}

type MonitoringConfig struct {
	EnableSecurityMetrics  bool            `json:"enableSecurityMetrics"`
	EnableThreatDetection  bool            `json:"enableThreatDetection"`
	EnableAnomalyDetection bool            `json:"enableAnomalyDetection"`
	AlertThresholds        AlertThresholds `json:"alertThresholds"`
	MetricsRetentionDays   int             `json:"metricsRetentionDays"`
}

type AlertThresholds struct {
	FailedLoginsPerHour        int `json:"failedLoginsPerHour"`
	BlockedUploadsPerHour      int `json:"blockedUploadsPerHour"`
	RateLimitViolationsPerHour int `json:"rateLimitViolationsPerHour"`
	SecurityEventsPerMinute    int `json:"securityEventsPerMinute"`
}

// Clone returns a deep copy; slices are never shared between copies.
func (p SecurityPolicy) Clone() SecurityPolicy {
	out := p
	out.Auth.AllowedOrigins = cloneStrings(p.Auth.AllowedOrigins)
	out.FileUpload.AllowedMimeTypes = cloneStrings(p.FileUpload.AllowedMimeTypes)
	out.FileUpload.AllowedExtensions = cloneStrings(p.FileUpload.AllowedExtensions)
	return out
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
