package policy

import (
	"encoding/json"
	"time"
)

// PolicyPatch is a partial SecurityPolicy. Nil pointers and nil slices mean
// "leave unchanged"; a non-nil empty slice replaces the list with an empty one.
type PolicyPatch struct {
	Auth           *AuthPatch           `json:"auth,omitempty" yaml:"auth,omitempty"`
	FileUpload     *FileUploadPatch     `json:"fileUpload,omitempty" yaml:"fileUpload,omitempty"`
	RateLimit      *RateLimitPatch      `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`
	Headers        *HeadersPatch        `json:"headers,omitempty" yaml:"headers,omitempty"`
	DataProtection *DataProtectionPatch `json:"dataProtection,omitempty" yaml:"dataProtection,omitempty"`
	Monitoring     *MonitoringPatch     `json:"monitoring,omitempty" yaml:"monitoring,omitempty"`
	Version        *string              `json:"version,omitempty" yaml:"-"`
	LastUpdated    *time.Time           `json:"lastUpdated,omitempty" yaml:"-"`
	Environment    *Environment         `json:"environment,omitempty" yaml:"-"`
}

type AuthPatch struct {
	JWTExpirationSeconds          *int     `json:"jwtExpirationSeconds,omitempty" yaml:"jwtExpirationSeconds,omitempty"`
	RefreshTokenExpirationSeconds *int     `json:"refreshTokenExpirationSeconds,omitempty" yaml:"refreshTokenExpirationSeconds,omitempty"`
	MaxLoginAttempts              *int     `json:"maxLoginAttempts,omitempty" yaml:"maxLoginAttempts,omitempty"`
	LockoutDurationMinutes        *int     `json:"lockoutDurationMinutes,omitempty" yaml:"lockoutDurationMinutes,omitempty"`
	RequireMFA                    *bool    `json:"requireMfa,omitempty" yaml:"requireMfa,omitempty"`
	PasswordMinLength             *int     `json:"passwordMinLength,omitempty" yaml:"passwordMinLength,omitempty"`
	PasswordRequireSpecialChars   *bool    `json:"passwordRequireSpecialChars,omitempty" yaml:"passwordRequireSpecialChars,omitempty"`
	AllowedOrigins                []string `json:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty"`
}

type FileUploadPatch struct {
	MaxFileSize               *int64   `json:"maxFileSize,omitempty" yaml:"maxFileSize,omitempty"`
	MaxFilesPerHour           *int     `json:"maxFilesPerHour,omitempty" yaml:"maxFilesPerHour,omitempty"`
	MaxTotalSizePerHour       *int64   `json:"maxTotalSizePerHour,omitempty" yaml:"maxTotalSizePerHour,omitempty"`
	AllowedMimeTypes          []string `json:"allowedMimeTypes,omitempty" yaml:"allowedMimeTypes,omitempty"`
	AllowedExtensions         []string `json:"allowedExtensions,omitempty" yaml:"allowedExtensions,omitempty"`
	EnableMagicByteValidation *bool    `json:"enableMagicByteValidation,omitempty" yaml:"enableMagicByteValidation,omitempty"`
	EnableContentScanning     *bool    `json:"enableContentScanning,omitempty" yaml:"enableContentScanning,omitempty"`
	QuarantineHighRiskFiles   *bool    `json:"quarantineHighRiskFiles,omitempty" yaml:"quarantineHighRiskFiles,omitempty"`
	VirusScanTimeout          *int     `json:"virusScanTimeout,omitempty" yaml:"virusScanTimeout,omitempty"`
}

type RateLimitPatch struct {
	Enabled                *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	WindowMs               *int  `json:"windowMs,omitempty" yaml:"windowMs,omitempty"`
	MaxRequests            *int  `json:"maxRequests,omitempty" yaml:"maxRequests,omitempty"`
	SkipSuccessfulRequests *bool `json:"skipSuccessfulRequests,omitempty" yaml:"skipSuccessfulRequests,omitempty"`
	SkipFailedRequests     *bool `json:"skipFailedRequests,omitempty" yaml:"skipFailedRequests,omitempty"`
	StandardHeaders        *bool `json:"standardHeaders,omitempty" yaml:"standardHeaders,omitempty"`
	LegacyHeaders          *bool `json:"legacyHeaders,omitempty" yaml:"legacyHeaders,omitempty"`
}

type HeadersPatch struct {
	ContentSecurityPolicy   *string `json:"contentSecurityPolicy,omitempty" yaml:"contentSecurityPolicy,omitempty"`
	StrictTransportSecurity *string `json:"strictTransportSecurity,omitempty" yaml:"strictTransportSecurity,omitempty"`
	XFrameOptions           *string `json:"xFrameOptions,omitempty" yaml:"xFrameOptions,omitempty"`
	XContentTypeOptions     *string `json:"xContentTypeOptions,omitempty" yaml:"xContentTypeOptions,omitempty"`
	ReferrerPolicy          *string `json:"referrerPolicy,omitempty" yaml:"referrerPolicy,omitempty"`
	PermissionsPolicy       *string `json:"permissionsPolicy,omitempty" yaml:"permissionsPolicy,omitempty"`
}

type DataProtectionPatch struct {
	EnableEncryptionAtRest    *bool `json:"enableEncryptionAtRest,omitempty" yaml:"enableEncryptionAtRest,omitempty"`
	EnableEncryptionInTransit *bool `json:"enableEncryptionInTransit,omitempty" yaml:"enableEncryptionInTransit,omitempty"`
	PIIDetectionEnabled       *bool `json:"piiDetectionEnabled,omitempty" yaml:"piiDetectionEnabled,omitempty"`
	DataRetentionDays         *int  `json:"dataRetentionDays,omitempty" yaml:"dataRetentionDays,omitempty"`
	EnableAuditLogging        *bool `json:"enableAuditLogging,omitempty" yaml:"enableAuditLogging,omitempty"`
	EnableDataLineageTracking *bool `json:"enableDataLineageTracking,omitempty" yaml:"enableDataLineageTracking,omitempty"`
}

type MonitoringPatch struct {
	EnableSecurityMetrics  *bool                 `json:"enableSecurityMetrics,omitempty" yaml:"enableSecurityMetrics,omitempty"`
	EnableThreatDetection  *bool                 `json:"enableThreatDetection,omitempty" yaml:"enableThreatDetection,omitempty"`
	EnableAnomalyDetection *bool                 `json:"enableAnomalyDetection,omitempty" yaml:"enableAnomalyDetection,omitempty"`
	AlertThresholds        *AlertThresholdsPatch `json:"alertThresholds,omitempty" yaml:"alertThresholds,omitempty"`
	MetricsRetentionDays   *int                  `json:"metricsRetentionDays,omitempty" yaml:"metricsRetentionDays,omitempty"`
}

type AlertThresholdsPatch struct {
	FailedLoginsPerHour        *int `json:"failedLoginsPerHour,omitempty" yaml:"failedLoginsPerHour,omitempty"`
	BlockedUploadsPerHour      *int `json:"blockedUploadsPerHour,omitempty" yaml:"blockedUploadsPerHour,omitempty"`
	RateLimitViolationsPerHour *int `json:"rateLimitViolationsPerHour,omitempty" yaml:"rateLimitViolationsPerHour,omitempty"`
	SecurityEventsPerMinute    *int `json:"securityEventsPerMinute,omitempty" yaml:"securityEventsPerMinute,omitempty"`
}

// MergeConfigs applies override onto base section by section, field by field.
// Version, LastUpdated and Environment change only when the patch sets them.
func MergeConfigs(base SecurityPolicy, override PolicyPatch) SecurityPolicy {
	out := base.Clone()
	out.Auth = mergeAuth(out.Auth, override.Auth)
	out.FileUpload = mergeFileUpload(out.FileUpload, override.FileUpload)
	out.RateLimit = mergeRateLimit(out.RateLimit, override.RateLimit)
	out.Headers = mergeHeaders(out.Headers, override.Headers)
	out.DataProtection = mergeDataProtection(out.DataProtection, override.DataProtection)
	out.Monitoring = mergeMonitoring(out.Monitoring, override.Monitoring)
	setIf(&out.Version, override.Version)
	setIf(&out.LastUpdated, override.LastUpdated)
	setIf(&out.Environment, override.Environment)
	return out
}

// PatchFromPolicy builds a patch that sets every section field of p. The
// volatile fields (version, lastUpdated, environment) are left unset.
func PatchFromPolicy(p SecurityPolicy) PolicyPatch {
	var patch PolicyPatch
	data, err := json.Marshal(p.Clone())
	if err != nil {
		return patch
	}
	if err := json.Unmarshal(data, &patch); err != nil {
		return PolicyPatch{}
	}
	patch.Version = nil
	patch.LastUpdated = nil
	patch.Environment = nil
	return patch
}

func mergeAuth(dst AuthConfig, p *AuthPatch) AuthConfig {
	if p == nil {
		return dst
	}
	setIf(&dst.JWTExpirationSeconds, p.JWTExpirationSeconds)
	setIf(&dst.RefreshTokenExpirationSeconds, p.RefreshTokenExpirationSeconds)
	setIf(&dst.MaxLoginAttempts, p.MaxLoginAttempts)
	setIf(&dst.LockoutDurationMinutes, p.LockoutDurationMinutes)
	setIf(&dst.RequireMFA, p.RequireMFA)
	setIf(&dst.PasswordMinLength, p.PasswordMinLength)
	setIf(&dst.PasswordRequireSpecialChars, p.PasswordRequireSpecialChars)
	setSliceIf(&dst.AllowedOrigins, p.AllowedOrigins)
	return dst
}

func mergeFileUpload(dst FileUploadConfig, p *FileUploadPatch) FileUploadConfig {
	if p == nil {
		return dst
	}
	setIf(&dst.MaxFileSize, p.MaxFileSize)
	setIf(&dst.MaxFilesPerHour, p.MaxFilesPerHour)
	setIf(&dst.MaxTotalSizePerHour, p.MaxTotalSizePerHour)
	setSliceIf(&dst.AllowedMimeTypes, p.AllowedMimeTypes)
	setSliceIf(&dst.AllowedExtensions, p.AllowedExtensions)
	setIf(&dst.EnableMagicByteValidation, p.EnableMagicByteValidation)
	setIf(&dst.EnableContentScanning, p.EnableContentScanning)
	setIf(&dst.QuarantineHighRiskFiles, p.QuarantineHighRiskFiles)
	setIf(&dst.VirusScanTimeout, p.VirusScanTimeout)
	return dst
}

func mergeRateLimit(dst RateLimitConfig, p *RateLimitPatch) RateLimitConfig {
	if p == nil {
		return dst
	}
	setIf(&dst.Enabled, p.Enabled)
	setIf(&dst.WindowMs, p.WindowMs)
	setIf(&dst.MaxRequests, p.MaxRequests)
	setIf(&dst.SkipSuccessfulRequests, p.SkipSuccessfulRequests)
	setIf(&dst.SkipFailedRequests, p.SkipFailedRequests)
	setIf(&dst.StandardHeaders, p.StandardHeaders)
	setIf(&dst.LegacyHeaders, p.LegacyHeaders)
	return dst
}

func mergeHeaders(dst HeadersConfig, p *HeadersPatch) HeadersConfig {
	if p == nil {
		return dst
	}
	setIf(&dst.ContentSecurityPolicy, p.ContentSecurityPolicy)
	setIf(&dst.StrictTransportSecurity, p.StrictTransportSecurity)
	setIf(&dst.XFrameOptions, p.XFrameOptions)
	setIf(&dst.XContentTypeOptions, p.XContentTypeOptions)
	setIf(&dst.ReferrerPolicy, p.ReferrerPolicy)
	setIf(&dst.PermissionsPolicy, p.PermissionsPolicy)
	return dst
}

func mergeDataProtection(dst DataProtectionConfig, p *DataProtectionPatch) DataProtectionConfig {
	if p == nil {
		return dst
	}
	setIf(&dst.EnableEncryptionAtRest, p.EnableEncryptionAtRest)
	setIf(&dst.EnableEncryptionInTransit, p.EnableEncryptionInTransit)
	setIf(&dst.PIIDetectionEnabled, p.PIIDetectionEnabled)
	setIf(&dst.DataRetentionDays, p.DataRetentionDays)
	setIf(&dst.EnableAuditLogging, p.EnableAuditLogging)
	setIf(&dst.EnableDataLineageTracking, p.EnableDataLineageTracking)
	return dst
}

func mergeMonitoring(dst MonitoringConfig, p *MonitoringPatch) MonitoringConfig {
	if p == nil {
		return dst
	}
	setIf(&dst.EnableSecurityMetrics, p.EnableSecurityMetrics)
	setIf(&dst.EnableThreatDetection, p.EnableThreatDetection)
	setIf(&dst.EnableAnomalyDetection, p.EnableAnomalyDetection)
	setIf(&dst.MetricsRetentionDays, p.MetricsRetentionDays)
	if t := p.AlertThresholds; t != nil {
		setIf(&dst.AlertThresholds.FailedLoginsPerHour, t.FailedLoginsPerHour)
		setIf(&dst.AlertThresholds.BlockedUploadsPerHour, t.BlockedUploadsPerHour)
		setIf(&dst.AlertThresholds.RateLimitViolationsPerHour, t.RateLimitViolationsPerHour)
		setIf(&dst.AlertThresholds.SecurityEventsPerMinute, t.SecurityEventsPerMinute)
	}
	return dst
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setSliceIf(dst *[]string, src []string) {
	if src != nil {
		*dst = cloneStrings(src)
	}
}
