package policy

import "time"

const (
	kib = 1024
	mib = 1024 * kib
)

// DefaultPolicy returns the hardcoded baseline for an environment. Version and
// LastUpdated are left empty; the Manager stamps them.
func DefaultPolicy(env Environment) SecurityPolicy {
	p := baselinePolicy()
	p.Environment = env
	switch env {
	case EnvProduction:
		p.Auth.RequireMFA = true
		p.Auth.JWTExpirationSeconds = 300
		p.Auth.AllowedOrigins = []string{"https://cutty.app"}
		p.RateLimit.MaxRequests = 50
	default:
		p.Environment = EnvDevelopment
		p.Auth.RequireMFA = false
		p.Auth.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
		p.RateLimit.MaxRequests = 1000
	}
	return p
}

func baselinePolicy() SecurityPolicy {
	return SecurityPolicy{
		Auth: AuthConfig{
			JWTExpirationSeconds:          600,
			RefreshTokenExpirationSeconds: int((7 * 24 * time.Hour).Seconds()),
			MaxLoginAttempts:              5,
			LockoutDurationMinutes:        15,
			RequireMFA:                    false,
			PasswordMinLength:             12,
			PasswordRequireSpecialChars:   true,
			AllowedOrigins:                []string{},
		},
		FileUpload: FileUploadConfig{
			MaxFileSize:         50 * mib,
			MaxFilesPerHour:     100,
			MaxTotalSizePerHour: 500 * mib,
			AllowedMimeTypes: []string{
				"text/csv",
				"application/csv",
				"text/plain",
				"application/vnd.ms-excel",
			},
			AllowedExtensions:         []string{".csv", ".tsv", ".txt"},
			EnableMagicByteValidation: true,
			EnableContentScanning:     true,
			QuarantineHighRiskFiles:   true,
			VirusScanTimeout:          30000,
		},
		RateLimit: RateLimitConfig{
			Enabled:                true,
			WindowMs:               60000,
			MaxRequests:            100,
			SkipSuccessfulRequests: false,
			SkipFailedRequests:     false,
			StandardHeaders:        true,
			LegacyHeaders:          false,
		},
		Headers: HeadersConfig{
			ContentSecurityPolicy:   "default-src 'self'; script-src 'self'; object-src 'none'; img-src 'self' data:; style-src 'self' 'unsafe-inline'; frame-ancestors 'none'",
			StrictTransportSecurity: "max-age=31536000; includeSubDomains; preload",
			XFrameOptions:           "DENY",
			XContentTypeOptions:     "nosniff",
			ReferrerPolicy:          "strict-origin-when-cross-origin",
			PermissionsPolicy:       "camera=(), microphone=(), geolocation=()",
		},
		DataProtection: DataProtectionConfig{
			EnableEncryptionAtRest:    true,
			EnableEncryptionInTransit: true,
			PIIDetectionEnabled:       true,
			DataRetentionDays:         90,
			EnableAuditLogging:        true,
			EnableDataLineageTracking: true,
		},
		Monitoring: MonitoringConfig{
			EnableSecurityMetrics:  true,
			EnableThreatDetection:  true,
			EnableAnomalyDetection: true,
			AlertThresholds: AlertThresholds{
				FailedLoginsPerHour:        10,
				BlockedUploadsPerHour:      5,
				RateLimitViolationsPerHour: 100,
				SecurityEventsPerMinute:    50,
			},
			MetricsRetentionDays: 30,
		},
	}
}
