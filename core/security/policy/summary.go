package policy

import (
	"context"
	"time"
)

const (
	FeatureMFA              = "mfa"
	FeatureContentScanning  = "content_scanning"
	FeatureRateLimiting     = "rate_limiting"
	FeatureEncryptionAtRest = "encryption_at_rest"
	FeatureThreatDetection  = "threat_detection"
	FeatureAnomalyDetection = "anomaly_detection"

	LevelHigh   = "high"
	LevelMedium = "medium"
	LevelLow    = "low"
)

// Summary is the operator-facing digest of the active policy.
type Summary struct {
	Version         string      `json:"version"`
	Environment     Environment `json:"environment"`
	LastUpdated     time.Time   `json:"lastUpdated"`
	EnabledFeatures []string    `json:"enabledFeatures"`
	SecurityLevel   string      `json:"securityLevel"`
}

// Summarize classifies a policy. The level is high only when MFA, content
// scanning, rate limiting, encryption at rest and threat detection are all on;
// medium when at least three features are on; low otherwise.
func Summarize(p SecurityPolicy) Summary {
	flags := []struct {
		name string
		on   bool
	}{
		{FeatureMFA, p.Auth.RequireMFA},
		{FeatureContentScanning, p.FileUpload.EnableContentScanning},
		{FeatureRateLimiting, p.RateLimit.Enabled},
		{FeatureEncryptionAtRest, p.DataProtection.EnableEncryptionAtRest},
		{FeatureThreatDetection, p.Monitoring.EnableThreatDetection},
		{FeatureAnomalyDetection, p.Monitoring.EnableAnomalyDetection},
	}
	enabled := []string{}
	for _, f := range flags {
		if f.on {
			enabled = append(enabled, f.name)
		}
	}

	level := LevelLow
	switch {
	case p.Auth.RequireMFA && p.FileUpload.EnableContentScanning && p.RateLimit.Enabled &&
		p.DataProtection.EnableEncryptionAtRest && p.Monitoring.EnableThreatDetection:
		level = LevelHigh
	case len(enabled) >= 3:
		level = LevelMedium
	}
	return Summary{
		Version:         p.Version,
		Environment:     p.Environment,
		LastUpdated:     p.LastUpdated,
		EnabledFeatures: enabled,
		SecurityLevel:   level,
	}
}

// Summary summarizes the active policy.
func (m *Manager) Summary(ctx context.Context) (Summary, error) {
	p, err := m.GetConfig(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(p), nil
}
