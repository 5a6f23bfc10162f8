// Package events records security events emitted by the request pipeline,
// the policy manager and the gateway middleware.
package events

import "time"

type Type string

const (
	TypeAuthenticationFailure Type = "AUTHENTICATION_FAILURE"
	TypeFileUploadBlocked     Type = "FILE_UPLOAD_BLOCKED"
	TypeAccessDenied          Type = "ACCESS_DENIED"
	TypeSystemError           Type = "SYSTEM_ERROR"
	TypeRateLimitExceeded     Type = "RATE_LIMIT_EXCEEDED"
	TypeConfigUpdated         Type = "CONFIG_UPDATED"
)

type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryFileSecurity   Category = "file_security"
	CategoryAccessControl  Category = "access_control"
	CategoryRateLimiting   Category = "rate_limiting"
	CategoryConfiguration  Category = "configuration"
	CategorySystem         Category = "system"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ActionAccessDenied is the actionTaken recorded for denials.
const ActionAccessDenied = "access_denied"

// SecurityEvent is a write-once record of one security-relevant occurrence.
type SecurityEvent struct {
	ID               string         `json:"id"`
	Type             Type           `json:"type"`
	Severity         Severity       `json:"severity"`
	Category         Category       `json:"category"`
	RiskLevel        RiskLevel      `json:"riskLevel"`
	UserID           string         `json:"userId,omitempty"`
	IPAddress        string         `json:"ipAddress,omitempty"`
	UserAgent        string         `json:"userAgent,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
	Message          string         `json:"message"`
	Details          map[string]any `json:"details,omitempty"`
	RequiresResponse bool           `json:"requiresResponse"`
	ActionTaken      string         `json:"actionTaken,omitempty"`
}

var typeCategory = map[Type]Category{
	TypeAuthenticationFailure: CategoryAuthentication,
	TypeFileUploadBlocked:     CategoryFileSecurity,
	TypeAccessDenied:          CategoryAccessControl,
	TypeSystemError:           CategorySystem,
	TypeRateLimitExceeded:     CategoryRateLimiting,
	TypeConfigUpdated:         CategoryConfiguration,
}

// CategoryFor returns the category events of type t belong to.
func CategoryFor(t Type) Category {
	if c, ok := typeCategory[t]; ok {
		return c
	}
	return CategorySystem
}

// RiskFor maps a severity to its default risk level.
func RiskFor(s Severity) RiskLevel {
	switch s {
	case SeverityHigh:
		return RiskHigh
	case SeverityMedium:
		return RiskMedium
	default:
		return RiskLow
	}
}
