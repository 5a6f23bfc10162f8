package upload

import (
	"path"
	"strings"
)

// RiskScorer rates an upload from 0 (benign) to 100.
type RiskScorer interface {
	Score(meta FileMetadata) int
}

type RiskScorerFunc func(meta FileMetadata) int

func (f RiskScorerFunc) Score(meta FileMetadata) int { return f(meta) }

var dangerousExtensions = map[string]bool{
	".exe": true, ".dll": true, ".com": true, ".scr": true, ".msi": true,
	".bat": true, ".cmd": true, ".ps1": true, ".sh": true, ".vbs": true,
	".js": true, ".jar": true, ".php": true, ".hta": true,
}

// DefaultScorer weighs executable extensions, disguised double extensions,
// declared/detected type mismatches and scanner findings.
type DefaultScorer struct{}

func (DefaultScorer) Score(meta FileMetadata) int {
	score := 0
	name := strings.ToLower(strings.TrimSpace(meta.Name))
	if dangerousExtensions[path.Ext(name)] {
		score += 60
	}
	if inner := path.Ext(strings.TrimSuffix(name, path.Ext(name))); dangerousExtensions[inner] {
		score += 30
	}
	if meta.DetectedType != "" && meta.DeclaredType != "" {
		detected := normalizeType(meta.DetectedType)
		if detected != meta.DeclaredType && !(textual(meta.DeclaredType) && strings.HasPrefix(detected, "text/")) {
			score += 40
		}
	}
	findings := 25 * len(meta.Findings)
	if findings > 50 {
		findings = 50
	}
	score += findings
	if meta.Size < 0 {
		score += 10
	}
	return clampScore(score)
}
