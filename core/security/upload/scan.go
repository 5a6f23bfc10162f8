package upload

import (
	"bytes"
	"context"
	"regexp"
)

// ContentScanner inspects the leading bytes of an upload and returns one
// finding per problem detected.
type ContentScanner interface {
	Scan(ctx context.Context, head []byte) ([]string, error)
}

type ContentScannerFunc func(ctx context.Context, head []byte) ([]string, error)

func (f ContentScannerFunc) Scan(ctx context.Context, head []byte) ([]string, error) {
	return f(ctx, head)
}

var (
	formulaPattern = regexp.MustCompile(`(?m)(?:^|[,;\t])\s*"?[=+\-@]\s*[A-Za-z_][A-Za-z0-9_.]*\s*[(|!]`)
	scriptPattern  = regexp.MustCompile(`(?i)<\s*script\b`)
)

// PatternScanner flags spreadsheet formula injection, embedded scripts and
// executable payloads in tabular uploads.
type PatternScanner struct{}

func (PatternScanner) Scan(ctx context.Context, head []byte) ([]string, error) {
	var findings []string
	switch {
	case bytes.HasPrefix(head, []byte("MZ")):
		findings = append(findings, "windows executable header")
	case bytes.HasPrefix(head, []byte("\x7fELF")):
		findings = append(findings, "ELF executable header")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if bytes.IndexByte(head, 0) >= 0 {
		findings = append(findings, "binary NUL bytes in text content")
	}
	if formulaPattern.Match(head) {
		findings = append(findings, "spreadsheet formula injection")
	}
	if scriptPattern.Match(head) {
		findings = append(findings, "embedded script tag")
	}
	if bytes.Contains(bytes.ToLower(head), []byte("<?php")) {
		findings = append(findings, "embedded PHP code")
	}
	return findings, ctx.Err()
}
