// Package upload validates an inbound file against the fileUpload section of
// the active security policy.
package upload

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/cutty/cutty/core/infra/ratelimit"
	"github.com/cutty/cutty/core/security/policy"
)

// QuarantineThreshold is the risk score at or above which a file is refused
// when quarantineHighRiskFiles is enabled.
const QuarantineThreshold = 70

const (
	quotaWindow      = time.Hour
	filesQuotaPrefix = "upload-quota:files:"
	bytesQuotaPrefix = "upload-quota:bytes:"
)

// FileMetadata describes one upload as seen before the body is stored.
type FileMetadata struct {
	Name         string
	Size         int64 // -1 when the length is unknown
	DeclaredType string
	DetectedType string
	// Head holds the leading bytes of the body used for detection and scanning.
	Head     []byte
	Findings []string
	// Subject keys the hourly quotas: a user id, or a client address for
	// anonymous callers.
	Subject string
}

// Extension returns the lowercased final extension of the file name.
func (m FileMetadata) Extension() string {
	return strings.ToLower(path.Ext(m.Name))
}

type ValidationResult struct {
	IsValid         bool     `json:"isValid"`
	Violations      []string `json:"violations"`
	Recommendations []string `json:"recommendations"`
	RiskScore       int      `json:"riskScore"`
}

type Options struct {
	Scorer  RiskScorer
	Scanner ContentScanner
	// Quota enforces maxFilesPerHour and maxTotalSizePerHour; nil disables both.
	Quota ratelimit.Limiter
}

type Validator struct {
	scorer  RiskScorer
	scanner ContentScanner
	quota   ratelimit.Limiter
}

func NewValidator(opts Options) *Validator {
	v := &Validator{scorer: opts.Scorer, scanner: opts.Scanner, quota: opts.Quota}
	if v.scorer == nil {
		v.scorer = DefaultScorer{}
	}
	if v.scanner == nil {
		v.scanner = PatternScanner{}
	}
	return v
}

// Validate runs every check and reports all violations found. An error means
// the checks could not be completed and the upload must not be accepted.
func (v *Validator) Validate(ctx context.Context, cfg policy.FileUploadConfig, meta FileMetadata) (ValidationResult, error) {
	var res ValidationResult
	recommend := map[string]bool{}
	deny := func(violation, recommendation string) {
		res.Violations = append(res.Violations, violation)
		if recommendation != "" && !recommend[recommendation] {
			recommend[recommendation] = true
			res.Recommendations = append(res.Recommendations, recommendation)
		}
	}

	switch {
	case meta.Size < 0:
		deny("file size is unknown; a Content-Length header is required", "send the upload with an explicit Content-Length")
	case meta.Size == 0:
		deny("file is empty", "upload a file with content")
	case meta.Size > cfg.MaxFileSize:
		deny(fmt.Sprintf("file size %d bytes exceeds maximum of %d bytes", meta.Size, cfg.MaxFileSize),
			fmt.Sprintf("reduce the file below %d bytes or split it into smaller files", cfg.MaxFileSize))
	}

	if strings.TrimSpace(meta.Name) == "" {
		deny("file name is required", "provide the file name in the filename parameter")
	} else if ext := meta.Extension(); !containsFold(cfg.AllowedExtensions, ext) {
		deny(fmt.Sprintf("file extension %q is not allowed", ext),
			"use one of the allowed extensions: "+strings.Join(cfg.AllowedExtensions, ", "))
	}

	declared := normalizeType(meta.DeclaredType)
	meta.DeclaredType = declared
	if declared == "" {
		deny("content type is required", "send the upload with a Content-Type header")
	} else if !containsFold(cfg.AllowedMimeTypes, declared) {
		deny(fmt.Sprintf("content type %q is not allowed", declared),
			"use one of the allowed content types: "+strings.Join(cfg.AllowedMimeTypes, ", "))
	}

	if cfg.EnableMagicByteValidation && len(meta.Head) > 0 {
		detected := mimetype.Detect(meta.Head)
		meta.DetectedType = detected.String()
		if declared != "" && !compatible(detected, declared) {
			deny(fmt.Sprintf("file content (%s) does not match declared type %s", normalizeType(detected.String()), declared),
				"make sure the file content matches its declared type")
		}
	}

	if cfg.EnableContentScanning && len(meta.Head) > 0 {
		findings, err := v.scan(ctx, cfg, meta.Head)
		switch {
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			deny(fmt.Sprintf("content scan did not complete within %dms", cfg.VirusScanTimeout), "retry the upload later")
		case err != nil:
			return ValidationResult{}, fmt.Errorf("content scan: %w", err)
		}
		meta.Findings = append(meta.Findings, findings...)
		for _, finding := range findings {
			deny("content scan flagged: "+finding, "remove formulas, scripts and binary content from the file")
		}
	}

	res.RiskScore = clampScore(v.scorer.Score(meta))
	if cfg.QuarantineHighRiskFiles && res.RiskScore >= QuarantineThreshold {
		deny(fmt.Sprintf("risk score %d exceeds quarantine threshold of %d", res.RiskScore, QuarantineThreshold),
			"contact an administrator to review the file")
	}

	if len(res.Violations) == 0 && v.quota != nil {
		violation, err := v.chargeQuota(ctx, cfg, meta)
		if err != nil {
			return ValidationResult{}, err
		}
		if violation != "" {
			deny(violation, "retry after the hourly upload window resets")
		}
	}

	res.IsValid = len(res.Violations) == 0
	if res.Violations == nil {
		res.Violations = []string{}
	}
	if res.Recommendations == nil {
		res.Recommendations = []string{}
	}
	return res, nil
}

func (v *Validator) scan(ctx context.Context, cfg policy.FileUploadConfig, head []byte) ([]string, error) {
	if cfg.VirusScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.VirusScanTimeout)*time.Millisecond)
		defer cancel()
	}
	return v.scanner.Scan(ctx, head)
}

// Refund returns the quota charged by a successful Validate for meta. Callers
// use it when the upload is accepted here but then fails downstream.
func (v *Validator) Refund(ctx context.Context, meta FileMetadata) error {
	if v.quota == nil {
		return nil
	}
	subject := quotaKey(meta)
	filesErr := v.quota.Release(ctx, filesQuotaPrefix+subject, 1)
	bytesErr := v.quota.Release(ctx, bytesQuotaPrefix+subject, meta.Size)
	if err := errors.Join(filesErr, bytesErr); err != nil {
		return fmt.Errorf("upload quota refund: %w", err)
	}
	return nil
}

func quotaKey(meta FileMetadata) string {
	if meta.Subject == "" {
		return "unknown"
	}
	return meta.Subject
}

// chargeQuota reserves one file and meta.Size bytes in the subject's hourly
// window. Nothing stays reserved when either quota is exhausted.
func (v *Validator) chargeQuota(ctx context.Context, cfg policy.FileUploadConfig, meta FileMetadata) (string, error) {
	subject := quotaKey(meta)
	filesKey := filesQuotaPrefix + subject
	files, err := v.quota.Take(ctx, filesKey, 1, int64(cfg.MaxFilesPerHour), quotaWindow)
	if err != nil {
		return "", fmt.Errorf("upload quota: %w", err)
	}
	if !files.Allowed {
		return fmt.Sprintf("hourly upload limit of %d files reached", cfg.MaxFilesPerHour), nil
	}
	bytes, err := v.quota.Take(ctx, bytesQuotaPrefix+subject, meta.Size, cfg.MaxTotalSizePerHour, quotaWindow)
	if err == nil && bytes.Allowed {
		return "", nil
	}
	if relErr := v.quota.Release(ctx, filesKey, 1); relErr != nil && err == nil {
		err = relErr
	}
	if err != nil {
		return "", fmt.Errorf("upload quota: %w", err)
	}
	return fmt.Sprintf("hourly upload volume of %d bytes would be exceeded", cfg.MaxTotalSizePerHour), nil
}

func normalizeType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(raw); err == nil {
		return mediaType
	}
	return strings.ToLower(raw)
}

// compatible reports whether detected content can be the declared type.
// Textual declarations accept any text/plain descendant since CSV and TSV are
// not reliably distinguishable from their first bytes.
func compatible(detected *mimetype.MIME, declared string) bool {
	for m := detected; m != nil; m = m.Parent() {
		if m.Is(declared) {
			return true
		}
		if m.Is("text/plain") && textual(declared) {
			return true
		}
	}
	return false
}

func textual(mediaType string) bool {
	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	switch mediaType {
	case "application/csv", "application/json", "application/vnd.ms-excel":
		return true
	}
	return false
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), value) {
			return true
		}
	}
	return false
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
