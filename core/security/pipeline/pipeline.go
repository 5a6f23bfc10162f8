// Package pipeline applies the active security policy to file-operation
// requests before they reach their handlers.
//
// Each request moves through identification, then exactly one of the upload
// check, the access check for downloads and deletes, or a skip, and ends forwarded, denied or errored.
// Denial events are recorded before the deny response is produced. Internal
// faults always deny.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/cutty/cutty/core/infra/logging"
	"github.com/cutty/cutty/core/infra/metrics"
	"github.com/cutty/cutty/core/security/access"
	"github.com/cutty/cutty/core/security/events"
	"github.com/cutty/cutty/core/security/identity"
	"github.com/cutty/cutty/core/security/policy"
	"github.com/cutty/cutty/core/security/upload"
)

const component = "security-pipeline"

type Decision string

const (
	DecisionForward Decision = "forward"
	DecisionDeny    Decision = "deny"
	DecisionError   Decision = "error"
)

// Result is the outcome of Handle. Status and Body are set unless the
// request is forwarded.
type Result struct {
	Decision  Decision
	Operation Operation
	Status    int
	Body      any
	Identity  identity.Identity

	// charged is the upload whose quota was reserved while forwarding.
	charged *upload.FileMetadata
}

// PolicySource serves the upload section of the active policy.
type PolicySource interface {
	FileUpload(ctx context.Context) (policy.FileUploadConfig, error)
	Environment() policy.Environment
}

// OwnerLookup resolves the owner of a file; "" means unknown.
type OwnerLookup interface {
	Owner(ctx context.Context, fileID string) (string, error)
}

type OwnerLookupFunc func(ctx context.Context, fileID string) (string, error)

func (f OwnerLookupFunc) Owner(ctx context.Context, fileID string) (string, error) {
	return f(ctx, fileID)
}

type EventLogger interface {
	Log(ctx context.Context, ev events.SecurityEvent) error
}

type Options struct {
	Routes     FileRoutes
	Policies   PolicySource
	Verifier   identity.Verifier
	Validator  *upload.Validator
	Authorizer access.Authorizer
	Owners     OwnerLookup
	Events     EventLogger
	Metrics    metrics.SecurityMetrics
}

type Pipeline struct {
	routes    FileRoutes
	policies  PolicySource
	verifier  identity.Verifier
	validator *upload.Validator
	authz     access.Authorizer
	owners    OwnerLookup
	events    EventLogger
	metrics   metrics.SecurityMetrics
}

func New(opts Options) (*Pipeline, error) {
	if opts.Policies == nil {
		return nil, errors.New("pipeline: policy source required")
	}
	if opts.Authorizer == nil {
		return nil, errors.New("pipeline: authorizer required")
	}
	if opts.Owners == nil {
		return nil, errors.New("pipeline: owner lookup required")
	}
	p := &Pipeline{
		routes:    opts.Routes,
		policies:  opts.Policies,
		verifier:  opts.Verifier,
		validator: opts.Validator,
		authz:     opts.Authorizer,
		owners:    opts.Owners,
		events:    opts.Events,
		metrics:   opts.Metrics,
	}
	if p.validator == nil {
		p.validator = upload.NewValidator(upload.Options{})
	}
	if p.metrics == nil {
		p.metrics = metrics.Noop{}
	}
	return p, nil
}

// Handle runs the checks for r. The returned request carries the caller
// identity in its context and must be the one passed downstream.
func (p *Pipeline) Handle(r *http.Request) (res Result, out *http.Request) {
	op, fileID := p.routes.Classify(r)
	if op == OpBypass {
		return Result{Decision: DecisionForward, Operation: op}, r
	}
	out = r
	caller := identity.Anonymous()
	defer func() {
		if rec := recover(); rec != nil {
			res, out = p.fail(r, caller, op, fmt.Errorf("panic: %v", rec)), r
		}
		p.metrics.IncPipelineDecision(string(res.Operation), string(res.Decision))
	}()

	caller, out = p.Identify(r)

	switch op {
	case OpUpload:
		res = p.checkUpload(out, caller)
	case OpDownload:
		res = p.checkAccess(out, caller, op, fileID, access.ActionRead)
	case OpDelete:
		res = p.checkAccess(out, caller, op, fileID, access.ActionDelete)
	default:
		res = Result{Decision: DecisionForward}
	}
	res.Operation = op
	res.Identity = caller
	return res, out
}

// Identify resolves the caller of r and attaches it to the request context.
// A request that already carries an identity is returned unchanged. A
// credential that fails verification downgrades the caller to anonymous.
func (p *Pipeline) Identify(r *http.Request) (identity.Identity, *http.Request) {
	if id, ok := identity.FromContext(r.Context()); ok {
		return id, r
	}
	id := identity.Anonymous()
	if token := identity.BearerToken(r); token != "" && p.verifier != nil {
		verified, err := p.verifier.Verify(r.Context(), token)
		if err != nil {
			p.emit(r, events.SecurityEvent{
				Type:        events.TypeAuthenticationFailure,
				Severity:    events.SeverityMedium,
				Message:     "Invalid authentication token",
				Details:     map[string]any{"path": r.URL.Path, "method": r.Method, "error": err.Error()},
				ActionTaken: events.ActionAccessDenied,
			}, id)
		} else {
			id = verified
		}
	}
	return id, r.WithContext(identity.WithIdentity(r.Context(), id))
}

func (p *Pipeline) checkUpload(r *http.Request, caller identity.Identity) Result {
	cfg, err := p.policies.FileUpload(r.Context())
	if err != nil {
		return p.fail(r, caller, OpUpload, fmt.Errorf("load upload policy: %w", err))
	}
	meta, err := upload.Inspect(r)
	if err != nil {
		return p.fail(r, caller, OpUpload, fmt.Errorf("read upload: %w", err))
	}
	meta.Subject = quotaSubject(r, caller)
	result, err := p.validator.Validate(r.Context(), cfg, meta)
	if err != nil {
		return p.fail(r, caller, OpUpload, fmt.Errorf("validate upload: %w", err))
	}
	if result.IsValid {
		return Result{Decision: DecisionForward, charged: &meta}
	}
	p.emit(r, events.SecurityEvent{
		Type:     events.TypeFileUploadBlocked,
		Severity: events.SeverityHigh,
		Message:  "File upload blocked by security policy",
		Details: map[string]any{
			"fileName":    meta.Name,
			"fileSize":    meta.Size,
			"contentType": meta.DeclaredType,
			"violations":  result.Violations,
			"riskScore":   result.RiskScore,
		},
		ActionTaken: "upload_blocked",
	}, caller)
	return Result{
		Decision: DecisionDeny,
		Status:   http.StatusBadRequest,
		Body: map[string]any{
			"error":           "File upload validation failed",
			"violations":      result.Violations,
			"recommendations": result.Recommendations,
			"riskScore":       result.RiskScore,
		},
	}
}

func (p *Pipeline) checkAccess(r *http.Request, caller identity.Identity, op Operation, fileID string, action access.Action) Result {
	owner, err := p.owners.Owner(r.Context(), fileID)
	if err != nil {
		return p.fail(r, caller, op, fmt.Errorf("resolve file owner: %w", err))
	}
	allowed, err := p.authz.Can(r.Context(), caller, action, access.Resource{ID: fileID, OwnerID: owner})
	if err != nil {
		return p.fail(r, caller, op, err)
	}
	if allowed {
		return Result{Decision: DecisionForward}
	}
	p.emit(r, events.SecurityEvent{
		Type:        events.TypeAccessDenied,
		Severity:    events.SeverityMedium,
		Message:     "File access denied",
		Details:     map[string]any{"fileId": fileID, "action": string(action), "path": r.URL.Path},
		ActionTaken: events.ActionAccessDenied,
	}, caller)
	return Result{
		Decision: DecisionDeny,
		Status:   http.StatusForbidden,
		Body:     map[string]any{"error": "Access denied"},
	}
}

// fail converts an internal fault into a deny-with-error result. Error detail
// reaches the client only outside production.
func (p *Pipeline) fail(r *http.Request, caller identity.Identity, op Operation, err error) Result {
	logging.Error(component, "security check failed", "operation", op, "path", r.URL.Path, "error", err)
	p.emit(r, events.SecurityEvent{
		Type:             events.TypeSystemError,
		Severity:         events.SeverityHigh,
		Message:          "Security pipeline error",
		Details:          map[string]any{"operation": string(op), "path": r.URL.Path, "method": r.Method, "error": err.Error()},
		RequiresResponse: true,
		ActionTaken:      "request_blocked",
	}, caller)

	status := http.StatusInternalServerError
	body := map[string]any{"error": "Internal security error"}
	if errors.Is(err, policy.ErrConfigUnavailable) {
		status = http.StatusServiceUnavailable
		body["error"] = "Security configuration unavailable"
	}
	if p.policies.Environment() != policy.EnvProduction {
		body["detail"] = err.Error()
	}
	return Result{Decision: DecisionError, Operation: op, Status: status, Body: body, Identity: caller}
}

// emit records ev for caller. Failures are logged and never change the
// outcome of the request.
func (p *Pipeline) emit(r *http.Request, ev events.SecurityEvent, caller identity.Identity) {
	if p.events == nil {
		return
	}
	ev.UserID = caller.UserID
	ev.IPAddress = ClientIP(r)
	ev.UserAgent = r.UserAgent()
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error(component, "event logger panic", "type", ev.Type, "panic", rec)
		}
	}()
	if err := p.events.Log(r.Context(), ev); err != nil {
		logging.Warn(component, "security event not recorded", "type", ev.Type, "error", err)
	}
}

// ClientIP returns the first X-Forwarded-For hop, or the peer address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func quotaSubject(r *http.Request, caller identity.Identity) string {
	if caller.Anonymous {
		return "ip:" + ClientIP(r)
	}
	return "user:" + caller.UserID
}
