package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cutty/cutty/core/infra/locks"
	"github.com/cutty/cutty/core/infra/logging"
	"github.com/cutty/cutty/core/infra/metrics"
	"github.com/cutty/cutty/core/security/events"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheExpiration = 5 * time.Minute
	storeTimeout           = 5 * time.Second
	updateLockTTL          = 15 * time.Second
	updateLockWait         = 5 * time.Second
)

// Backend is the durable policy store the Manager reads and writes.
type Backend interface {
	Load(ctx context.Context, env Environment) (SecurityPolicy, error)
	Save(ctx context.Context, p SecurityPolicy) error
}

// EventLogger receives CONFIG_UPDATED events.
type EventLogger interface {
	Log(ctx context.Context, ev events.SecurityEvent) error
}

type Options struct {
	Environment        Environment
	CacheExpiration    time.Duration
	DynamicUpdates     bool
	FallbackToDefaults bool
	// Overrides is merged onto the environment default whenever one is built.
	Overrides *PolicyPatch
	// Locker serializes updates across replicas sharing one store.
	Locker     locks.Store
	Events     EventLogger
	Metrics    metrics.SecurityMetrics
	Now        func() time.Time
	NewVersion func() string
}

// DefaultOptions enables dynamic updates and default fallback.
func DefaultOptions(env Environment) Options {
	return Options{
		Environment:        env,
		CacheExpiration:    defaultCacheExpiration,
		DynamicUpdates:     true,
		FallbackToDefaults: true,
	}
}

// Manager is the single source of truth for the active policy of one
// environment.
type Manager struct {
	opts  Options
	store Backend
	cache *Cache
	group singleflight.Group

	updateMu sync.Mutex

	defaultsOnce sync.Once
	defaults     SecurityPolicy
}

func NewManager(store Backend, opts Options) (*Manager, error) {
	if !opts.Environment.valid() {
		return nil, fmt.Errorf("policy manager: invalid environment %q", opts.Environment)
	}
	if opts.DynamicUpdates && store == nil {
		return nil, errors.New("policy manager: dynamic updates require a store")
	}
	if opts.CacheExpiration <= 0 {
		opts.CacheExpiration = defaultCacheExpiration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewVersion == nil {
		opts.NewVersion = uuid.NewString
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	return &Manager{
		opts:  opts,
		store: store,
		cache: NewCache(opts.CacheExpiration, opts.Now),
	}, nil
}

func (m *Manager) Environment() Environment { return m.opts.Environment }

func (m *Manager) DynamicUpdates() bool { return m.opts.DynamicUpdates }

// GetConfig returns the active policy: the fresh cache snapshot, else the
// stored document, else the environment default. When resolution fails it
// degrades to the stale snapshot, then to defaults when allowed.
func (m *Manager) GetConfig(ctx context.Context) (SecurityPolicy, error) {
	if p, ok := m.cache.Get(); ok {
		m.opts.Metrics.IncPolicyLoad("cache")
		return p, nil
	}
	v, err, _ := m.group.Do("refresh", func() (any, error) {
		if p, ok := m.cache.Get(); ok {
			return p, nil
		}
		return m.refresh(context.WithoutCancel(ctx))
	})
	if err == nil {
		return v.(SecurityPolicy).Clone(), nil
	}

	logging.Error("policy-manager", "policy refresh failed", "environment", m.opts.Environment, "error", err)
	if p, ok := m.cache.Last(); ok {
		m.opts.Metrics.IncPolicyLoad("stale")
		return p, nil
	}
	if m.opts.FallbackToDefaults {
		m.opts.Metrics.IncPolicyLoad("default")
		return m.DefaultPolicy(), nil
	}
	return SecurityPolicy{}, fmt.Errorf("%w: %v", ErrConfigUnavailable, err)
}

func (m *Manager) refresh(ctx context.Context) (SecurityPolicy, error) {
	if m.opts.DynamicUpdates {
		loadCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		p, err := m.store.Load(loadCtx, m.opts.Environment)
		cancel()
		switch {
		case err == nil:
			m.cache.Set(p)
			m.opts.Metrics.IncPolicyLoad("store")
			return p, nil
		case !errors.Is(err, ErrPolicyNotFound):
			return SecurityPolicy{}, err
		}
	}
	p := m.DefaultPolicy()
	m.cache.Set(p)
	m.opts.Metrics.IncPolicyLoad("default")
	return p, nil
}

// DefaultPolicy is the environment baseline with operator overrides applied,
// stamped once per Manager so repeated misses serve a stable version.
func (m *Manager) DefaultPolicy() SecurityPolicy {
	m.defaultsOnce.Do(func() {
		p := DefaultPolicy(m.opts.Environment)
		if m.opts.Overrides != nil {
			p = MergeConfigs(p, *m.opts.Overrides)
			p.Environment = m.opts.Environment
			if res := ValidateConfig(p); !res.Valid {
				logging.Warn("policy-manager", "overrides ignored, merged default invalid", "errors", res.Errors)
				p = DefaultPolicy(m.opts.Environment)
			}
		}
		p.Version = m.opts.NewVersion()
		p.LastUpdated = m.opts.Now().UTC()
		m.defaults = p
	})
	return m.defaults.Clone()
}

// UpdateConfig merges patch onto the current policy, stamps a new version and
// persists it. Invalid candidates are rejected with *ValidationError and leave
// the current policy unchanged.
func (m *Manager) UpdateConfig(ctx context.Context, patch PolicyPatch) (SecurityPolicy, error) {
	if !m.opts.DynamicUpdates {
		return SecurityPolicy{}, ErrDynamicUpdatesDisabled
	}
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	if m.opts.Locker != nil {
		release, err := locks.Hold(ctx, m.opts.Locker, StoreKey(m.opts.Environment), updateLockTTL, updateLockWait)
		if err != nil {
			return SecurityPolicy{}, fmt.Errorf("policy update lock: %w", err)
		}
		defer release()
		// another replica may have written since our snapshot
		m.cache.Invalidate()
	}

	current, err := m.GetConfig(ctx)
	if err != nil {
		return SecurityPolicy{}, err
	}
	next := MergeConfigs(current, patch)
	next.Environment = m.opts.Environment
	next.Version = m.opts.NewVersion()
	next.LastUpdated = m.opts.Now().UTC()

	if res := ValidateConfig(next); !res.Valid {
		return SecurityPolicy{}, &ValidationError{Errors: res.Errors}
	}
	if err := m.store.Save(ctx, next); err != nil {
		return SecurityPolicy{}, fmt.Errorf("persist policy: %w", err)
	}
	m.cache.Set(next)

	changes := []string{}
	if cmp, err := CompareConfigs(current, next); err == nil {
		changes = cmp.Differences
	}
	m.emit(ctx, events.SecurityEvent{
		Type:     events.TypeConfigUpdated,
		Severity: events.SeverityLow,
		Message:  "security configuration updated",
		Details: map[string]any{
			"environment":     string(next.Environment),
			"previousVersion": current.Version,
			"version":         next.Version,
			"changes":         changes,
		},
	})
	logging.Info("policy-manager", "policy updated", "environment", next.Environment, "version", next.Version, "changes", len(changes))
	return next.Clone(), nil
}

// ResetToDefaults replaces every section with the environment default.
func (m *Manager) ResetToDefaults(ctx context.Context) (SecurityPolicy, error) {
	return m.UpdateConfig(ctx, PatchFromPolicy(m.DefaultPolicy()))
}

// ValidateConfig never mutates state.
func (m *Manager) ValidateConfig(p SecurityPolicy) ValidationResult {
	return ValidateConfig(p)
}

// Invalidate forces the next GetConfig to refresh.
func (m *Manager) Invalidate() {
	m.cache.Invalidate()
}

func (m *Manager) Auth(ctx context.Context) (AuthConfig, error) {
	p, err := m.GetConfig(ctx)
	return p.Auth, err
}

func (m *Manager) FileUpload(ctx context.Context) (FileUploadConfig, error) {
	p, err := m.GetConfig(ctx)
	return p.FileUpload, err
}

func (m *Manager) RateLimit(ctx context.Context) (RateLimitConfig, error) {
	p, err := m.GetConfig(ctx)
	return p.RateLimit, err
}

func (m *Manager) Headers(ctx context.Context) (HeadersConfig, error) {
	p, err := m.GetConfig(ctx)
	return p.Headers, err
}

func (m *Manager) DataProtection(ctx context.Context) (DataProtectionConfig, error) {
	p, err := m.GetConfig(ctx)
	return p.DataProtection, err
}

func (m *Manager) Monitoring(ctx context.Context) (MonitoringConfig, error) {
	p, err := m.GetConfig(ctx)
	return p.Monitoring, err
}

func (m *Manager) emit(ctx context.Context, ev events.SecurityEvent) {
	if m.opts.Events == nil {
		return
	}
	if err := m.opts.Events.Log(ctx, ev); err != nil {
		logging.Warn("policy-manager", "event emission failed", "type", ev.Type, "error", err)
	}
}
