package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/cutty/cutty/core/infra/bus"
	"github.com/cutty/cutty/core/infra/config"
	"github.com/cutty/cutty/core/infra/files"
	"github.com/cutty/cutty/core/infra/kv"
	"github.com/cutty/cutty/core/infra/locks"
	"github.com/cutty/cutty/core/infra/logging"
	infraMetrics "github.com/cutty/cutty/core/infra/metrics"
	"github.com/cutty/cutty/core/infra/ratelimit"
	"github.com/cutty/cutty/core/security/access"
	"github.com/cutty/cutty/core/security/events"
	"github.com/cutty/cutty/core/security/identity"
	"github.com/cutty/cutty/core/security/pipeline"
	"github.com/cutty/cutty/core/security/policy"
	"github.com/cutty/cutty/core/security/upload"
)

const (
	component          = "security-gateway"
	metricsNamespace   = "cutty"
	healthService      = "cutty.security"
	rateLimitKeyPrefix = "ratelimit:"
)

type server struct {
	env         policy.Environment
	policies    *policy.Manager
	pipeline    *pipeline.Pipeline
	files       files.Store
	filesPrefix string
	authz       access.Authorizer
	events      *events.Logger
	hub         *events.Hub
	limiter     ratelimit.Limiter
	metrics     infraMetrics.GatewayMetrics
	security    infraMetrics.SecurityMetrics
	health      *health.Server
	now         func() time.Time
}

// Deps are the collaborators of the gateway. Zero values get in-process
// implementations.
type Deps struct {
	Policies    *policy.Manager
	Verifier    identity.Verifier
	Files       files.Store
	FilesPrefix string
	Authorizer  access.Authorizer
	Events      *events.Logger
	Hub         *events.Hub
	Limiter     ratelimit.Limiter
	Validator   *upload.Validator
	Metrics     infraMetrics.GatewayMetrics
	Security    infraMetrics.SecurityMetrics
	Now         func() time.Time
}

func newServer(d Deps) (*server, error) {
	if d.Policies == nil {
		return nil, errors.New("policy manager required")
	}
	if d.Files == nil {
		d.Files = files.NewMemoryStore()
	}
	if d.FilesPrefix == "" {
		d.FilesPrefix = "/api/v1/files"
	}
	d.FilesPrefix = "/" + strings.Trim(d.FilesPrefix, "/")
	if d.Authorizer == nil {
		authz, err := access.NewCasbinAuthorizer()
		if err != nil {
			return nil, err
		}
		d.Authorizer = authz
	}
	if d.Hub == nil {
		d.Hub = events.NewHub(0)
	}
	if d.Events == nil {
		d.Events = events.NewLogger(d.Hub)
	}
	if d.Limiter == nil {
		d.Limiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{})
	}
	if d.Validator == nil {
		d.Validator = upload.NewValidator(upload.Options{Quota: d.Limiter})
	}
	if d.Metrics == nil {
		d.Metrics = infraMetrics.Noop{}
	}
	if d.Security == nil {
		d.Security = infraMetrics.Noop{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	store := d.Files
	pipe, err := pipeline.New(pipeline.Options{
		Routes:     pipeline.FileRoutes{Prefix: d.FilesPrefix},
		Policies:   d.Policies,
		Verifier:   d.Verifier,
		Validator:  d.Validator,
		Authorizer: d.Authorizer,
		Owners: pipeline.OwnerLookupFunc(func(ctx context.Context, id string) (string, error) {
			return files.Owner(ctx, store, id)
		}),
		Events:  d.Events,
		Metrics: d.Security,
	})
	if err != nil {
		return nil, err
	}
	return &server{
		env:         d.Policies.Environment(),
		policies:    d.Policies,
		pipeline:    pipe,
		files:       d.Files,
		filesPrefix: d.FilesPrefix,
		authz:       d.Authorizer,
		events:      d.Events,
		hub:         d.Hub,
		limiter:     d.Limiter,
		metrics:     d.Metrics,
		security:    d.Security,
		health:      health.NewServer(),
		now:         d.Now,
	}, nil
}

// Run wires the gateway from cfg and serves until the HTTP server stops.
func Run(cfg *config.Config) error {
	if cfg == nil {
		cfg = config.Load()
	}
	env, err := policy.ParseEnvironment(cfg.Environment)
	if err != nil {
		return err
	}

	var (
		backend kv.Store
		limiter ratelimit.Limiter
		store   files.Store
		locker  locks.Store
	)
	redisStore, err := kv.Dial(cfg.RedisURL)
	switch {
	case err == nil:
		defer redisStore.Close()
		backend = redisStore
		if limiter, err = ratelimit.NewRedisLimiter(redisStore.Client(), "cutty:", nil); err != nil {
			return err
		}
		if store, err = files.NewRedisStore(redisStore.Client()); err != nil {
			return err
		}
		if locker, err = locks.NewRedisStore(redisStore.Client()); err != nil {
			return err
		}
	case cfg.FallbackToDefaults:
		logging.Error(component, "redis unavailable, using in-process stores", "error", err)
		backend = kv.NewMemoryStore()
		limiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{})
		store = files.NewMemoryStore()
	default:
		return fmt.Errorf("connect redis: %w", err)
	}

	secMetrics := infraMetrics.NewProm(metricsNamespace)
	hub := events.NewHub(0)
	logger := events.NewLogger(events.NewMetricsSink(secMetrics))

	overrides, err := policy.LoadOverrides(cfg.OverridesPath)
	if err != nil {
		return fmt.Errorf("load policy overrides: %w", err)
	}
	opts := policy.DefaultOptions(env)
	opts.CacheExpiration = cfg.CacheExpiration
	opts.DynamicUpdates = cfg.DynamicUpdates
	opts.FallbackToDefaults = cfg.FallbackToDefaults
	opts.Overrides = overrides
	opts.Locker = locker
	opts.Events = logger
	opts.Metrics = secMetrics
	manager, err := policy.NewManager(policy.NewStore(backend), opts)
	if err != nil {
		return fmt.Errorf("init policy manager: %w", err)
	}
	logger.AddSink(events.NewKVSink(backend, func() time.Duration {
		mon, err := manager.Monitoring(context.Background())
		if err != nil {
			return 0
		}
		return time.Duration(mon.MetricsRetentionDays) * 24 * time.Hour
	}))

	if cfg.NatsURL != "" {
		natsBus, err := bus.NewNatsBus(cfg.NatsURL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer natsBus.Close()
		logger.AddSink(events.NewBusSink(natsBus))
		if err := natsBus.Subscribe(bus.SubjectSecurityAll, hub.Ingest); err != nil {
			return fmt.Errorf("subscribe security events: %w", err)
		}
	} else {
		logger.AddSink(hub)
	}

	var verifier identity.Verifier
	if cfg.JWTSecret != "" {
		jwtVerifier, err := identity.NewJWTVerifier(cfg.JWTSecret)
		if err != nil {
			return err
		}
		verifier = jwtVerifier
	} else if env == policy.EnvProduction {
		return errors.New("JWT_SECRET is required in production")
	} else {
		logging.Warn(component, "JWT_SECRET not set, all callers are anonymous")
	}

	s, err := newServer(Deps{
		Policies:    manager,
		Verifier:    verifier,
		Files:       store,
		FilesPrefix: cfg.FilesPrefix,
		Events:      logger,
		Hub:         hub,
		Limiter:     limiter,
		Metrics:     infraMetrics.NewGatewayProm(metricsNamespace),
		Security:    secMetrics,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.probeHealth(ctx, cfg.HealthProbeInterval)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc (%s): %w", cfg.GRPCAddr, err)
	}
	grpcServer := grpc.NewServer(grpc.Creds(grpcCredentials()))
	healthpb.RegisterHealthServer(grpcServer, s.health)
	reflection.Register(grpcServer)
	go func() {
		logging.Info(component, "grpc listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(grpcLis); err != nil {
			logging.Error(component, "grpc server error", "error", err)
		}
	}()
	defer grpcServer.GracefulStop()

	logging.Info(component, "starting", "environment", env, "dynamic_updates", cfg.DynamicUpdates, "files_prefix", s.filesPrefix)
	return startHTTPServer(s, cfg.HTTPAddr, cfg.MetricsAddr)
}

func grpcCredentials() credentials.TransportCredentials {
	certFile := os.Getenv("GRPC_TLS_CERT")
	if certFile == "" {
		return insecure.NewCredentials()
	}
	keyFile := os.Getenv("GRPC_TLS_KEY")
	if keyFile == "" {
		logging.Error(component, "grpc tls key missing", "cert", certFile)
		return insecure.NewCredentials()
	}
	creds, err := credentials.NewServerTLSFromFile(certFile, keyFile)
	if err != nil {
		logging.Error(component, "grpc tls setup failed", "error", err)
		return insecure.NewCredentials()
	}
	return creds
}

func startHTTPServer(s *server, httpAddr, metricsAddr string) error {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", infraMetrics.Handler())
	go func() {
		srv := &http.Server{
			Addr:         metricsAddr,
			Handler:      metricsMux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		logging.Info(component, "metrics listening", "addr", metricsAddr+"/metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(component, "metrics server error", "error", err)
		}
	}()

	logging.Info(component, "http listening", "addr", httpAddr)
	srv := &http.Server{
		Addr:              httpAddr,
		Handler:           s.handler(),
		ReadTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Error(component, "http server error", "error", err)
		return err
	}
	return nil
}

// handler builds the routes and the middleware chain around them.
func (s *server) handler() http.Handler {
	mux := http.NewServeMux()

	// 1. Health
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// 2. Security configuration
	mux.HandleFunc("GET /api/v1/security/config", s.instrumented("/api/v1/security/config", s.handleGetConfig))
	mux.HandleFunc("POST /api/v1/security/config", s.instrumented("/api/v1/security/config", s.handleUpdateConfig))
	mux.HandleFunc("POST /api/v1/security/config/validate", s.instrumented("/api/v1/security/config/validate", s.handleValidateConfig))
	mux.HandleFunc("POST /api/v1/security/config/reset", s.instrumented("/api/v1/security/config/reset", s.handleResetConfig))
	mux.HandleFunc("GET /api/v1/security/config/summary", s.instrumented("/api/v1/security/config/summary", s.handleConfigSummary))
	mux.HandleFunc("GET /api/v1/security/config/{section}", s.instrumented("/api/v1/security/config/{section}", s.handleConfigSection))

	// 3. Security events
	mux.HandleFunc("GET /api/v1/security/events", s.instrumented("/api/v1/security/events", s.handleRecentEvents))
	mux.HandleFunc("GET /api/v1/security/events/stream", s.instrumented("/api/v1/security/events/stream", s.handleEventStream))

	// 4. Files (behind the security pipeline)
	p := s.filesPrefix
	mux.HandleFunc("GET "+p, s.instrumented(p, s.handleListFiles))
	mux.HandleFunc("POST "+p+"/upload", s.instrumented(p+"/upload", s.handleUploadFile))
	mux.HandleFunc("PUT "+p+"/{id}", s.instrumented(p+"/{id}", s.handleReplaceFile))
	mux.HandleFunc("GET "+p+"/{id}/download", s.instrumented(p+"/{id}/download", s.handleDownloadFile))
	mux.HandleFunc("DELETE "+p+"/{id}", s.instrumented(p+"/{id}", s.handleDeleteFile))

	return s.securityHeaders(s.cors(s.identify(s.rateLimit(s.pipeline.Middleware(mux)))))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack forwards websocket hijacking support to the underlying writer when available.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijacker not supported")
	}
	return hj.Hijack()
}

// Flush preserves streaming support if the wrapped writer implements it.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrumented wraps handlers to record metrics.
func (s *server) instrumented(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		if s.metrics != nil {
			s.metrics.ObserveRequest(r.Method, route, fmt.Sprintf("%d", rec.status), s.now().Sub(start).Seconds())
		}
	}
}

// probeHealth reports SERVING while a policy can be obtained.
func (s *server) probeHealth(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.updateHealth(ctx)
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-ticker.C:
		}
	}
}

func (s *server) updateHealth(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if _, err := s.policies.GetConfig(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		logging.Warn(component, "policy unavailable", "error", err)
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(healthService, status)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// writeInternalError answers 500; the cause is exposed only outside
// production.
func (s *server) writeInternalError(w http.ResponseWriter, msg string, err error) {
	logging.Error(component, msg, "error", err)
	body := map[string]any{"error": msg}
	if s.env != policy.EnvProduction {
		body["detail"] = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, body)
}

// writePolicyError maps Manager errors onto status codes.
func (s *server) writePolicyError(w http.ResponseWriter, err error) {
	var invalid *policy.ValidationError
	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "Invalid security configuration",
			"errors": invalid.Errors,
		})
	case errors.Is(err, policy.ErrDynamicUpdatesDisabled):
		writeError(w, http.StatusForbidden, "Dynamic configuration updates are disabled")
	case errors.Is(err, policy.ErrConfigUnavailable):
		logging.Error(component, "security configuration unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "Security configuration unavailable")
	default:
		s.writeInternalError(w, "Security configuration error", err)
	}
}

// caller returns the identity attached by the identify middleware.
func caller(r *http.Request) identity.Identity {
	if id, ok := identity.FromContext(r.Context()); ok {
		return id
	}
	return identity.Anonymous()
}

func (s *server) requireAuthenticated(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id := caller(r)
	if id.Anonymous {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return id, false
	}
	return id, true
}

func (s *server) requireAdmin(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, ok := s.requireAuthenticated(w, r)
	if !ok {
		return id, false
	}
	if !id.IsAdmin() {
		writeError(w, http.StatusForbidden, "Administrator role required")
		return id, false
	}
	return id, true
}
