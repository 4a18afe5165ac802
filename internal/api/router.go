package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eugenenazirov/webhost/internal/errorreport"
	"github.com/eugenenazirov/webhost/internal/logging"
)

const (
	healthPath         = "/api/health"
	hstsValue          = "max-age=63072000; includeSubDomains"
	maxRequestIDLength = 255
)

// RouterOption configures the behaviour of NewRouter.
type RouterOption func(*routerConfig)

// WithLogging controls whether access logs are emitted.
func WithLogging(enabled bool) RouterOption {
	return func(cfg *routerConfig) {
		cfg.enableLogging = enabled
	}
}

// WithRateLimiter overrides the default request rate limiter (primarily for tests).
func WithRateLimiter(limiter rateLimiter) RouterOption {
	return func(cfg *routerConfig) {
		cfg.rateLimiter = limiter
	}
}

// WithRateLimit configures a token bucket limiter. A zero rate or burst disables
// rate limiting.
func WithRateLimit(ratePerSecond float64, burst int) RouterOption {
	return func(cfg *routerConfig) {
		if ratePerSecond <= 0 || burst <= 0 {
			cfg.rateLimiter = nil
			return
		}
		cfg.rateLimiter = newTokenBucketLimiter(ratePerSecond, burst)
	}
}

// WithMetrics records request metrics and exposes them at /metrics.
func WithMetrics(metrics *Metrics) RouterOption {
	return func(cfg *routerConfig) {
		cfg.metrics = metrics
	}
}

// WithPanicReporter sends recovered panics to reporter.
func WithPanicReporter(reporter errorreport.Reporter) RouterOption {
	return func(cfg *routerConfig) {
		cfg.reporter = reporter
	}
}

// WithFallback serves every path outside the API with handler.
func WithFallback(handler http.Handler) RouterOption {
	return func(cfg *routerConfig) {
		cfg.fallback = handler
	}
}

type routerConfig struct {
	enableLogging bool
	logger        *zap.Logger
	rateLimiter   rateLimiter
	metrics       *Metrics
	reporter      errorreport.Reporter
	fallback      http.Handler
}

// NewRouter creates the root HTTP handler with standard middleware. Settings held by
// handler decide SSL enforcement, log tags and whether attachment routes exist.
func NewRouter(handler *Handler, logger *zap.Logger, opts ...RouterOption) http.Handler {
	cfg := routerConfig{
		enableLogging: true,
		logger:        logger,
		rateLimiter:   newTokenBucketLimiter(25, 50),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	mux := http.NewServeMux()
	mux.Handle("GET "+healthPath, http.HandlerFunc(handler.handleHealth))
	mux.Handle("GET /api/settings", http.HandlerFunc(handler.handleSettings))
	if handler.attachments != nil {
		mux.Handle("GET /api/attachments", http.HandlerFunc(handler.handleListAttachments))
		mux.Handle("POST /api/attachments", http.HandlerFunc(handler.handleCreateAttachment))
		mux.Handle("GET /api/attachments/{key}", http.HandlerFunc(handler.handleGetAttachment))
		mux.Handle("GET /api/attachments/{key}/blob", http.HandlerFunc(handler.handleDownloadAttachment))
		mux.Handle("DELETE /api/attachments/{key}", http.HandlerFunc(handler.handleDeleteAttachment))
	}
	if cfg.metrics != nil {
		mux.Handle("GET /metrics", cfg.metrics.Handler())
	}
	if cfg.fallback != nil {
		mux.Handle("/", cfg.fallback)
	}

	var root http.Handler = mux
	if cfg.metrics != nil {
		root = cfg.metrics.middleware(root)
	}
	root = corsMiddleware(root)
	root = recoveryMiddleware(cfg.logger, cfg.reporter, root)
	if cfg.enableLogging {
		root = loggingMiddleware(cfg.logger, handler.settings.LogTags(), root)
	}
	root = rateLimitMiddleware(cfg.rateLimiter, root)
	if handler.settings.ForceSSL {
		root = forceSSLMiddleware(root)
	}
	root = requestIDMiddleware(root)

	return root
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Requested-With")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID,Location")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// forceSSLMiddleware redirects plain HTTP to https and marks secure responses with
// Strict-Transport-Security. The health check stays reachable over HTTP.
func forceSSLMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSecure(r) {
			w.Header().Set("Strict-Transport-Security", hstsValue)
			next.ServeHTTP(w, r)
			return
		}
		if r.URL.Path == healthPath {
			next.ServeHTTP(w, r)
			return
		}

		target := "https://" + r.Host + r.URL.RequestURI()
		status := http.StatusMovedPermanently
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			status = http.StatusTemporaryRedirect
		}
		http.Redirect(w, r, target, status)
	})
}

func isSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}

func loggingMiddleware(logger *zap.Logger, tags []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", duration),
		}
		fields = append(fields, logging.TagFields(r, tags, requestIDFromContext(r.Context()))...)
		logger.Info("request completed", fields...)
	})
}

func recoveryMiddleware(logger *zap.Logger, reporter errorreport.Reporter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic recovered",
					zap.Any("error", rec),
					zap.String("request_id", requestIDFromContext(r.Context())),
				)
				if reporter != nil {
					reporter.Report(r, panicError(rec))
				}
				writeError(w, http.StatusInternalServerError, "Internal error", "unexpected server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func panicError(rec any) error {
	if err, ok := rec.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", rec)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := sanitizeRequestID(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := contextWithRequestID(r.Context(), requestID)

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sanitizeRequestID keeps alphanumerics and dashes of a client supplied id.
func sanitizeRequestID(raw string) string {
	id := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return -1
		}
	}, raw)
	if len(id) > maxRequestIDLength {
		id = id[:maxRequestIDLength]
	}
	return id
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
