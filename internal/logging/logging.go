package logging

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eugenenazirov/webhost/internal/settings"
)

// New creates a production-ready structured logger configured for JSON output at the
// given level.
func New(level settings.LogLevel) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(level))
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.DisableStacktrace = false

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func zapLevel(level settings.LogLevel) zapcore.Level {
	switch level {
	case settings.LogLevelDebug:
		return zapcore.DebugLevel
	case settings.LogLevelWarn:
		return zapcore.WarnLevel
	case settings.LogLevelError:
		return zapcore.ErrorLevel
	case settings.LogLevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// TagFields resolves request log tags into zap fields. Unknown tags are skipped.
func TagFields(r *http.Request, tags []string, requestID string) []zap.Field {
	fields := make([]zap.Field, 0, len(tags))
	for _, tag := range tags {
		switch tag {
		case settings.LogTagRequestID:
			fields = append(fields, zap.String(tag, requestID))
		case settings.LogTagRemoteIP:
			fields = append(fields, zap.String(tag, RemoteIP(r)))
		case settings.LogTagHost:
			fields = append(fields, zap.String(tag, hostname(r)))
		case settings.LogTagSubdomain:
			fields = append(fields, zap.String(tag, subdomain(hostname(r))))
		}
	}
	return fields
}

// RemoteIP returns the first X-Forwarded-For hop, falling back to the peer address.
func RemoteIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
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

func hostname(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}

// subdomain drops the last two labels of host; IP addresses have no subdomain.
func subdomain(host string) string {
	if net.ParseIP(host) != nil {
		return ""
	}
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return ""
	}
	return strings.Join(labels[:len(labels)-2], ".")
}
