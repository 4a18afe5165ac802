// Package errorreport sends unexpected request errors to Google Cloud Error Reporting
// when credentials are configured, and to the application log otherwise.
package errorreport

import (
	"context"
	"fmt"
	"net/http"

	"cloud.google.com/go/errorreporting"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/eugenenazirov/webhost/internal/settings"
)

// Reporter receives errors raised while serving requests.
type Reporter interface {
	Report(r *http.Request, err error)
	Close() error
}

// LogReporter writes reported errors to a zap logger.
type LogReporter struct {
	logger *zap.Logger
}

// NewLogReporter creates a LogReporter.
func NewLogReporter(logger *zap.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// Report logs err at error level.
func (l *LogReporter) Report(r *http.Request, err error) {
	fields := []zap.Field{zap.Error(err)}
	if r != nil {
		fields = append(fields,
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
	}
	l.logger.Error("request error", fields...)
}

// Close is a no-op.
func (l *LogReporter) Close() error {
	return nil
}

// cloudClient is the subset of *errorreporting.Client used here.
type cloudClient interface {
	Report(e errorreporting.Entry)
	Close() error
}

// CloudReporter forwards errors to Google Cloud Error Reporting.
type CloudReporter struct {
	client cloudClient
}

// Report sends err together with the request that produced it.
func (c *CloudReporter) Report(r *http.Request, err error) {
	c.client.Report(errorreporting.Entry{Error: err, Req: r})
}

// Close flushes pending entries and releases the client.
func (c *CloudReporter) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close error reporting client: %w", err)
	}
	return nil
}

// New returns a CloudReporter when gc carries a project id. A nil section, an empty
// project or a client that cannot be created yields a LogReporter; startup never
// fails because of error reporting.
func New(ctx context.Context, gc *settings.GoogleCloud, service string, logger *zap.Logger) Reporter {
	if !gc.Configured() {
		logger.Info("error reporting to log", zap.Bool("google_cloud_section", gc != nil))
		return NewLogReporter(logger)
	}

	var opts []option.ClientOption
	if gc.Keyfile != "" {
		opts = append(opts, option.WithCredentialsFile(gc.Keyfile))
	}

	client, err := errorreporting.NewClient(ctx, gc.ProjectID, errorreporting.Config{
		ServiceName: service,
		OnError: func(err error) {
			logger.Warn("error reporting delivery failed", zap.Error(err))
		},
	}, opts...)
	if err != nil {
		logger.Warn("google cloud error reporting unavailable, reporting to log",
			zap.String("project_id", gc.ProjectID),
			zap.Error(err),
		)
		return NewLogReporter(logger)
	}

	logger.Info("error reporting to google cloud", zap.String("project_id", gc.ProjectID))
	return &CloudReporter{client: client}
}
