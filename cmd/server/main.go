package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/webhost/internal/application"
	"github.com/eugenenazirov/webhost/internal/config"
	"github.com/eugenenazirov/webhost/internal/logging"
	"github.com/eugenenazirov/webhost/internal/settings"
)

var signalNotify = signal.Notify

type cliFlags struct {
	configFile       *string
	port             *string
	publicDir        *string
	rateLimitRPS     *float64
	rateLimitBurst   *int
	errorReporting   *bool
	attachments      *bool
	printSettings    *bool
	precompileAssets *bool

	errorReportingSet bool
	attachmentsSet    bool
}

func newCLI() (*kingpin.Application, *cliFlags) {
	app := kingpin.New("webhost", "Production web host - serves the public directory and API with production settings")
	f := &cliFlags{}
	f.configFile = app.Flag("config", "Path to YAML configuration file").String()
	f.port = app.Flag("port", "HTTP port exposed by the service").String()
	f.publicDir = app.Flag("public-dir", "Directory served by the public file server").String()
	f.rateLimitRPS = app.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	f.rateLimitBurst = app.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()
	f.errorReporting = app.Flag("error-reporting", "Enable Google Cloud error reporting when credentials are present").IsSetByUser(&f.errorReportingSet).Bool()
	f.attachments = app.Flag("attachments", "Enable attachment storage and variant processing").IsSetByUser(&f.attachmentsSet).Bool()
	f.printSettings = app.Flag("print-settings", "Print the applied settings as YAML and exit").Bool()
	f.precompileAssets = app.Flag("precompile-assets", "Fingerprint public assets, write the manifest and exit").Bool()
	return app, f
}

func (f *cliFlags) overrides() *config.CLIOverrides {
	overrides := &config.CLIOverrides{
		ConfigFile: *f.configFile,
	}

	if *f.port != "" {
		overrides.Port = f.port
	}

	if *f.publicDir != "" {
		overrides.PublicDir = f.publicDir
	}

	if *f.rateLimitRPS >= 0 {
		overrides.RateLimitRPS = f.rateLimitRPS
	}

	if *f.rateLimitBurst >= 0 {
		overrides.RateLimitBurst = f.rateLimitBurst
	}

	if f.errorReportingSet {
		overrides.ErrorReporting = f.errorReporting
	}

	if f.attachmentsSet {
		overrides.Attachments = f.attachments
	}

	return overrides
}

func main() {
	kingpinApp, flags := newCLI()
	kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	cfg, err := config.Load(flags.overrides())
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	s := settings.Apply(settings.EnvironFromOS(), cfg.Capabilities())

	if *flags.printSettings {
		if err := printSettings(os.Stdout, s); err != nil {
			panic(fmt.Sprintf("failed to print settings: %v", err))
		}
		return
	}

	logger, err := logging.New(s.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	app, err := application.New(cfg, s, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("failed to close error reporter", zap.Error(err))
		}
	}()

	if *flags.precompileAssets {
		count, err := app.Assets().Precompile()
		if err != nil {
			logger.Fatal("failed to precompile assets", zap.Error(err))
		}
		logger.Info("assets precompiled", zap.Int("count", count), zap.String("dir", app.Assets().Dir()))
		return
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
}

// printSettings writes the flattened settings as YAML.
func printSettings(w io.Writer, s settings.Settings) error {
	out, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
