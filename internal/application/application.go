package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/webhost/internal/api"
	"github.com/eugenenazirov/webhost/internal/assets"
	"github.com/eugenenazirov/webhost/internal/attachments"
	"github.com/eugenenazirov/webhost/internal/config"
	"github.com/eugenenazirov/webhost/internal/errorreport"
	"github.com/eugenenazirov/webhost/internal/settings"
	"github.com/eugenenazirov/webhost/internal/storage"
)

// ServiceName identifies this process to error reporting.
const ServiceName = "webhost"

const indexFile = "index.html"

// App encapsulates the application dependencies and HTTP server.
type App struct {
	settings    settings.Settings
	storage     storage.Storage
	attachments *attachments.Service
	assets      *assets.Pipeline
	reporter    errorreport.Reporter
	handler     *api.Handler
	router      http.Handler
	logger      *zap.Logger
	server      *http.Server
}

// New initializes the application from configuration and the applied settings.
func New(cfg config.Config, s settings.Settings, logger *zap.Logger) (*App, error) {
	publicDir, err := resolvePublicDir(cfg.PublicDir)
	if err != nil {
		return nil, err
	}

	pipeline, err := assets.New(s.Assets, publicDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load assets: %w", err)
	}

	staticHandler, err := BuildStaticHandler(s, pipeline, publicDir)
	if err != nil {
		return nil, fmt.Errorf("failed to build static handler: %w", err)
	}

	store := storage.NewMemoryStorage()
	reporter := errorreport.New(context.Background(), s.GoogleCloud(), ServiceName, logger)

	handlerOpts := []api.HandlerOption{api.WithReporter(reporter)}
	var svc *attachments.Service
	if s.ActiveStorage() != nil {
		svc, err = attachments.New(s.ActiveStorage(), store)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment service: %w", err)
		}
		handlerOpts = append(handlerOpts, api.WithAttachments(svc))
	}

	handler := api.NewHandler(s, handlerOpts...)
	router := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithMetrics(api.NewMetrics()),
		api.WithPanicReporter(reporter),
		api.WithFallback(staticHandler),
	)

	return &App{
		settings:    s,
		storage:     store,
		attachments: svc,
		assets:      pipeline,
		reporter:    reporter,
		handler:     handler,
		router:      router,
		logger:      logger,
		server:      NewServer(cfg, router),
	}, nil
}

// BuildStaticHandler serves the public directory. The index page is rendered as a
// template with an asset_path helper; every other existing file is served as-is. Both
// carry the configured public file server headers. When the public file server is disabled
// every request gets a 404.
func BuildStaticHandler(s settings.Settings, pipeline *assets.Pipeline, publicDir string) (http.Handler, error) {
	if !s.PublicFileServer.Enabled {
		return http.NotFoundHandler(), nil
	}

	index, err := loadIndexTemplate(publicDir, pipeline)
	if err != nil {
		return nil, err
	}

	files := http.FileServer(http.Dir(publicDir))
	headers := s.PublicFileServer.Headers()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.NotFound(w, r)
			return
		}

		name := path.Clean("/" + r.URL.Path)
		if name == "/" || name == "/"+indexFile {
			if index == nil {
				http.NotFound(w, r)
				return
			}
			renderIndex(w, index, headers)
			return
		}

		if !servable(publicDir, name) {
			http.NotFound(w, r)
			return
		}
		copyHeaders(w.Header(), headers)
		files.ServeHTTP(w, r)
	}), nil
}

func loadIndexTemplate(publicDir string, pipeline *assets.Pipeline) (*template.Template, error) {
	file := filepath.Join(publicDir, indexFile)
	if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	tmpl, err := template.New(indexFile).Funcs(template.FuncMap{
		"asset_path": pipeline.Path,
	}).ParseFiles(file)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", indexFile, err)
	}
	return tmpl, nil
}

func renderIndex(w http.ResponseWriter, tmpl *template.Template, headers http.Header) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, nil); err != nil {
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	copyHeaders(w.Header(), headers)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		dst[key] = append([]string(nil), values...)
	}
}

// servable reports whether name refers to a regular, non-hidden file under publicDir.
func servable(publicDir, name string) bool {
	for _, segment := range strings.Split(strings.TrimPrefix(name, "/"), "/") {
		if strings.HasPrefix(segment, ".") {
			return false
		}
	}
	info, err := os.Stat(filepath.Join(publicDir, filepath.FromSlash(name)))
	return err == nil && info.Mode().IsRegular()
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening",
			zap.String("addr", a.server.Addr),
			zap.Bool("force_ssl", a.settings.ForceSSL),
			zap.Bool("attachments", a.attachments != nil),
			zap.Bool("error_reporting", a.settings.GoogleCloud().Configured()),
		)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Assets returns the asset pipeline serving the public directory.
func (a *App) Assets() *assets.Pipeline {
	return a.assets
}

// Close flushes and releases the error reporter.
func (a *App) Close() error {
	return a.reporter.Close()
}

// resolvePublicDir returns dir when it exists, otherwise a relative dir is looked up
// from the project root.
func resolvePublicDir(dir string) (string, error) {
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return filepath.Abs(dir)
	}
	if filepath.IsAbs(dir) {
		return "", fmt.Errorf("public directory %s does not exist", dir)
	}
	return resolveProjectPath(dir)
}

// resolveProjectPath locates a file or directory relative to the project root by walking up the directory tree.
func resolveProjectPath(relative string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, relative)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("unable to locate %s", relative)
}
