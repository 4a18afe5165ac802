package application

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/webhost/internal/assets"
	"github.com/eugenenazirov/webhost/internal/config"
	"github.com/eugenenazirov/webhost/internal/errorreport"
	"github.com/eugenenazirov/webhost/internal/settings"
)

func TestNewInitializesDependencies(t *testing.T) {
	cfg := baseTestConfig(":8085", newPublicDir(t))
	s := settings.Apply(settings.Environ{}, settings.Capabilities{Attachments: true})
	logger := zaptest.NewLogger(t)

	app, err := New(cfg, s, logger)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	if app.server == nil || app.router == nil || app.handler == nil || app.assets == nil {
		t.Fatalf("expected server, router, handler and assets to be initialized")
	}
	if app.attachments == nil {
		t.Fatalf("expected attachment service when the capability is enabled")
	}
	if _, ok := app.reporter.(*errorreport.LogReporter); !ok {
		t.Fatalf("expected log reporter without google cloud settings, got %T", app.reporter)
	}
	if app.Server() != app.server {
		t.Fatalf("Server accessor did not return underlying instance")
	}
	if app.Handler() == nil {
		t.Fatalf("expected Handler accessor to return the router")
	}
}

func TestNewWithoutAttachmentsCapability(t *testing.T) {
	cfg := baseTestConfig(":0", newPublicDir(t))
	s := settings.Apply(settings.Environ{}, settings.Capabilities{})

	app, err := New(cfg, s, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if app.attachments != nil {
		t.Fatalf("expected no attachment service")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/attachments", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for attachments, got %d", rec.Code)
	}
}

func TestNewReturnsErrorForMissingPublicDir(t *testing.T) {
	cfg := baseTestConfig(":0", filepath.Join(t.TempDir(), "missing"))
	s := settings.Apply(settings.Environ{}, settings.Capabilities{})

	if _, err := New(cfg, s, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected error for missing public directory")
	}
}

func TestNewReturnsErrorForCorruptManifest(t *testing.T) {
	dir := newPublicDir(t)
	writeTestFile(t, filepath.Join(dir, "assets", assets.ManifestName), "{broken")
	cfg := baseTestConfig(":0", dir)
	s := settings.Apply(settings.Environ{}, settings.Capabilities{})

	if _, err := New(cfg, s, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected error for corrupt manifest")
	}
}

func TestStaticHandlerServesFilesWithHeaders(t *testing.T) {
	dir := newPublicDir(t)
	s := settings.Apply(settings.Environ{}, settings.Capabilities{})
	handler := buildTestStaticHandler(t, s, dir)

	req := httptest.NewRequest(http.MethodGet, "/robots.txt", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=3600" {
		t.Fatalf("expected Cache-Control header, got %q", got)
	}
	if rec.Body.String() != "User-agent: *\n" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestStaticHandlerRendersIndexWithDigestedAssets(t *testing.T) {
	dir := newPublicDir(t)
	s := settings.Apply(settings.Environ{}, settings.Capabilities{})
	handler := buildTestStaticHandler(t, s, dir)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	want := assets.URLPrefix + assets.Fingerprint("application.css", []byte("body{}"))
	if !strings.Contains(rec.Body.String(), want) {
		t.Fatalf("expected index to link %s, got %s", want, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("unexpected content type %s", ct)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=3600" {
		t.Fatalf("expected Cache-Control header on the index, got %q", got)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, want, nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "body{}" {
		t.Fatalf("expected digested asset to be served, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestStaticHandlerFailsRenderForUnknownAsset(t *testing.T) {
	dir := newPublicDir(t)
	writeTestFile(t, filepath.Join(dir, "index.html"), `<script src="{{ asset_path "missing.js" }}"></script>`)
	s := settings.Apply(settings.Environ{}, settings.Capabilities{})
	handler := buildTestStaticHandler(t, s, dir)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for an asset missing from the manifest, got %d", rec.Code)
	}
	if rec.Header().Get("Cache-Control") != "" {
		t.Fatalf("expected no cache headers on a failed render")
	}
}

func TestStaticHandlerHidesDirectoriesAndDotfiles(t *testing.T) {
	dir := newPublicDir(t)
	s := settings.Apply(settings.Environ{}, settings.Capabilities{})
	handler := buildTestStaticHandler(t, s, dir)

	for _, target := range []string{"/assets/", "/assets/" + assets.ManifestName, "/missing.txt"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for %s, got %d", target, rec.Code)
		}
		if rec.Header().Get("Cache-Control") != "" {
			t.Fatalf("expected no cache headers on 404 for %s", target)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/robots.txt", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for POST, got %d", rec.Code)
	}
}

func TestStaticHandlerDisabled(t *testing.T) {
	dir := newPublicDir(t)
	s := settings.Apply(settings.Environ{}, settings.Capabilities{})
	s.PublicFileServer.Enabled = false
	handler := buildTestStaticHandler(t, s, dir)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/robots.txt", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when the public file server is disabled, got %d", rec.Code)
	}
}

func TestRouterServesStaticFilesThroughMiddleware(t *testing.T) {
	cfg := baseTestConfig(":0", newPublicDir(t))
	s := settings.Apply(settings.Environ{}, settings.Capabilities{})

	app, err := New(cfg, s, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/robots.txt", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id on static response")
	}
}

func TestNewServerAppliesConfig(t *testing.T) {
	cfg := baseTestConfig("9090", "")
	handler := http.NewServeMux()

	server := NewServer(cfg, handler)
	if server.Addr != ":9090" {
		t.Fatalf("expected address :9090, got %s", server.Addr)
	}
	if server.Handler != handler {
		t.Fatalf("expected handler to be applied")
	}
	if server.ReadHeaderTimeout != cfg.ReadHeaderTimeout ||
		server.WriteTimeout != cfg.WriteTimeout ||
		server.IdleTimeout != cfg.IdleTimeout {
		t.Fatalf("server timeouts do not match configuration")
	}
}

func TestResolveProjectPathFindsGoMod(t *testing.T) {
	path, err := resolveProjectPath("go.mod")
	if err != nil {
		t.Fatalf("resolveProjectPath returned error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected go.mod to exist at %s: %v", path, err)
	}
}

func TestResolvePublicDirFindsProjectPublicDir(t *testing.T) {
	dir, err := resolvePublicDir("public")
	if err != nil {
		t.Fatalf("resolvePublicDir returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "index.html")); err != nil {
		t.Fatalf("expected index.html in %s: %v", dir, err)
	}
}

func TestResolveProjectPathUnknownTarget(t *testing.T) {
	if _, err := resolveProjectPath("definitely-not-a-real-file"); err == nil {
		t.Fatalf("expected error for missing resource")
	}
}

func buildTestStaticHandler(t *testing.T, s settings.Settings, dir string) http.Handler {
	t.Helper()

	pipeline, err := assets.New(s.Assets, dir)
	if err != nil {
		t.Fatalf("assets.New returned error: %v", err)
	}
	handler, err := BuildStaticHandler(s, pipeline, dir)
	if err != nil {
		t.Fatalf("BuildStaticHandler returned error: %v", err)
	}
	return handler
}

// newPublicDir creates a precompiled public directory.
func newPublicDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	css := []byte("body{}")
	digested := assets.Fingerprint("application.css", css)
	writeTestFile(t, filepath.Join(dir, "robots.txt"), "User-agent: *\n")
	writeTestFile(t, filepath.Join(dir, "index.html"), `<link rel="stylesheet" href="{{ asset_path "application.css" }}">`)
	writeTestFile(t, filepath.Join(dir, "assets", "application.css"), string(css))
	writeTestFile(t, filepath.Join(dir, "assets", digested), string(css))
	writeTestFile(t, filepath.Join(dir, "assets", assets.ManifestName),
		`{"assets": {"application.css": "`+digested+`"}}`)
	return dir
}

func writeTestFile(t *testing.T, file, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", file, err)
	}
}

func baseTestConfig(port, publicDir string) config.Config {
	return config.Config{
		Port:                 port,
		PublicDir:            publicDir,
		ShutdownGracePeriod:  50 * time.Millisecond,
		ReadHeaderTimeout:    20 * time.Millisecond,
		WriteTimeout:         30 * time.Millisecond,
		IdleTimeout:          40 * time.Millisecond,
		EnableRequestLogging: false,
		RateLimitRPS:         0,
		RateLimitBurst:       0,
	}
}
