package settings

import (
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/caarlos0/env/v10"
)

// Environment variables read by Apply.
const (
	EnvGoogleCloudProject = "GOOGLE_CLOUD_PROJECT"
	EnvGoogleCloudKeyfile = "GOOGLE_CLOUD_KEYFILE"
)

// Log tag names understood by the request logger.
const (
	LogTagRequestID = "request_id"
	LogTagRemoteIP  = "remote_ip"
	LogTagHost      = "host"
	LogTagSubdomain = "subdomain"
)

const publicCacheControl = "public, max-age=3600"

// Environ is a snapshot of the process environment keyed by variable name.
type Environ map[string]string

// EnvironFromOS captures the current process environment.
func EnvironFromOS() Environ {
	environ := make(Environ)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		environ[key] = value
	}
	return environ
}

// Capabilities lists the optional integrations linked into this process.
type Capabilities struct {
	ErrorReporting bool
	Attachments    bool
}

// Settings is the production configuration of the host. Values are built by Apply;
// collections and optional sections are only exposed as copies.
type Settings struct {
	ForceSSL         bool
	PublicFileServer PublicFileServer
	LogLevel         LogLevel
	Assets           Assets

	googleCloud   *GoogleCloud
	activeStorage *ActiveStorage
	logTags       []string
}

// PublicFileServer controls serving files from the public directory.
type PublicFileServer struct {
	Enabled bool

	headers map[string]string
}

// Headers returns a copy of the headers attached to every public file response.
func (p PublicFileServer) Headers() http.Header {
	h := make(http.Header, len(p.headers))
	for name, value := range p.headers {
		h.Set(name, value)
	}
	return h
}

// Header returns a single public file header value, or "" when it is not configured.
func (p PublicFileServer) Header(name string) string {
	return p.headers[http.CanonicalHeaderKey(name)]
}

// Assets holds the asset pipeline flags.
type Assets struct {
	// Compile enables fingerprinting of assets missing from the precompiled manifest.
	Compile bool
	// Digest serves fingerprinted asset names.
	Digest bool
}

// GoogleCloud carries error-reporting credentials. Both fields are optional.
type GoogleCloud struct {
	ProjectID string `env:"GOOGLE_CLOUD_PROJECT"`
	Keyfile   string `env:"GOOGLE_CLOUD_KEYFILE"`
}

// Configured reports whether a project id is available.
func (g *GoogleCloud) Configured() bool {
	return g != nil && g.ProjectID != ""
}

// ActiveStorage configures the attachment subsystem.
type ActiveStorage struct {
	VariantProcessor VariantProcessor
}

// GoogleCloud returns a copy of the error-reporting section, or nil unless the
// error-reporting integration is enabled.
func (s Settings) GoogleCloud() *GoogleCloud {
	if s.googleCloud == nil {
		return nil
	}
	gc := *s.googleCloud
	return &gc
}

// ActiveStorage returns a copy of the attachment section, or nil unless the attachment
// integration is enabled.
func (s Settings) ActiveStorage() *ActiveStorage {
	if s.activeStorage == nil {
		return nil
	}
	as := *s.activeStorage
	return &as
}

// LogTags returns the sorted set of request log tags.
func (s Settings) LogTags() []string {
	return slices.Clone(s.logTags)
}

// HasLogTag reports whether tag is part of the request log tags.
func (s Settings) HasLogTag(tag string) bool {
	_, found := slices.BinarySearch(s.logTags, tag)
	return found
}

// Apply builds Settings from the environment and the enabled capabilities. Missing
// environment variables leave the matching fields empty; Apply never fails.
func Apply(environ Environ, caps Capabilities) Settings {
	s := Settings{
		ForceSSL: false,
		PublicFileServer: PublicFileServer{
			Enabled: true,
			headers: map[string]string{
				"Cache-Control": publicCacheControl,
			},
		},
		LogLevel: LogLevelInfo,
		Assets: Assets{
			Compile: false,
			Digest:  true,
		},
		logTags: []string{LogTagRequestID},
	}

	if caps.ErrorReporting {
		s.googleCloud = googleCloudFromEnv(environ)
	}

	if caps.Attachments {
		s.activeStorage = &ActiveStorage{
			VariantProcessor: VariantProcessorMiniMagick,
		}
	}

	return s
}

func googleCloudFromEnv(environ Environ) *GoogleCloud {
	gc := &GoogleCloud{}
	opts := env.Options{Environment: map[string]string(environ)}
	if environ == nil {
		opts.Environment = map[string]string{}
	}
	// String fields without `required` cannot fail to parse.
	if err := env.ParseWithOptions(gc, opts); err != nil {
		return &GoogleCloud{}
	}
	return gc
}
