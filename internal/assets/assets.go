// Package assets resolves logical asset names to the fingerprinted files served from
// the public directory.
package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/eugenenazirov/webhost/internal/settings"
)

const (
	// URLPrefix is the public URL path assets are served under.
	URLPrefix = "/assets/"
	// ManifestName is the manifest file inside the assets directory.
	ManifestName = ".manifest.json"

	digestLength = 16
)

var (
	// ErrNotPrecompiled is returned when an asset is missing from the manifest and
	// on-demand compilation is disabled.
	ErrNotPrecompiled = errors.New("asset is not present in the precompiled manifest")
	// ErrInvalidName is returned for empty or escaping logical names.
	ErrInvalidName = errors.New("asset name must be a relative path inside the assets directory")
)

type manifestFile struct {
	Assets map[string]string `json:"assets"`
}

// Pipeline maps logical asset names to public URLs.
type Pipeline struct {
	compile bool
	digest  bool
	dir     string

	mu       sync.RWMutex
	manifest map[string]string
}

// New creates a Pipeline for the assets directory under publicDir. A missing manifest
// is treated as empty.
func New(cfg settings.Assets, publicDir string) (*Pipeline, error) {
	p := &Pipeline{
		compile:  cfg.Compile,
		digest:   cfg.Digest,
		dir:      filepath.Join(publicDir, strings.Trim(URLPrefix, "/")),
		manifest: map[string]string{},
	}

	if !p.digest {
		return p, nil
	}

	manifest, err := readManifest(filepath.Join(p.dir, ManifestName))
	if err != nil {
		return nil, err
	}
	p.manifest = manifest
	return p, nil
}

// Dir returns the assets directory on disk.
func (p *Pipeline) Dir() string {
	return p.dir
}

// Path returns the public URL for the logical asset name.
func (p *Pipeline) Path(name string) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}

	if !p.digest {
		return URLPrefix + clean, nil
	}

	p.mu.RLock()
	digested, ok := p.manifest[clean]
	p.mu.RUnlock()
	if ok {
		return URLPrefix + digested, nil
	}

	if !p.compile {
		return "", fmt.Errorf("%w: %s", ErrNotPrecompiled, clean)
	}

	digested, err = p.compileAsset(clean)
	if err != nil {
		return "", err
	}
	return URLPrefix + digested, nil
}

// compileAsset fingerprints a source file and writes the digested copy next to it.
func (p *Pipeline) compileAsset(name string) (string, error) {
	content, err := os.ReadFile(filepath.Join(p.dir, filepath.FromSlash(name)))
	if err != nil {
		return "", fmt.Errorf("read asset %s: %w", name, err)
	}

	digested := Fingerprint(name, content)
	if err := os.WriteFile(filepath.Join(p.dir, filepath.FromSlash(digested)), content, 0o644); err != nil {
		return "", fmt.Errorf("write asset %s: %w", digested, err)
	}

	p.mu.Lock()
	p.manifest[name] = digested
	p.mu.Unlock()
	return digested, nil
}

// Precompile fingerprints every source file in the assets directory and rewrites the
// manifest from scratch. Files already carrying a digest are not sources; digested
// copies of older versions stay on disk but leave the manifest. It returns the number
// of assets in the manifest.
func (p *Pipeline) Precompile() (int, error) {
	var sources []string
	err := filepath.WalkDir(p.dir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") || isDigested(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(p.dir, file)
		if err != nil {
			return err
		}
		sources = append(sources, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk assets: %w", err)
	}

	sort.Strings(sources)
	manifest := make(map[string]string, len(sources))
	for _, name := range sources {
		digested, err := p.compileAsset(name)
		if err != nil {
			return 0, err
		}
		manifest[name] = digested
	}

	p.mu.Lock()
	p.manifest = manifest
	p.mu.Unlock()

	if err := p.writeManifest(); err != nil {
		return 0, err
	}
	return len(manifest), nil
}

// isDigested reports whether base has the "<stem>-<digest><ext>" shape Fingerprint produces.
func isDigested(base string) bool {
	stem := strings.TrimSuffix(base, path.Ext(base))
	i := strings.LastIndexByte(stem, '-')
	if i < 0 || len(stem)-i-1 != digestLength {
		return false
	}
	for _, c := range stem[i+1:] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func (p *Pipeline) writeManifest() error {
	p.mu.RLock()
	data, err := json.MarshalIndent(manifestFile{Assets: p.manifest}, "", "  ")
	p.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(p.dir, ManifestName), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Fingerprint inserts a content digest before the extension of name:
// "app.css" becomes "app-<digest>.css".
func Fingerprint(name string, content []byte) string {
	sum := sha256.Sum256(content)
	digest := hex.EncodeToString(sum[:])[:digestLength]

	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + "-" + digest + ext
}

func readManifest(file string) (map[string]string, error) {
	data, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m manifestFile
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Assets == nil {
		m.Assets = map[string]string{}
	}
	return m.Assets, nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), URLPrefix)
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return "", ErrInvalidName
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", ErrInvalidName, name)
	}
	return clean, nil
}
