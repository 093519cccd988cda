// Package importer bundles and imports UI component files on demand,
// populating the element registry.
//
// Import behavior forks on mode. Outside development an already-registered
// tag is returned immediately with no I/O, guaranteeing at most one
// registered definition per tag for the life of the process; concurrent
// imports of one tag all resolve to that definition. In development every
// call re-bundles and re-imports under a fresh module version so edited
// component code is always observed.
package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	poderr "github.com/podev-dev/podev/internal/errors"
	"github.com/podev-dev/podev/internal/logging"
	"github.com/podev-dev/podev/internal/registry"
)

// Bundler produces a single-file SSR-importable bundle from a component
// source file.
type Bundler interface {
	BundleElement(ctx context.Context, src, out string) error
}

// Loader evaluates an SSR bundle under a module identity version and reports
// the element's observed-attribute list.
type Loader interface {
	Load(ctx context.Context, bundlePath string, version uint64) ([]string, error)
}

// Importer imports elements into a registry.
type Importer struct {
	appName     string
	development bool
	outdir      string
	registry    *registry.ElementRegistry
	bundler     Bundler
	loader      Loader
	log         logging.Logger

	// version is the module identity counter; incremented on every
	// development-mode import so repeated imports never hit a cached module.
	version atomic.Uint64

	// digests records the source-content hash each bundle was produced from,
	// so an up-to-date bundle on disk is not re-bundled outside development.
	digests   map[string]uint64
	digestsMu sync.Mutex
}

// New creates an importer writing SSR bundles under outdir.
func New(appName string, development bool, outdir string, reg *registry.ElementRegistry, bundler Bundler, loader Loader, log logging.Logger) *Importer {
	return &Importer{
		appName:     appName,
		development: development,
		outdir:      outdir,
		registry:    reg,
		bundler:     bundler,
		loader:      loader,
		log:         log.WithComponent("importer"),
		digests:     make(map[string]uint64),
	}
}

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// ElementName derives the canonical component name from a source file path.
func ElementName(path string) (string, error) {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.ToLower(name)
	if !namePattern.MatchString(name) {
		return "", &poderr.InvalidPathError{Path: path}
	}
	return name, nil
}

// ImportElement bundles, imports and registers the component at path,
// returning its definition.
//
// In development mode bundling and import failures are swallowed: they are
// logged and a nil definition is returned so the dev loop stays alive.
// Outside development they fail the call.
func (im *Importer) ImportElement(ctx context.Context, path string) (*registry.ElementDefinition, error) {
	name, err := ElementName(path)
	if err != nil {
		return nil, err
	}
	tag := im.appName + "-" + name

	// Production fast path: at most one bundle/import per tag.
	if !im.development {
		if def, ok := im.registry.Get(tag); ok {
			return def, nil
		}
	}

	bundlePath := filepath.Join(im.outdir, name+".js")

	if im.needsBundle(path, bundlePath) {
		if err := im.bundler.BundleElement(ctx, path, bundlePath); err != nil {
			if im.development {
				im.log.Error(ctx, err, "bundling element failed", "element", tag, "path", path)
				return nil, nil
			}
			return nil, err
		}
		im.recordDigest(path)
	}

	version := im.version.Add(1)
	attrs, err := im.loader.Load(ctx, bundlePath, version)
	if err != nil {
		if im.development {
			im.log.Error(ctx, err, "importing element failed", "element", tag, "bundle", bundlePath)
			return nil, nil
		}
		return nil, err
	}

	def := &registry.ElementDefinition{
		Tag:                tag,
		ObservedAttributes: attrs,
		BundlePath:         bundlePath,
		Version:            version,
	}
	if err := im.registry.Define(def); err != nil {
		// Outside development two concurrent imports of one tag can both pass
		// the fast path; the loser's definition is discarded and the
		// registered one wins.
		var dup *poderr.DuplicateElementError
		if !im.development && errors.As(err, &dup) {
			if existing, ok := im.registry.Get(tag); ok {
				return existing, nil
			}
		}
		return nil, err
	}

	im.log.Debug(ctx, "element imported", "element", tag, "version", version)
	return def, nil
}

// needsBundle reports whether the SSR bundle must be (re)produced: always in
// development, otherwise when the bundle is absent or its source digest no
// longer matches the file on disk.
func (im *Importer) needsBundle(src, bundlePath string) bool {
	if im.development {
		return true
	}
	if _, err := os.Stat(bundlePath); err != nil {
		return true
	}

	content, err := os.ReadFile(src)
	if err != nil {
		return true
	}
	im.digestsMu.Lock()
	defer im.digestsMu.Unlock()
	recorded, ok := im.digests[src]
	return !ok || recorded != xxhash.Sum64(content)
}

func (im *Importer) recordDigest(src string) {
	content, err := os.ReadFile(src)
	if err != nil {
		return
	}
	im.digestsMu.Lock()
	im.digests[src] = xxhash.Sum64(content)
	im.digestsMu.Unlock()
}
