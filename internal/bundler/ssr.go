package bundler

import (
	"context"
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
	poderr "github.com/podev-dev/podev/internal/errors"
)

// SSRBundler produces single-file SSR-importable bundles with esbuild. The
// component rendering library stays external so the imported module shares
// one library instance with the host process.
type SSRBundler struct {
	external []string
	minify   bool
}

// NewSSRBundler creates a bundler with the given external specifiers.
func NewSSRBundler(external []string, minify bool) *SSRBundler {
	return &SSRBundler{external: external, minify: minify}
}

// BundleElement bundles the component source at src into a single ESM file
// at out.
func (b *SSRBundler) BundleElement(ctx context.Context, src, out string) error {
	if err := os.MkdirAll(filepath.Dir(out), 0750); err != nil {
		return err
	}

	res := api.Build(api.BuildOptions{
		EntryPoints:       []string{src},
		Outfile:           out,
		Bundle:            true,
		Write:             true,
		Format:            api.FormatESModule,
		Platform:          api.PlatformNode,
		External:          b.external,
		MinifyWhitespace:  b.minify,
		MinifyIdentifiers: b.minify,
		MinifySyntax:      b.minify,
		LogLevel:          api.LogLevelSilent,
	})
	if len(res.Errors) > 0 {
		return &poderr.BundleFailure{Diagnostics: convertMessages(res.Errors)}
	}
	return nil
}
