package bundler

import (
	"github.com/evanw/esbuild/pkg/api"
	poderr "github.com/podev-dev/podev/internal/errors"
)

// BuildClient runs a one-shot, non-incremental client build. Used by the
// production build path, which carries no session, no watch and no reload
// endpoint.
func BuildClient(entries []string, outdir string, minify bool) ([]string, error) {
	res := api.Build(api.BuildOptions{
		EntryPoints:       entries,
		Outdir:            outdir,
		Bundle:            true,
		Write:             true,
		Format:            api.FormatESModule,
		Platform:          api.PlatformBrowser,
		MinifyWhitespace:  minify,
		MinifyIdentifiers: minify,
		MinifySyntax:      minify,
		LogLevel:          api.LogLevelSilent,
	})
	if len(res.Errors) > 0 {
		return nil, &poderr.BundleFailure{Diagnostics: convertMessages(res.Errors)}
	}

	outputs := make([]string, 0, len(res.OutputFiles))
	for _, f := range res.OutputFiles {
		outputs = append(outputs, f.Path)
	}
	return outputs, nil
}
