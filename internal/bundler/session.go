// Package bundler owns the incremental build context for the client bundle
// and the one-shot SSR bundling used by the element importer.
//
// The incremental session is backed by esbuild's context API. A session is
// never repaired in place: when its module graph goes stale the manager
// disposes it and opens a fresh one, rerunning entry-point discovery.
package bundler

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	poderr "github.com/podev-dev/podev/internal/errors"
)

// Session is one incremental build session. Rebuild reuses the previously
// computed module graph; Inputs reports that graph's source files as of the
// last successful build.
type Session interface {
	Rebuild(ctx context.Context) (Result, error)
	Inputs() []string
	Dispose()
}

// Result describes one successful build.
type Result struct {
	OutputFiles []string
	Inputs      []string
	Duration    time.Duration
}

// SessionFactory opens a session over an entry-point list. Entries may be
// empty when no logical entry file exists yet.
type SessionFactory func(entries []string, outdir string) (Session, error)

type esbuildSession struct {
	ctx    api.BuildContext
	inputs []string
}

// NewEsbuildSession opens an incremental esbuild context writing browser
// bundles under outdir.
func NewEsbuildSession(entries []string, outdir string) (Session, error) {
	buildCtx, ctxErr := api.Context(api.BuildOptions{
		EntryPoints: entries,
		Outdir:      outdir,
		Bundle:      true,
		Write:       true,
		Metafile:    true,
		Format:      api.FormatESModule,
		Platform:    api.PlatformBrowser,
		Sourcemap:   api.SourceMapLinked,
		LogLevel:    api.LogLevelSilent,
	})
	if ctxErr != nil {
		return nil, &poderr.BundleFailure{Diagnostics: convertMessages(ctxErr.Errors)}
	}
	return &esbuildSession{ctx: buildCtx}, nil
}

func (s *esbuildSession) Rebuild(ctx context.Context) (Result, error) {
	start := time.Now()
	res := s.ctx.Rebuild()

	if len(res.Errors) > 0 {
		// A graph input deleted mid-session surfaces as a build error here;
		// classify it so the manager takes the dispose+recreate path rather
		// than reporting a source-level failure.
		if missing, stale := s.staleInput(); stale {
			return Result{}, &poderr.RebuildError{
				Path: missing,
				Err:  &poderr.BundleFailure{Diagnostics: convertMessages(res.Errors)},
			}
		}
		return Result{}, &poderr.BundleFailure{Diagnostics: convertMessages(res.Errors)}
	}

	s.inputs = metafileInputs(res.Metafile)

	outputs := make([]string, 0, len(res.OutputFiles))
	for _, f := range res.OutputFiles {
		outputs = append(outputs, f.Path)
	}

	return Result{
		OutputFiles: outputs,
		Inputs:      s.inputs,
		Duration:    time.Since(start),
	}, nil
}

func (s *esbuildSession) Inputs() []string {
	return s.inputs
}

func (s *esbuildSession) Dispose() {
	s.ctx.Dispose()
}

// staleInput reports whether a file from the recorded module graph is no
// longer on disk.
func (s *esbuildSession) staleInput() (string, bool) {
	for _, input := range s.inputs {
		if _, err := os.Stat(input); os.IsNotExist(err) {
			return input, true
		}
	}
	return "", false
}

// metafileInputs extracts the graph's source files from an esbuild metafile.
func metafileInputs(metafile string) []string {
	if metafile == "" {
		return nil
	}
	var meta struct {
		Inputs map[string]json.RawMessage `json:"inputs"`
	}
	if err := json.Unmarshal([]byte(metafile), &meta); err != nil {
		return nil
	}
	inputs := make([]string, 0, len(meta.Inputs))
	for path := range meta.Inputs {
		inputs = append(inputs, path)
	}
	return inputs
}

func convertMessages(msgs []api.Message) []*poderr.BundleError {
	diags := make([]*poderr.BundleError, 0, len(msgs))
	for _, m := range msgs {
		d := &poderr.BundleError{
			Message:  m.Text,
			Severity: poderr.ErrorSeverityError,
		}
		if m.Location != nil {
			d.File = m.Location.File
			d.Line = m.Location.Line
			d.Column = m.Location.Column
		}
		diags = append(diags, d)
	}
	return diags
}
