package bundler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	poderr "github.com/podev-dev/podev/internal/errors"
	"github.com/podev-dev/podev/internal/logging"
	"github.com/podev-dev/podev/internal/resolve"
)

// Manager owns the active build context: the incremental session plus its
// reload endpoint. At most one context is active at a time; recovery from a
// stale module graph replaces the context wholesale (Active -> Disposed ->
// Active'), it never mutates one in place.
type Manager struct {
	root     string
	outdir   string
	sessions SessionFactory
	reloads  func() ReloadServer
	log      logging.Logger

	mutex   sync.Mutex
	current *buildContext
}

type buildContext struct {
	session Session
	reload  ReloadServer
	entries []string
	outputs []string
}

// NewManager creates a build context manager. sessions opens incremental
// sessions, reloads constructs the per-context reload endpoint.
func NewManager(root, outdir string, sessions SessionFactory, reloads func() ReloadServer, log logging.Logger) *Manager {
	return &Manager{
		root:     root,
		outdir:   outdir,
		sessions: sessions,
		reloads:  reloads,
		log:      log.WithComponent("bundler"),
	}
}

// Create resolves the logical entry points, opens an incremental session over
// the ones that exist, runs the initial build, and starts the reload
// endpoint. Any previously active context must have been disposed first.
func (m *Manager) Create(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.createLocked(ctx)
}

func (m *Manager) createLocked(ctx context.Context) error {
	entries := resolve.Existing(m.root)

	session, err := m.sessions(entries, m.outdir)
	if err != nil {
		return fmt.Errorf("opening build session: %w", err)
	}

	reload := m.reloads()
	if err := reload.Start(); err != nil {
		session.Dispose()
		return err
	}

	bc := &buildContext{session: session, reload: reload, entries: entries}

	// The initial build may fail on a source-level error; that keeps the dev
	// loop alive, a later change event retries through Rebuild.
	res, err := session.Rebuild(ctx)
	if err != nil {
		m.log.Error(ctx, err, "initial build failed", "entries", entries)
	} else {
		bc.outputs = res.OutputFiles
		m.log.Info(ctx, "build context created",
			"entries", len(entries), "outputs", len(res.OutputFiles), "duration", res.Duration)
	}

	m.current = bc
	return nil
}

// Rebuild re-runs the incremental build on the active session. A stale module
// graph (RebuildError) triggers exactly one dispose+create cycle, rerunning
// entry-point discovery from scratch. On success a reload signal is broadcast
// to subscribed browsers.
func (m *Manager) Rebuild(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.current == nil {
		return m.createLocked(ctx)
	}

	res, err := m.current.session.Rebuild(ctx)
	if err == nil {
		m.current.outputs = res.OutputFiles
		m.current.reload.Broadcast(ReloadMessage{Type: "reload"})
		m.log.Debug(ctx, "rebuild complete", "duration", res.Duration, "outputs", len(res.OutputFiles))
		return nil
	}

	var stale *poderr.RebuildError
	if errors.As(err, &stale) {
		m.log.Debug(ctx, "build graph stale, recreating context", "input", stale.Path)
		m.disposeLocked()
		return m.createLocked(ctx)
	}

	var failure *poderr.BundleFailure
	if errors.As(err, &failure) {
		m.current.reload.Broadcast(ReloadMessage{
			Type:    "build_error",
			Content: poderr.FormatForBrowser(failure.Diagnostics),
		})
	}
	return err
}

// Dispose tears down the active context and its reload endpoint. Safe to call
// with no active context.
func (m *Manager) Dispose() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.disposeLocked()
}

func (m *Manager) disposeLocked() {
	if m.current == nil {
		return
	}
	m.current.session.Dispose()
	if err := m.current.reload.Close(); err != nil {
		m.log.Error(context.Background(), err, "closing reload endpoint")
	}
	m.current = nil
}

// Entries returns the entry-point list of the active context.
func (m *Manager) Entries() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.current == nil {
		return nil
	}
	return append([]string(nil), m.current.entries...)
}

// Outputs returns the output files of the last successful build.
func (m *Manager) Outputs() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.current == nil {
		return nil
	}
	return append([]string(nil), m.current.outputs...)
}

// Active reports whether a build context is currently live.
func (m *Manager) Active() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.current != nil
}
