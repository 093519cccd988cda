package watch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podev-dev/podev/internal/logging"
)

type fakeRebuilder struct {
	rebuilds int
	disposes int
	err      error
}

func (b *fakeRebuilder) Rebuild(ctx context.Context) error { b.rebuilds++; return b.err }
func (b *fakeRebuilder) Dispose()                          { b.disposes++ }

type fakeRestarter struct {
	restarts int
	err      error
}

func (r *fakeRestarter) Restart(ctx context.Context) error { r.restarts++; return r.err }

type fakeAppReloader struct {
	reloads int
	err     error
}

func (a *fakeAppReloader) Reload() error { a.reloads++; return a.err }

func newTestCoordinator(t *testing.T, builder *fakeRebuilder, controller *fakeRestarter, app *fakeAppReloader) *Coordinator {
	t.Helper()
	return NewCoordinator(t.TempDir(), builder, controller, app, logging.NopLogger{})
}

func TestHandleClientEvent_Rebuilds(t *testing.T) {
	builder := &fakeRebuilder{}
	controller := &fakeRestarter{}
	c := newTestCoordinator(t, builder, controller, &fakeAppReloader{})

	c.handleClientEvent(context.Background(), Event{Path: "content.js", Op: OpChange})

	assert.Equal(t, 1, builder.rebuilds, "exactly one rebuild per client event")
	assert.Zero(t, controller.restarts, "client events never restart the server")
	assert.Zero(t, builder.disposes)
}

func TestHandleClientEvent_RebuildErrorKeepsWatching(t *testing.T) {
	builder := &fakeRebuilder{err: errors.New("syntax error in content.js")}
	c := newTestCoordinator(t, builder, &fakeRestarter{}, &fakeAppReloader{})

	c.handleClientEvent(context.Background(), Event{Path: "content.js", Op: OpChange})
	c.handleClientEvent(context.Background(), Event{Path: "content.js", Op: OpChange})

	assert.Equal(t, 2, builder.rebuilds, "a failed rebuild does not stop later events")
	assert.Zero(t, builder.disposes)
}

func TestHandleServerEvent_ReloadsThenRestarts(t *testing.T) {
	builder := &fakeRebuilder{}
	controller := &fakeRestarter{}
	app := &fakeAppReloader{}
	c := newTestCoordinator(t, builder, controller, app)

	c.handleServerEvent(context.Background(), Event{Path: "server.js", Op: OpChange})

	assert.Equal(t, 1, app.reloads, "exactly one app reload per server event")
	assert.Equal(t, 1, controller.restarts, "exactly one restart per server event")
	assert.Zero(t, builder.rebuilds, "server events never trigger a client rebuild")
	assert.Zero(t, builder.disposes)
}

func TestHandleServerEvent_ReloadFailureSkipsRestart(t *testing.T) {
	builder := &fakeRebuilder{}
	controller := &fakeRestarter{}
	app := &fakeAppReloader{err: errors.New("module threw on load")}
	c := newTestCoordinator(t, builder, controller, app)

	c.handleServerEvent(context.Background(), Event{Path: "server.js", Op: OpChange})

	assert.Zero(t, controller.restarts, "a broken app module is never restarted into")
	assert.Equal(t, 1, builder.disposes, "failure mid-sequence disposes the build context")
}

func TestHandleServerEvent_RestartFailureDisposes(t *testing.T) {
	builder := &fakeRebuilder{}
	controller := &fakeRestarter{err: errors.New("bind failed")}
	c := newTestCoordinator(t, builder, controller, &fakeAppReloader{})

	c.handleServerEvent(context.Background(), Event{Path: "server.js", Op: OpChange})

	assert.Equal(t, 1, controller.restarts)
	assert.Equal(t, 1, builder.disposes)
}

func TestCoordinator_StartAndClose(t *testing.T) {
	builder := &fakeRebuilder{}
	c := newTestCoordinator(t, builder, &fakeRestarter{}, &fakeAppReloader{})

	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	assert.Equal(t, StateActive, c.ClientState(), "client scope arms immediately")
	assert.Equal(t, StateReady, c.ServerState(), "server scope waits out the settle delay")

	require.Eventually(t, func() bool {
		return c.ServerState() == StateActive
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, c.Close())
}
