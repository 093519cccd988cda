package watch

import (
	"context"
	"time"

	"github.com/podev-dev/podev/internal/logging"
)

// ClientPatterns are source files whose changes require a client rebuild.
var ClientPatterns = []string{
	"content.{js,ts}",
	"fallback.{js,ts}",
	"scripts.{js,ts}",
	"lazy.{js,ts}",
	"client/**/*.{js,ts}",
	"lib/**/*.{js,ts}",
	"src/**/*.{js,ts}",
}

// ServerPatterns are source and configuration files whose changes require a
// full server restart.
var ServerPatterns = []string{
	"build.{js,ts}",
	"document.{js,ts}",
	"server.{js,ts}",
	"server/**/*.{js,ts}",
	"config/**/*.json",
	"config/schema.{js,ts}",
	"schemas/**/*.json",
	"locale/**/*.json",
}

// ServerSettleDelay is the fixed wait after the server subscription reaches
// readiness before its handlers arm, letting the initial server start settle.
const ServerSettleDelay = time.Second

// Rebuilder is the build context manager surface the coordinator drives.
type Rebuilder interface {
	Rebuild(ctx context.Context) error
	Dispose()
}

// Restarter is the dev server controller surface the coordinator drives.
type Restarter interface {
	Restart(ctx context.Context) error
}

// AppReloader reloads the externally-owned local app module before a server
// restart.
type AppReloader interface {
	Reload() error
}

// Coordinator owns the two watch subscriptions and translates their events
// into rebuild or restart actions.
type Coordinator struct {
	client     *Subscription
	server     *Subscription
	builder    Rebuilder
	controller Restarter
	app        AppReloader
	log        logging.Logger
}

// NewCoordinator creates a coordinator watching root.
func NewCoordinator(root string, builder Rebuilder, controller Restarter, app AppReloader, log logging.Logger) *Coordinator {
	return &Coordinator{
		client:     NewSubscription("client", root, ClientPatterns, 0, log),
		server:     NewSubscription("server", root, ServerPatterns, ServerSettleDelay, log),
		builder:    builder,
		controller: controller,
		app:        app,
		log:        log.WithComponent("watch"),
	}
}

// Start arms both subscriptions.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.client.Start(ctx, c.handleClientEvent); err != nil {
		return err
	}
	if err := c.server.Start(ctx, c.handleServerEvent); err != nil {
		c.client.Close()
		return err
	}
	return nil
}

// handleClientEvent drives one rebuild per event. Stale-graph recovery is the
// manager's job; whatever error still comes back is logged and the watcher
// stays up.
func (c *Coordinator) handleClientEvent(ctx context.Context, ev Event) {
	c.log.Debug(ctx, "client file changed", "path", ev.Path, "op", ev.Op.String())
	if err := c.builder.Rebuild(ctx); err != nil {
		c.log.Error(ctx, err, "rebuild failed", "path", ev.Path)
	}
}

// handleServerEvent reloads the local app module, then restarts the server.
// A failure mid-sequence disposes the current build context and leaves the
// watcher running so a correcting change can recover.
func (c *Coordinator) handleServerEvent(ctx context.Context, ev Event) {
	c.log.Debug(ctx, "server file changed", "path", ev.Path, "op", ev.Op.String())

	if err := c.app.Reload(); err != nil {
		c.builder.Dispose()
		c.log.Error(ctx, err, "reloading local app failed", "path", ev.Path)
		return
	}
	if err := c.controller.Restart(ctx); err != nil {
		c.builder.Dispose()
		c.log.Error(ctx, err, "server restart failed", "path", ev.Path)
	}
}

// ClientState exposes the client subscription's lifecycle state.
func (c *Coordinator) ClientState() State {
	return c.client.State()
}

// ServerState exposes the server subscription's lifecycle state.
func (c *Coordinator) ServerState() State {
	return c.server.State()
}

// Close tears both subscriptions down.
func (c *Coordinator) Close() error {
	clientErr := c.client.Close()
	serverErr := c.server.Close()
	if clientErr != nil {
		return clientErr
	}
	return serverErr
}
