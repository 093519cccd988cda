// Package devserver owns the HTTP listener lifecycle of the podlet dev
// server: start, and restart without losing availability longer than the
// port handover requires.
package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/podev-dev/podev/internal/config"
	"github.com/podev-dev/podev/internal/logging"
	"github.com/podev-dev/podev/internal/registry"
	"github.com/podev-dev/podev/internal/render"
	"github.com/podev-dev/podev/internal/resolve"
	"github.com/podev-dev/podev/internal/version"
)

const shutdownTimeout = 5 * time.Second

// ElementImporter resolves, bundles and imports a component file into the
// element registry on demand.
type ElementImporter interface {
	ImportElement(ctx context.Context, path string) (*registry.ElementDefinition, error)
}

// StateFuncs are the externally supplied per-route initial-state producers.
type StateFuncs struct {
	Content  render.StateFunc
	Fallback render.StateFunc
}

// Controller manages the current server instance. Exactly one instance is
// current at a time; replacing it is the unit of a restart.
type Controller struct {
	cfg      *config.Config
	registry *registry.ElementRegistry
	importer ElementImporter
	pipeline *render.Pipeline
	states   StateFuncs
	locales  *localePicker
	log      logging.Logger

	mutex   sync.Mutex
	current *http.Server
}

// NewController creates a controller. The registry and pipeline are shared
// state that survives restarts; only the server instance is replaced.
func NewController(cfg *config.Config, reg *registry.ElementRegistry, imp ElementImporter, pipeline *render.Pipeline, states StateFuncs, log logging.Logger) *Controller {
	return &Controller{
		cfg:      cfg,
		registry: reg,
		importer: imp,
		pipeline: pipeline,
		states:   states,
		locales:  newLocalePicker(cfg.App.Root),
		log:      log.WithComponent("server"),
	}
}

// Start builds a server instance and binds it to the configured port. A bind
// failure here is fatal to the process: a bound port will not self-heal.
func (c *Controller) Start(ctx context.Context) error {
	return c.bind(ctx, c.buildServer())
}

// Restart builds a new server instance while concurrently closing the
// previous one, then binds the new instance. Construction does not depend on
// the old socket, so the two run in parallel; binding waits for both since
// only one process may hold the port.
func (c *Controller) Restart(ctx context.Context) error {
	c.mutex.Lock()
	old := c.current
	c.current = nil
	c.mutex.Unlock()

	built := make(chan *http.Server, 1)
	go func() {
		built <- c.buildServer()
	}()

	closed := make(chan error, 1)
	go func() {
		if old == nil {
			closed <- nil
			return
		}
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		closed <- old.Shutdown(sctx)
	}()

	srv := <-built
	if err := <-closed; err != nil {
		c.log.Error(ctx, err, "closing previous server instance")
	}

	if err := c.bind(ctx, srv); err != nil {
		return err
	}
	c.log.Info(ctx, "server restarted", "addr", srv.Addr)
	return nil
}

// Shutdown closes the current instance.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mutex.Lock()
	srv := c.current
	c.current = nil
	c.mutex.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Addr returns the address of the current instance.
func (c *Controller) Addr() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.current == nil {
		return ""
	}
	return c.current.Addr
}

func (c *Controller) bind(ctx context.Context, srv *http.Server) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", srv.Addr, err)
	}

	c.mutex.Lock()
	c.current = srv
	c.mutex.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			c.log.Error(context.Background(), err, "server stopped unexpectedly")
		}
	}()

	c.log.Info(ctx, "server listening", "url", fmt.Sprintf("http://%s:%d", c.cfg.App.Host, c.cfg.App.Port))
	return nil
}

func (c *Controller) buildServer() *http.Server {
	r := chi.NewRouter()
	r.Use(c.requestLogger)

	r.Get("/health", c.handleHealth)
	r.Get(c.cfg.Podlet.Manifest, c.handleManifest)

	if c.cfg.Podlet.Content == "/" {
		r.Get("/", c.handleContent)
	} else {
		r.Get(c.cfg.Podlet.Content, c.handleContent)
		r.Get("/", c.handleRoot)
	}
	r.Get(c.cfg.Podlet.Fallback, c.handleFallback)

	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", c.cfg.App.Host, c.cfg.App.Port),
		Handler: r,
	}
}

func (c *Controller) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		c.log.Debug(r.Context(), "request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// handleRoot redirects to the manifest route when the content route does not
// own the root path.
func (c *Controller) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, c.cfg.Podlet.Manifest, http.StatusFound)
}

func (c *Controller) handleManifest(w http.ResponseWriter, r *http.Request) {
	manifest := map[string]interface{}{
		"name":     c.cfg.App.Name,
		"version":  version.Version,
		"content":  c.cfg.Podlet.Content,
		"fallback": c.cfg.Podlet.Fallback,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(manifest); err != nil {
		c.log.Error(r.Context(), err, "encoding manifest")
	}
}

func (c *Controller) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":   "healthy",
		"version":  version.Version,
		"elements": c.registry.Count(),
		"mode":     c.pipeline.Mode().String(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		c.log.Error(r.Context(), err, "encoding health response")
	}
}

func (c *Controller) handleContent(w http.ResponseWriter, r *http.Request) {
	c.renderEntry(w, r, "content", c.states.Content)
}

func (c *Controller) handleFallback(w http.ResponseWriter, r *http.Request) {
	c.renderEntry(w, r, "fallback", c.states.Fallback)
}

// renderEntry is the per-request rendering pipeline: import the entry's
// element, produce the route's initial state, assemble markup. Every failure
// is logged and the response returned without content, never left hanging.
func (c *Controller) renderEntry(w http.ResponseWriter, r *http.Request, entryName string, state render.StateFunc) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	entry := resolve.Resolve(c.cfg.App.Root, entryName)
	if !entry.Exists {
		c.log.Warn(r.Context(), nil, "entry file missing", "entry", entryName)
		return
	}

	def, err := c.importer.ImportElement(r.Context(), entry.Path)
	if err != nil {
		c.log.Error(r.Context(), err, "importing element", "entry", entryName)
		return
	}
	if def == nil {
		// Development-mode import failure, already logged by the importer.
		return
	}

	appCtx := render.AppContext{
		Name:        c.cfg.App.Name,
		Base:        c.cfg.App.Base,
		Locale:      c.locales.pick(r),
		Development: c.cfg.Development(),
	}

	var initial any
	if state != nil {
		initial, err = state(r, appCtx)
		if err != nil {
			c.log.Error(r.Context(), err, "state function failed", "entry", entryName)
			return
		}
	}

	markup, err := c.pipeline.Markup(r.Context(), def, initial)
	if err != nil {
		c.log.Error(r.Context(), err, "rendering failed", "entry", entryName)
		return
	}

	if _, err := w.Write([]byte(markup)); err != nil {
		c.log.Error(r.Context(), err, "writing response", "entry", entryName)
	}
}
