package bundler

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/podev-dev/podev/internal/logging"
)

const reloadWriteWait = 10 * time.Second

// ReloadServer is the browser-facing side of a build context: it serves the
// compiled client assets and a one-way event stream the browser subscribes
// to in order to reload itself after a rebuild.
type ReloadServer interface {
	Start() error
	Broadcast(msg ReloadMessage)
	Close() error
}

// ReloadMessage is one event on the reload stream.
type ReloadMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// ReloadHub implements ReloadServer on a fixed local port.
type ReloadHub struct {
	port     int
	assetDir string
	log      logging.Logger

	server *http.Server
	conns  map[*websocket.Conn]struct{}
	mutex  sync.Mutex
	closed bool
}

// NewReloadHub creates a hub serving assetDir and the /reload stream on port.
func NewReloadHub(port int, assetDir string, log logging.Logger) *ReloadHub {
	return &ReloadHub{
		port:     port,
		assetDir: assetDir,
		log:      log.WithComponent("reload"),
		conns:    make(map[*websocket.Conn]struct{}),
	}
}

// Start binds the listener and serves in the background. Bind errors surface
// synchronously so a port conflict is visible at context creation time.
func (h *ReloadHub) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/reload", h.handleReload)
	mux.Handle("/", http.FileServer(http.Dir(h.assetDir)))

	addr := fmt.Sprintf("localhost:%d", h.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding reload endpoint on %s: %w", addr, err)
	}

	h.server = &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.log.Error(context.Background(), err, "reload endpoint stopped")
		}
	}()

	return nil
}

func (h *ReloadHub) handleReload(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The reload stream is local-only; the asset port is never exposed.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error(r.Context(), err, "reload stream upgrade failed")
		return
	}

	h.mutex.Lock()
	if h.closed {
		h.mutex.Unlock()
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	h.conns[conn] = struct{}{}
	h.mutex.Unlock()

	// The stream is one-way; reads only detect the peer going away.
	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.conns, conn)
			h.mutex.Unlock()
			conn.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			if _, _, err := conn.Read(context.Background()); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends msg to every subscribed browser. Slow or dead peers are
// dropped rather than blocking the build loop.
func (h *ReloadHub) Broadcast(msg ReloadMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error(context.Background(), err, "marshaling reload message")
		return
	}

	h.mutex.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mutex.Unlock()

	for _, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), reloadWriteWait)
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			h.mutex.Lock()
			delete(h.conns, conn)
			h.mutex.Unlock()
			conn.Close(websocket.StatusNormalClosure, "")
		}
		cancel()
	}
}

// Close shuts the stream and the asset listener down.
func (h *ReloadHub) Close() error {
	h.mutex.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = make(map[*websocket.Conn]struct{})
	h.mutex.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.StatusGoingAway, "shutting down")
	}

	if h.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.server.Shutdown(ctx)
}
