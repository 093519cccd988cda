// Package watch coordinates the two filesystem watch subscriptions driving
// the dev loop: client-affecting changes trigger a rebuild of the client
// bundle, server-affecting changes trigger a full server restart.
//
// Each subscription delivers its events as messages on a channel consumed by
// a single goroutine, so events within one scope are handled strictly in
// arrival order and never overlap; the two scopes are independent.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/podev-dev/podev/internal/logging"
)

// State is the lifecycle of a subscription. Handlers are armed only once the
// subscription reaches StateActive; for the server scope that transition is
// delayed by a settle timer so the initial server start does not feed its own
// filesystem noise back into the watcher.
type State int32

const (
	StateStarting State = iota
	StateReady
	StateActive
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Op is the kind of a file change.
type Op int

const (
	OpCreate Op = iota
	OpChange
	OpDelete
)

// String returns the string representation of the op.
func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpChange:
		return "change"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is one debounced file change.
type Event struct {
	Path string
	Op   Op
	Time time.Time
}

// Handler reacts to one event. Invoked sequentially per subscription.
type Handler func(ctx context.Context, ev Event)

// Subscription watches one glob pattern scope rooted at a directory.
type Subscription struct {
	scope    string
	root     string
	patterns []string
	settle   time.Duration
	debounce time.Duration
	maxWait  time.Duration
	log      logging.Logger

	watcher *fsnotify.Watcher
	state   atomic.Int32
	events  chan Event

	pendingMu   sync.Mutex
	pending     []Event
	seen        map[string]int
	timer       *time.Timer
	windowStart time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

const (
	defaultDebounce = 100 * time.Millisecond

	// maxDebounceWait bounds how long a batch may be postponed: a tree
	// changing faster than the debounce window still flushes once the first
	// pending event is this old.
	maxDebounceWait = time.Second
)

// NewSubscription creates a subscription over patterns relative to root.
// settle delays the READY -> ACTIVE transition.
func NewSubscription(scope, root string, patterns []string, settle time.Duration, log logging.Logger) *Subscription {
	return &Subscription{
		scope:    scope,
		root:     root,
		patterns: patterns,
		settle:   settle,
		debounce: defaultDebounce,
		maxWait:  maxDebounceWait,
		log:      log.WithComponent("watch." + scope),
		events:   make(chan Event, 256),
		seen:     make(map[string]int),
	}
}

// Start begins watching and arms handler once the subscription is active.
func (s *Subscription) Start(ctx context.Context, handler Handler) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	// Initial enumeration happens in STARTING; events are dropped until the
	// subscription is active so the scan itself never triggers handlers.
	if err := s.addRecursive(s.root); err != nil {
		watcher.Close()
		return err
	}

	s.state.Store(int32(StateReady))
	s.log.Debug(ctx, "subscription ready", "patterns", len(s.patterns))

	if s.settle > 0 {
		time.AfterFunc(s.settle, func() {
			s.state.Store(int32(StateActive))
			s.log.Debug(context.Background(), "subscription active after settle", "settle", s.settle)
		})
	} else {
		s.state.Store(int32(StateActive))
	}

	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.watchLoop(ctx)
	go s.consume(ctx, handler)

	return nil
}

// State returns the current lifecycle state.
func (s *Subscription) State() State {
	return State(s.state.Load())
}

// Close stops watching. Pending handler work is allowed to finish.
func (s *Subscription) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.pendingMu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.pendingMu.Unlock()

	var err error
	if s.watcher != nil {
		err = s.watcher.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Subscription) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if filepath.Base(path) == ".git" || filepath.Base(path) == "node_modules" || filepath.Base(path) == "dist" {
				return filepath.SkipDir
			}
			return s.watcher.Add(path)
		}
		return nil
	})
}

func (s *Subscription) watchLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleFsnotifyEvent(ctx, event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			// Subscription errors never tear down the watcher.
			s.log.Error(ctx, err, "watch subscription error")
		}
	}
}

func (s *Subscription) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	// New directories join the watch regardless of state so later files in
	// them are seen.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := s.watcher.Add(event.Name); err != nil {
				s.log.Error(ctx, err, "watching new directory", "path", event.Name)
			}
			return
		}
	}

	if s.State() != StateActive {
		return
	}
	if !s.matches(event.Name) {
		return
	}

	var op Op
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpChange
	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		op = OpDelete
	default:
		return
	}

	s.enqueue(Event{Path: event.Name, Op: op, Time: time.Now()})
}

// matches tests the path against the subscription's glob patterns, relative
// to the watch root.
func (s *Subscription) matches(path string) bool {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range s.patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// enqueue adds an event to the debounce window. Rapid changes to one path
// collapse to the latest event; first-arrival order across paths is kept.
// Each event resets the debounce timer, but never past maxWait from the
// window's first event, so a sustained burst still flushes.
func (s *Subscription) enqueue(ev Event) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	if len(s.pending) == 0 {
		s.windowStart = time.Now()
	}

	if i, ok := s.seen[ev.Path]; ok {
		s.pending[i] = ev
	} else {
		s.seen[ev.Path] = len(s.pending)
		s.pending = append(s.pending, ev)
	}

	delay := s.debounce
	if remaining := s.maxWait - time.Since(s.windowStart); remaining < delay {
		delay = remaining
	}
	if delay < 0 {
		delay = 0
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, s.flush)
}

func (s *Subscription) flush() {
	s.pendingMu.Lock()
	batch := s.pending
	s.pending = nil
	s.seen = make(map[string]int)
	s.pendingMu.Unlock()

	for _, ev := range batch {
		select {
		case s.events <- ev:
		default:
			// Channel full, drop. A later change event recovers.
		}
	}
}

// consume is the single consumer loop: strict arrival order, one event at a
// time, never overlapping within this subscription.
func (s *Subscription) consume(ctx context.Context, handler Handler) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			handler(ctx, ev)
		}
	}
}
