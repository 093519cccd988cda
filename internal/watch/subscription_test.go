package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podev-dev/podev/internal/logging"
)

func TestClientPatternMatching(t *testing.T) {
	sub := NewSubscription("client", "/app", ClientPatterns, 0, logging.NopLogger{})

	tests := []struct {
		path string
		want bool
	}{
		{path: "/app/content.js", want: true},
		{path: "/app/content.ts", want: true},
		{path: "/app/fallback.js", want: true},
		{path: "/app/scripts.ts", want: true},
		{path: "/app/lazy.js", want: true},
		{path: "/app/client/widget.js", want: true},
		{path: "/app/client/nested/deep/widget.ts", want: true},
		{path: "/app/lib/util.js", want: true},
		{path: "/app/src/store.ts", want: true},
		{path: "/app/server.js", want: false},
		{path: "/app/build.js", want: false},
		{path: "/app/content.css", want: false},
		{path: "/app/locale/en.json", want: false},
		{path: "/app/notes.md", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, sub.matches(tt.path))
		})
	}
}

func TestServerPatternMatching(t *testing.T) {
	sub := NewSubscription("server", "/app", ServerPatterns, 0, logging.NopLogger{})

	tests := []struct {
		path string
		want bool
	}{
		{path: "/app/build.js", want: true},
		{path: "/app/document.ts", want: true},
		{path: "/app/server.js", want: true},
		{path: "/app/server/routes/api.js", want: true},
		{path: "/app/config/local.json", want: true},
		{path: "/app/config/schema.js", want: true},
		{path: "/app/schemas/content.json", want: true},
		{path: "/app/locale/en.json", want: true},
		{path: "/app/locale/nb/NO.json", want: true},
		{path: "/app/content.js", want: false},
		{path: "/app/client/widget.js", want: false},
		{path: "/app/locale/en.yaml", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, sub.matches(tt.path))
		})
	}
}

func TestScopesAreDisjoint(t *testing.T) {
	client := NewSubscription("client", "/app", ClientPatterns, 0, logging.NopLogger{})
	server := NewSubscription("server", "/app", ServerPatterns, 0, logging.NopLogger{})

	for _, path := range []string{
		"/app/content.js", "/app/scripts.ts", "/app/client/a.js", "/app/src/b.ts",
		"/app/server.js", "/app/build.ts", "/app/config/app.json", "/app/locale/en.json",
	} {
		both := client.matches(path) && server.matches(path)
		assert.False(t, both, "path %s matched both scopes", path)
	}
}

func TestSubscription_SettleDelaysActivation(t *testing.T) {
	root := t.TempDir()
	sub := NewSubscription("server", root, ServerPatterns, 200*time.Millisecond, logging.NopLogger{})

	require.NoError(t, sub.Start(context.Background(), func(ctx context.Context, ev Event) {}))
	defer sub.Close()

	assert.Equal(t, StateReady, sub.State(), "handlers are not armed before the settle delay")
	require.Eventually(t, func() bool {
		return sub.State() == StateActive
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubscription_ZeroSettleActivatesImmediately(t *testing.T) {
	root := t.TempDir()
	sub := NewSubscription("client", root, ClientPatterns, 0, logging.NopLogger{})

	require.NoError(t, sub.Start(context.Background(), func(ctx context.Context, ev Event) {}))
	defer sub.Close()

	assert.Equal(t, StateActive, sub.State())
}

func TestSubscription_DeliversMatchingEvents(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "content.js"), []byte("a"), 0644))

	var mu sync.Mutex
	var got []Event
	sub := NewSubscription("client", root, ClientPatterns, 0, logging.NopLogger{})
	require.NoError(t, sub.Start(context.Background(), func(ctx context.Context, ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	}))
	defer sub.Close()

	require.NoError(t, os.WriteFile(filepath.Join(root, "content.js"), []byte("ab"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("x"), 0644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, ev := range got {
		assert.Equal(t, filepath.Join(root, "content.js"), ev.Path, "non-matching files never reach the handler")
	}
}

func TestSubscription_DebounceCollapsesPerPath(t *testing.T) {
	sub := NewSubscription("client", "/app", ClientPatterns, 0, logging.NopLogger{})
	sub.debounce = time.Hour // hold the window open, drain pending directly

	sub.enqueue(Event{Path: "/app/content.js", Op: OpCreate})
	sub.enqueue(Event{Path: "/app/scripts.js", Op: OpChange})
	sub.enqueue(Event{Path: "/app/content.js", Op: OpChange})

	sub.pendingMu.Lock()
	defer sub.pendingMu.Unlock()
	if sub.timer != nil {
		sub.timer.Stop()
	}
	require.Len(t, sub.pending, 2)
	assert.Equal(t, "/app/content.js", sub.pending[0].Path, "first arrival keeps its slot")
	assert.Equal(t, OpChange, sub.pending[0].Op, "latest event for the path wins")
	assert.Equal(t, "/app/scripts.js", sub.pending[1].Path)
}

func TestSubscription_SustainedBurstStillFlushes(t *testing.T) {
	sub := NewSubscription("client", "/app", ClientPatterns, 0, logging.NopLogger{})
	sub.debounce = 40 * time.Millisecond
	sub.maxWait = 120 * time.Millisecond

	// Events arrive faster than the debounce window for longer than maxWait;
	// the window must still close.
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				sub.enqueue(Event{Path: "/app/content.js", Op: OpChange, Time: time.Now()})
			}
		}
	}()

	select {
	case ev := <-sub.events:
		assert.Equal(t, "/app/content.js", ev.Path)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("debounce window never closed during a sustained burst")
	}

	close(stop)
	<-done
	sub.pendingMu.Lock()
	if sub.timer != nil {
		sub.timer.Stop()
	}
	sub.pendingMu.Unlock()
}

func TestSubscription_HandlerRunsSequentially(t *testing.T) {
	root := t.TempDir()

	var mu sync.Mutex
	inFlight := 0
	overlapped := false
	handled := 0

	sub := NewSubscription("client", root, ClientPatterns, 0, logging.NopLogger{})
	sub.debounce = 10 * time.Millisecond
	require.NoError(t, sub.Start(context.Background(), func(ctx context.Context, ev Event) {
		mu.Lock()
		inFlight++
		if inFlight > 1 {
			overlapped = true
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		handled++
		mu.Unlock()
	}))
	defer sub.Close()

	for _, name := range []string{"content.js", "fallback.js", "scripts.js"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("a"), 0644))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return handled >= 3
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, overlapped, "events within one subscription never overlap")
}

func TestSubscription_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()

	var mu sync.Mutex
	var got []string
	sub := NewSubscription("client", root, ClientPatterns, 0, logging.NopLogger{})
	require.NoError(t, sub.Start(context.Background(), func(ctx context.Context, ev Event) {
		mu.Lock()
		got = append(got, ev.Path)
		mu.Unlock()
	}))
	defer sub.Close()

	dir := filepath.Join(root, "client")
	require.NoError(t, os.Mkdir(dir, 0755))
	// Give the watcher a beat to pick up the new directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "widget.js"), []byte("a"), 0644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, p := range got {
			if p == filepath.Join(dir, "widget.js") {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "active", StateActive.String())
}
