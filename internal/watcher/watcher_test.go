package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(99), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestNewFileWatcher(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.NotNil(t, watcher.watcher)
	assert.NotNil(t, watcher.debouncer)
	assert.Empty(t, watcher.filters)
	assert.Empty(t, watcher.handlers)
}

func TestGlobFilter(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "site")
	filter := GlobFilter(root,
		[]string{"**/*.html", "**/*.js", "**/*.css"},
		[]string{".git/**", "node_modules/**"})

	testCases := []struct {
		path     string
		expected bool
	}{
		{"index.html", true},
		{"components/ui/button.html", true},
		{"assets/js/nav.js", true},
		{"assets/site.css", true},
		{"README.md", false},
		{"node_modules/pkg/index.js", false},
		{".git/HEAD", false},
		{"../outside.html", false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, filter(filepath.Join(root, filepath.FromSlash(tc.path))))
		})
	}
}

func TestIgnoreFilter(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "site")
	filter := IgnoreFilter(root, []string{".git/**", "node_modules/**"})

	assert.True(t, filter(filepath.Join(root, "components")))
	assert.False(t, filter(filepath.Join(root, "node_modules")))
	assert.False(t, filter(filepath.Join(root, ".git")))
	assert.False(t, filter(filepath.Join(root, ".git", "objects")))
}

func TestDebouncer(t *testing.T) {
	debouncer := NewDebouncer(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go debouncer.start(ctx)

	debouncer.Add(ChangeEvent{Path: "b.html", Type: EventTypeCreated})
	debouncer.Add(ChangeEvent{Path: "b.html", Type: EventTypeModified})
	debouncer.Add(ChangeEvent{Path: "a.html", Type: EventTypeModified})

	select {
	case events := <-debouncer.Output():
		require.Len(t, events, 2)
		assert.Equal(t, "a.html", events[0].Path)
		assert.Equal(t, "b.html", events[1].Path)
		assert.Equal(t, EventTypeModified, events[1].Type, "last event per path wins")
	case <-time.After(2 * time.Second):
		t.Fatal("no debounced batch")
	}
}

func TestFileWatcherValidation(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.Error(t, watcher.AddRecursive(""))
	assert.Error(t, watcher.AddRecursive(filepath.Join(t.TempDir(), "missing")))
}

func TestAddRecursiveSkipsIgnoredDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "components", "ui"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "pkg"), 0o755))

	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	watcher.SkipDirs(IgnoreFilter(root, []string{"node_modules/**"}))
	require.NoError(t, watcher.AddRecursive(root))

	watched := watcher.watcher.WatchList()
	assert.Contains(t, watched, filepath.Join(root, "components", "ui"))
	assert.NotContains(t, watched, filepath.Join(root, "node_modules"))
	assert.NotContains(t, watched, filepath.Join(root, "node_modules", "pkg"))
}

func TestFileWatcherReportsMatchingChanges(t *testing.T) {
	root := t.TempDir()

	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	watcher.AddFilter(GlobFilter(root, []string{"**/*.html"}, nil))

	var mu sync.Mutex
	var got []ChangeEvent
	batches := make(chan struct{}, 10)
	watcher.AddHandler(func(events []ChangeEvent) error {
		mu.Lock()
		got = append(got, events...)
		mu.Unlock()
		batches <- struct{}{}
		return nil
	})

	require.NoError(t, watcher.AddRecursive(root))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<p></p>"), 0o644))

	select {
	case <-batches:
	case <-time.After(5 * time.Second):
		t.Fatal("no change batch delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, got)
	for _, ev := range got {
		assert.Equal(t, ".html", filepath.Ext(ev.Path))
	}
}
