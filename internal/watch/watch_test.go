package watch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_NotifiesOnNewRepository(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, 10*time.Millisecond, log.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	notify := make(chan struct{}, 1)
	go func() { done <- w.Run(ctx, notify) }()

	// The watch is registered asynchronously; keep creating entries until one is seen.
	n := 0
	require.Eventually(t, func() bool {
		n++
		_ = os.Mkdir(filepath.Join(dir, fmt.Sprintf("repo%d", n)), 0o755)
		select {
		case <-notify:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestRun_MissingDir(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), 0, log.New(io.Discard))
	err := w.Run(context.Background(), make(chan struct{}, 1))
	assert.Error(t, err)
}

func TestRelevant(t *testing.T) {
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"create", fsnotify.Event{Name: "/repos/alpha", Op: fsnotify.Create}, true},
		{"remove", fsnotify.Event{Name: "/repos/alpha", Op: fsnotify.Remove}, true},
		{"rename", fsnotify.Event{Name: "/repos/alpha", Op: fsnotify.Rename}, true},
		{"write", fsnotify.Event{Name: "/repos/alpha", Op: fsnotify.Write}, false},
		{"chmod", fsnotify.Event{Name: "/repos/alpha", Op: fsnotify.Chmod}, false},
		{"hidden", fsnotify.Event{Name: "/repos/.tmp-clone", Op: fsnotify.Create}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relevant(tt.event))
		})
	}
}
