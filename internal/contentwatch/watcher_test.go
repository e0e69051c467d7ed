package contentwatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestCourseOf(t *testing.T) {
	w := &Watcher{root: filepath.Clean("/content")}
	tests := []struct {
		path   string
		want   int64
		wantOK bool
	}{
		{"/content/2/intro.md", 2, true},
		{"/content/12/week1/cells.html", 12, true},
		{"/content/2", 2, true},
		{"/content", 0, false},
		{"/content/drafts/x.md", 0, false},
		{"/content/0/x.md", 0, false},
		{"/elsewhere/2/x.md", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := w.courseOf(tt.path)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunReingestsChangedCourse(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2"), 0o755))

	calls := make(chan int64, 10)
	w, err := New(root, func(_ context.Context, id int64) error {
		calls <- id
		return nil
	}, 100*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give Run a moment to register the directories.
	require.Eventually(t, func() bool {
		return len(w.watcher.WatchList()) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "2", "intro.md"), []byte("v"+string(rune('0'+i))), 0o644))
	}

	select {
	case id := <-calls:
		assert.Equal(t, int64(2), id)
	case <-time.After(3 * time.Second):
		t.Fatal("expected an ingest for course 2")
	}

	// Rapid writes collapse into one ingest.
	select {
	case id := <-calls:
		t.Fatalf("unexpected second ingest for course %d", id)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	require.NoError(t, <-done)
}
