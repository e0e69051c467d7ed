package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestTasksRunInOrder(t *testing.T) {
	q := New(4)

	var mu sync.Mutex
	var got []int
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, q.Enqueue(Task{Name: "write", Run: func(context.Context) error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		}}))
	}
	require.NoError(t, q.Close(context.Background()))

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestFailuresAreSwallowed(t *testing.T) {
	var failed []string
	q := New(2, WithErrorHook(func(task Task, err error) {
		failed = append(failed, task.Name)
	}))

	ran := false
	require.NoError(t, q.Enqueue(Task{Name: "broken", Run: func(context.Context) error {
		return errors.New("service down")
	}}))
	require.NoError(t, q.Enqueue(Task{Name: "next", Run: func(context.Context) error {
		ran = true
		return nil
	}}))
	require.NoError(t, q.Close(context.Background()))

	assert.Equal(t, []string{"broken"}, failed)
	assert.True(t, ran, "a failed task must not stop the queue")
}

func TestEnqueueAfterClose(t *testing.T) {
	q := New(1)
	require.NoError(t, q.Close(context.Background()))
	require.NoError(t, q.Close(context.Background()))

	err := q.Enqueue(Task{Name: "late", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseDeadlineCancelsInFlight(t *testing.T) {
	q := New(1)
	started := make(chan struct{})
	require.NoError(t, q.Enqueue(Task{Name: "slow", Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseReleasesBlockedEnqueue(t *testing.T) {
	q := New(1)
	started := make(chan struct{})
	require.NoError(t, q.Enqueue(Task{Name: "hung", Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}))
	<-started
	// Fills the buffer while the worker is stuck.
	require.NoError(t, q.Enqueue(Task{Name: "queued", Run: func(context.Context) error { return nil }}))

	blocked := make(chan error, 1)
	go func() {
		blocked <- q.Enqueue(Task{Name: "overflow", Run: func(context.Context) error { return nil }})
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	closed := make(chan error, 1)
	go func() { closed <- q.Close(ctx) }()

	select {
	case err := <-closed:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after its deadline")
	}
	assert.ErrorIs(t, <-blocked, ErrClosed)
}
