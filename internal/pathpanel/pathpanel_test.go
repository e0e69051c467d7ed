package pathpanel

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/aitutor/internal/model"
	"github.com/pavelanni/aitutor/internal/persist"
)

type fakeService struct {
	path    *model.LearningPath
	pathErr error

	mu      sync.Mutex
	writes  [][]string
	setErr  error
	hold    chan struct{}
	started chan struct{}
}

func (f *fakeService) LearningPath(context.Context, int64, int64) (*model.LearningPath, error) {
	if f.pathErr != nil {
		return nil, f.pathErr
	}
	return f.path, nil
}

func (f *fakeService) SetPinnedRecommendations(_ context.Context, _, courseID int64, pinned []string) (*model.PinOverrides, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.hold != nil {
		<-f.hold
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, pinned)
	if f.setErr != nil {
		return nil, f.setErr
	}
	return &model.PinOverrides{CourseID: courseID, PinnedRecommendations: pinned}, nil
}

func needsSupport() *model.LearningPath {
	return &model.LearningPath{
		Status:                model.PathNeedsSupport,
		Weaknesses:            []string{"Cells"},
		StudyPlan:             "Review the cell chapter.",
		Recommendations:       []string{"Re-read chapter 2", "Watch the lab video"},
		PinnedRecommendations: []string{"Office hours Friday"},
	}
}

func TestOpenSeedsPins(t *testing.T) {
	q := persist.New(4)
	defer q.Close(context.Background())
	p := New(&fakeService{path: needsSupport()}, q)

	require.NoError(t, p.Open(context.Background(), 2, 3, "Alice"))
	snap := p.Snapshot()
	assert.True(t, snap.Open)
	assert.False(t, snap.Loading)
	assert.Equal(t, "Alice", snap.Name)
	assert.Equal(t, []string{"Office hours Friday"}, snap.Pinned)
}

func TestPinIsLocalBeforeNetwork(t *testing.T) {
	svc := &fakeService{path: needsSupport(), hold: make(chan struct{}), started: make(chan struct{}, 4)}
	q := persist.New(4)
	p := New(svc, q)
	require.NoError(t, p.Open(context.Background(), 2, 3, "Alice"))

	p.Pin("Re-read chapter 2")
	<-svc.started

	// The write is blocked, but the pin is already visible.
	assert.Contains(t, p.Pinned(), "Re-read chapter 2")
	svc.mu.Lock()
	assert.Empty(t, svc.writes)
	svc.mu.Unlock()

	close(svc.hold)
	require.NoError(t, q.Close(context.Background()))
	require.Len(t, svc.writes, 1)
	assert.Equal(t, []string{"Office hours Friday", "Re-read chapter 2"}, svc.writes[0])
}

func TestPinSendsFullSetInOrder(t *testing.T) {
	svc := &fakeService{path: needsSupport()}
	q := persist.New(4)
	p := New(svc, q)
	require.NoError(t, p.Open(context.Background(), 2, 3, "Alice"))

	p.Pin("Re-read chapter 2")
	p.Pin("Re-read chapter 2")
	p.SetDraft("  Schedule a 1:1 review  ")
	p.PinDraft()

	require.NoError(t, q.Close(context.Background()))
	want := []string{"Office hours Friday", "Re-read chapter 2", "Schedule a 1:1 review"}
	assert.Equal(t, want, p.Pinned())
	require.Len(t, svc.writes, 2, "a duplicate pin does not write")
	assert.Equal(t, want, svc.writes[len(svc.writes)-1], "the last write is the complete local set")
	assert.Empty(t, p.Snapshot().Draft)
}

func TestBlankDraftIsIgnored(t *testing.T) {
	svc := &fakeService{path: needsSupport()}
	q := persist.New(1)
	p := New(svc, q)
	require.NoError(t, p.Open(context.Background(), 2, 3, "Alice"))

	p.SetDraft("   ")
	p.PinDraft()

	require.NoError(t, q.Close(context.Background()))
	assert.Empty(t, svc.writes)
	assert.Equal(t, []string{"Office hours Friday"}, p.Pinned())
}

func TestPinFailureIsNotRolledBack(t *testing.T) {
	svc := &fakeService{path: needsSupport(), setErr: errors.New("service down")}
	q := persist.New(1)
	p := New(svc, q)
	require.NoError(t, p.Open(context.Background(), 2, 3, "Alice"))

	p.Pin("Watch the lab video")
	require.NoError(t, q.Close(context.Background()))

	assert.Contains(t, p.Pinned(), "Watch the lab video")
}

func TestOpenFailureKeepsPanelOpen(t *testing.T) {
	q := persist.New(1)
	defer q.Close(context.Background())
	p := New(&fakeService{pathErr: errors.New("boom")}, q)

	err := p.Open(context.Background(), 2, 3, "Alice")
	require.Error(t, err)
	snap := p.Snapshot()
	assert.True(t, snap.Open)
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.Path)
}

func TestCloseResets(t *testing.T) {
	svc := &fakeService{path: needsSupport()}
	q := persist.New(1)
	p := New(svc, q)
	require.NoError(t, p.Open(context.Background(), 2, 3, "Alice"))
	p.SetDraft("draft")

	p.Close()
	assert.Equal(t, Snapshot{Pinned: []string{}}, normalize(p.Snapshot()))

	p.Pin("after close")
	require.NoError(t, q.Close(context.Background()))
	assert.Empty(t, svc.writes, "a closed panel does not pin")
}

func normalize(s Snapshot) Snapshot {
	if s.Pinned == nil {
		s.Pinned = []string{}
	}
	return s
}
