// Package pathpanel drives the teacher's learning-path modal: it shows a
// student's path and lets the teacher pin recommendations.
//
// Pins are applied locally first and then persisted as the complete set in
// the background. A failed write is logged and the local pin stays.
package pathpanel

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/pavelanni/aitutor/internal/model"
	"github.com/pavelanni/aitutor/internal/persist"
)

// Service is the slice of the gateway the panel needs.
type Service interface {
	LearningPath(ctx context.Context, courseID, studentID int64) (*model.LearningPath, error)
	SetPinnedRecommendations(ctx context.Context, studentID, courseID int64, pinned []string) (*model.PinOverrides, error)
}

// Enqueuer schedules background writes.
type Enqueuer interface {
	Enqueue(t persist.Task) error
}

// Panel is the learning-path modal of one teacher view.
type Panel struct {
	svc   Service
	queue Enqueuer

	mu        sync.Mutex
	gen       uint64
	open      bool
	loading   bool
	courseID  int64
	studentID int64
	name      string
	path      *model.LearningPath
	pinned    []string
	draft     string
}

// New creates a closed panel.
func New(svc Service, queue Enqueuer) *Panel {
	return &Panel{svc: svc, queue: queue}
}

// Snapshot is a consistent copy of the panel state for rendering.
type Snapshot struct {
	Open      bool
	Loading   bool
	CourseID  int64
	StudentID int64
	Name      string
	Path      *model.LearningPath
	Pinned    []string
	Draft     string
}

// Snapshot returns a copy of the current state.
func (p *Panel) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Open:      p.open,
		Loading:   p.loading,
		CourseID:  p.courseID,
		StudentID: p.studentID,
		Name:      p.name,
		Path:      p.path,
		Pinned:    slices.Clone(p.pinned),
		Draft:     p.draft,
	}
}

// Open shows the path of studentID in courseID. name is the display name
// from the analytics row. The pin set is seeded from the path.
func (p *Panel) Open(ctx context.Context, courseID, studentID int64, name string) error {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.open = true
	p.loading = true
	p.courseID, p.studentID, p.name = courseID, studentID, name
	p.path = nil
	p.pinned = nil
	p.draft = ""
	p.mu.Unlock()

	path, err := p.svc.LearningPath(ctx, courseID, studentID)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return nil
	}
	p.loading = false
	if err != nil {
		return fmt.Errorf("load learning path: %w", err)
	}
	p.path = path
	p.pinned = dedupe(path.PinnedRecommendations)
	return nil
}

// Pinned returns a copy of the local pin set in insertion order.
func (p *Panel) Pinned() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.pinned)
}

// Pin adds rec to the pin set, clears the draft and persists the full set.
// Pinning a recommendation that is already pinned only clears the draft.
func (p *Panel) Pin(rec string) {
	p.mu.Lock()
	if !p.open || p.studentID == 0 {
		p.mu.Unlock()
		return
	}
	p.draft = ""
	if slices.Contains(p.pinned, rec) {
		p.mu.Unlock()
		return
	}
	p.pinned = append(p.pinned, rec)
	set := slices.Clone(p.pinned)
	courseID, studentID := p.courseID, p.studentID
	p.mu.Unlock()

	err := p.queue.Enqueue(persist.Task{
		Name: "set pinned recommendations",
		Run: func(ctx context.Context) error {
			_, err := p.svc.SetPinnedRecommendations(ctx, studentID, courseID, set)
			return err
		},
	})
	if err != nil {
		slog.Warn("pinned recommendations not persisted", "student_id", studentID, "course_id", courseID, "error", err)
	}
}

// SetDraft stores the free-text recommendation being typed.
func (p *Panel) SetDraft(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.draft = s
}

// PinDraft pins the trimmed draft. A blank draft is ignored.
func (p *Panel) PinDraft() {
	p.mu.Lock()
	rec := strings.TrimSpace(p.draft)
	p.mu.Unlock()
	if rec == "" {
		return
	}
	p.Pin(rec)
}

// Close hides the panel and forgets its state. A load still in flight is
// discarded when it completes.
func (p *Panel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.open = false
	p.loading = false
	p.courseID, p.studentID, p.name = 0, 0, ""
	p.path = nil
	p.pinned = nil
	p.draft = ""
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
