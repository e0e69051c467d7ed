// Package dashboard holds the state of the teacher dashboard: the course
// analytics table, the profile editor and the knowledge base inspector.
//
// Failures leave the previous state in place and are returned to the caller
// to be shown as an alert. The only operation allowed to blank out data is a
// successful knowledge base clear.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/pavelanni/aitutor/internal/model"
)

var (
	// ErrNotConfirmed is returned by ClearKnowledgeBase without confirmation.
	ErrNotConfirmed = errors.New("clear not confirmed")
	// ErrNoProfile is returned when saving while no profile is being edited.
	ErrNoProfile = errors.New("no profile open")
	// ErrBusy is returned when the same action is already in flight.
	ErrBusy = errors.New("action in progress")
)

// DefaultLearningStyle is shown when a profile has none.
const DefaultLearningStyle = "General"

// Service is the slice of the gateway the dashboard needs.
type Service interface {
	Analytics(ctx context.Context, courseID int64) (*model.CourseAnalytics, error)
	Profile(ctx context.Context, studentID int64) (*model.StudentProfile, error)
	UpdateProfile(ctx context.Context, studentID int64, upd model.ProfileUpdate) (*model.StudentProfile, error)
	KnowledgeBase(ctx context.Context, courseID int64) (*model.KnowledgeBaseSnapshot, error)
	ClearKnowledgeBase(ctx context.Context, courseID int64) error
	Ingest(ctx context.Context, courseID int64) (*model.IngestResult, error)
	Courses(ctx context.Context) ([]model.Course, error)
}

// Status is the progress label of a student.
type Status string

const (
	StatusOnTrack      Status = "On Track"
	StatusNeedsSupport Status = "Needs Support"
	StatusAtRisk       Status = "At Risk"
)

// MessageID returns the localization key of the label.
func (s Status) MessageID() string {
	switch s {
	case StatusOnTrack:
		return "StatusOnTrack"
	case StatusNeedsSupport:
		return "StatusNeedsSupport"
	default:
		return "StatusAtRisk"
	}
}

// StatusFor labels an average score.
func StatusFor(avg float64) Status {
	switch {
	case avg >= 80:
		return StatusOnTrack
	case avg >= 50:
		return StatusNeedsSupport
	default:
		return StatusAtRisk
	}
}

// ProfileForm is the edit buffer of the profile modal. List fields hold the
// comma-joined text as typed.
type ProfileForm struct {
	StudentID     int64
	Name          string
	LearningStyle string
	Strengths     string
	Weaknesses    string
}

// Dashboard is the teacher dashboard state of one view.
type Dashboard struct {
	svc Service

	mu        sync.Mutex
	gen       uint64
	courseID  int64
	analytics *model.CourseAnalytics
	loading   bool

	form   *ProfileForm
	saving bool

	kbOpen     bool
	kbLoading  bool
	kbClearing bool
	kb         *model.KnowledgeBaseSnapshot

	ingesting bool
}

// New creates an empty dashboard.
func New(svc Service) *Dashboard {
	return &Dashboard{svc: svc}
}

// Snapshot is a consistent copy of the dashboard state for rendering.
type Snapshot struct {
	CourseID      int64
	Analytics     *model.CourseAnalytics
	Loading       bool
	Profile       *ProfileForm
	SavingProfile bool
	KBOpen        bool
	KBLoading     bool
	KBClearing    bool
	KB            *model.KnowledgeBaseSnapshot
	Ingesting     bool
}

// Snapshot returns a copy of the current state.
func (d *Dashboard) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Snapshot{
		CourseID:      d.courseID,
		Loading:       d.loading,
		SavingProfile: d.saving,
		KBOpen:        d.kbOpen,
		KBLoading:     d.kbLoading,
		KBClearing:    d.kbClearing,
		Ingesting:     d.ingesting,
	}
	if d.analytics != nil {
		a := *d.analytics
		a.Students = slices.Clone(a.Students)
		s.Analytics = &a
	}
	if d.form != nil {
		f := *d.form
		s.Profile = &f
	}
	if d.kb != nil {
		kb := *d.kb
		kb.Sources = slices.Clone(kb.Sources)
		s.KB = &kb
	}
	return s
}

// Rows returns the analytics rows of the current table.
func (d *Dashboard) Rows() []model.StudentAnalyticsRow {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.analytics == nil {
		return nil
	}
	return slices.Clone(d.analytics.Students)
}

// CourseID returns the course the dashboard shows.
func (d *Dashboard) CourseID() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.courseID
}

// Load replaces the analytics table with the one of courseID. On failure the
// previous table stays.
func (d *Dashboard) Load(ctx context.Context, courseID int64) error {
	d.mu.Lock()
	d.gen++
	gen := d.gen
	d.courseID = courseID
	d.loading = true
	d.mu.Unlock()

	a, err := d.svc.Analytics(ctx, courseID)

	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen {
		slog.Debug("discarding stale analytics", "course_id", courseID)
		return nil
	}
	d.loading = false
	if err != nil {
		return fmt.Errorf("load analytics: %w", err)
	}
	d.analytics = a
	return nil
}

// EditProfile loads the profile of studentID into the edit buffer and opens
// the modal. On failure the modal stays closed.
func (d *Dashboard) EditProfile(ctx context.Context, studentID int64, name string) error {
	p, err := d.svc.Profile(ctx, studentID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	style := p.LearningStyle
	if style == "" {
		style = DefaultLearningStyle
	}
	if name == "" {
		name = p.Name
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.form = &ProfileForm{
		StudentID:     studentID,
		Name:          name,
		LearningStyle: style,
		Strengths:     strings.Join(p.Strengths, ", "),
		Weaknesses:    strings.Join(p.Weaknesses, ", "),
	}
	return nil
}

// SetProfileForm updates the edit buffer with what the teacher typed.
func (d *Dashboard) SetProfileForm(learningStyle, strengths, weaknesses string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.form == nil {
		return ErrNoProfile
	}
	d.form.LearningStyle = learningStyle
	d.form.Strengths = strengths
	d.form.Weaknesses = weaknesses
	return nil
}

// SaveProfile writes the edit buffer. Only the learning style of the
// analytics row is patched locally; the modal closes on success and stays
// open on failure.
func (d *Dashboard) SaveProfile(ctx context.Context) error {
	d.mu.Lock()
	if d.form == nil {
		d.mu.Unlock()
		return ErrNoProfile
	}
	if d.saving {
		d.mu.Unlock()
		return ErrBusy
	}
	d.saving = true
	form := *d.form
	d.mu.Unlock()

	style := form.LearningStyle
	upd := model.ProfileUpdate{
		LearningStyle: &style,
		Strengths:     SplitList(form.Strengths),
		Weaknesses:    SplitList(form.Weaknesses),
	}
	updated, err := d.svc.UpdateProfile(ctx, form.StudentID, upd)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.saving = false
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	if d.analytics != nil {
		for i := range d.analytics.Students {
			if d.analytics.Students[i].ID == form.StudentID {
				d.analytics.Students[i].LearningStyle = updated.LearningStyle
			}
		}
	}
	d.form = nil
	return nil
}

// CancelProfile closes the modal and discards the buffer.
func (d *Dashboard) CancelProfile() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.form = nil
}

// OpenKnowledgeBase opens the inspector and fetches the snapshot of the
// current course. On failure the previous snapshot stays.
func (d *Dashboard) OpenKnowledgeBase(ctx context.Context) error {
	d.mu.Lock()
	d.kbOpen = true
	d.kbLoading = true
	courseID := d.courseID
	d.mu.Unlock()

	kb, err := d.svc.KnowledgeBase(ctx, courseID)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.kbLoading = false
	if err != nil {
		return fmt.Errorf("load knowledge base: %w", err)
	}
	d.kb = kb
	return nil
}

// CloseKnowledgeBase hides the inspector and drops its snapshot.
func (d *Dashboard) CloseKnowledgeBase() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kbOpen = false
	d.kb = nil
}

// ClearKnowledgeBase deletes the ingested content of the current course.
// Without confirmation nothing is sent. On success the snapshot becomes
// empty without a re-fetch.
func (d *Dashboard) ClearKnowledgeBase(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}
	d.mu.Lock()
	if d.kbClearing {
		d.mu.Unlock()
		return ErrBusy
	}
	d.kbClearing = true
	courseID := d.courseID
	d.mu.Unlock()

	err := d.svc.ClearKnowledgeBase(ctx, courseID)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.kbClearing = false
	if err != nil {
		return fmt.Errorf("clear knowledge base: %w", err)
	}
	empty := model.EmptyKnowledgeBase(courseID)
	d.kb = &empty
	return nil
}

// Ingest asks the service to ingest the current course. The returned error
// carries the service detail for the alert.
func (d *Dashboard) Ingest(ctx context.Context) (*model.IngestResult, error) {
	d.mu.Lock()
	if d.ingesting {
		d.mu.Unlock()
		return nil, ErrBusy
	}
	d.ingesting = true
	courseID := d.courseID
	d.mu.Unlock()

	res, err := d.svc.Ingest(ctx, courseID)

	d.mu.Lock()
	d.ingesting = false
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("ingest course %d: %w", courseID, err)
	}
	return res, nil
}

// Courses lists the courses for the selector.
func (d *Dashboard) Courses(ctx context.Context) ([]model.Course, error) {
	courses, err := d.svc.Courses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// SplitList turns comma-separated input into a list: items are trimmed,
// empty items dropped and repeats removed.
func SplitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" || slices.Contains(out, part) {
			continue
		}
		out = append(out, part)
	}
	return out
}
