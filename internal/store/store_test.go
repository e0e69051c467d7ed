package store

import (
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/aitutor/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

const testRoster = `
courses:
  - id: 2
    fullname: Introduction to Biology
    shortname: BIO101
    members:
      - id: 3
        name: Alice Smith
        email: alice@example.com
      - id: 4
        name: Bob Jones
      - id: 9
        name: Dr. Green
        role: teacher
  - id: 5
    fullname: Chemistry
    shortname: CHEM
`

func seedRoster(t *testing.T, s *Store) {
	t.Helper()
	if _, err := s.ImportRoster("roster.yaml", []byte(testRoster)); err != nil {
		t.Fatalf("ImportRoster: %v", err)
	}
}

func TestImportRoster(t *testing.T) {
	s := newTestStore(t)

	changed, err := s.ImportRoster("roster.yaml", []byte(testRoster))
	if err != nil {
		t.Fatalf("ImportRoster: %v", err)
	}
	if !changed {
		t.Fatal("expected first import to write")
	}

	changed, err = s.ImportRoster("roster.yaml", []byte(testRoster))
	if err != nil {
		t.Fatalf("ImportRoster again: %v", err)
	}
	if changed {
		t.Error("expected unchanged roster to be skipped")
	}

	courses, err := s.ListCourses()
	if err != nil {
		t.Fatalf("ListCourses: %v", err)
	}
	if len(courses) != 2 || courses[0].ID != 2 || courses[1].ShortName != "CHEM" {
		t.Errorf("unexpected courses: %+v", courses)
	}

	students, err := s.ListStudents(2)
	if err != nil {
		t.Fatalf("ListStudents: %v", err)
	}
	if len(students) != 2 {
		t.Fatalf("expected 2 students (teacher excluded), got %d", len(students))
	}
	if students[0].Email == nil || *students[0].Email != "alice@example.com" {
		t.Errorf("expected alice's email, got %v", students[0].Email)
	}
	if students[1].Email != nil {
		t.Errorf("expected no email for bob, got %q", *students[1].Email)
	}

	// A changed roster is applied on top.
	updated := testRoster + "\n  - id: 6\n    fullname: Physics\n"
	changed, err = s.ImportRoster("roster.yaml", []byte(updated))
	if err != nil {
		t.Fatalf("ImportRoster updated: %v", err)
	}
	if !changed {
		t.Error("expected changed roster to be imported")
	}
	if _, err := s.GetCourse(6); err != nil {
		t.Errorf("GetCourse(6): %v", err)
	}
}

func TestParseRosterRejectsMissingIDs(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"course without id", "courses:\n  - fullname: X\n"},
		{"member without id", "courses:\n  - id: 1\n    fullname: X\n    members:\n      - name: Y\n"},
		{"not yaml", "courses: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRoster([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestGetCourseNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetCourse(42); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetMember(42); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHistoryOrder(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	turns := []struct {
		role    model.Speaker
		content string
	}{
		{model.SpeakerUser, "What is a cell?"},
		{model.SpeakerAssistant, "The basic unit of life."},
		{model.SpeakerUser, "Thanks"},
	}
	for i, turn := range turns {
		if _, err := s.AppendMessage(2, 3, turn.role, turn.content, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	// Another student's log must not leak in.
	if _, err := s.AppendMessage(2, 4, model.SpeakerUser, "other", base); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	history, err := s.History(2, 3, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != len(turns) {
		t.Fatalf("expected %d entries, got %d", len(turns), len(history))
	}
	for i, turn := range turns {
		if history[i].Role != turn.role || history[i].Content != turn.content {
			t.Errorf("entry %d: got %s %q", i, history[i].Role, history[i].Content)
		}
	}
	if !history[0].CreatedAt.Equal(base) {
		t.Errorf("expected created_at %v, got %v", base, history[0].CreatedAt)
	}

	latest, err := s.History(2, 3, 2)
	if err != nil {
		t.Fatalf("History with limit: %v", err)
	}
	if len(latest) != 2 || latest[0].Content != turns[1].content || latest[1].Content != "Thanks" {
		t.Errorf("expected the latest 2 turns oldest first, got %+v", latest)
	}

	empty, err := s.History(5, 3, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil history, got %v", empty)
	}
}

func TestQuizResultsAndAverage(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	for _, score := range []float64{100, 0, 100} {
		if err := s.RecordQuizResult(2, 3, QuizRecord{Topic: "Cells", Name: "Quiz: Cells", Score: score, TakenAt: now}); err != nil {
			t.Fatalf("RecordQuizResult: %v", err)
		}
	}
	recs, err := s.QuizResults(2, 3)
	if err != nil {
		t.Fatalf("QuizResults: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 results, got %d", len(recs))
	}
	if avg := AverageScore(recs); avg != 66.7 {
		t.Errorf("expected average 66.7, got %v", avg)
	}
	if avg := AverageScore(nil); avg != 0 {
		t.Errorf("expected 0 for no quizzes, got %v", avg)
	}
}

func TestProfileDefaultsAndUpdate(t *testing.T) {
	s := newTestStore(t)
	seedRoster(t, s)

	p, err := s.GetProfile(3)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.Name != "Alice Smith" || p.LearningStyle != "General" {
		t.Errorf("unexpected defaults: %+v", p)
	}
	if p.Strengths == nil || len(p.Strengths) != 0 {
		t.Errorf("expected empty strengths, got %v", p.Strengths)
	}

	style := "Visual"
	p, err = s.UpdateProfile(3, model.ProfileUpdate{
		LearningStyle: &style,
		Strengths:     []string{"Math"},
		Weaknesses:    []string{"Reading"},
	})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if p.LearningStyle != "Visual" || len(p.Strengths) != 1 || p.Weaknesses[0] != "Reading" {
		t.Errorf("unexpected profile after update: %+v", p)
	}

	// Nil lists and an empty style leave stored values alone.
	empty := ""
	p, err = s.UpdateProfile(3, model.ProfileUpdate{LearningStyle: &empty, Weaknesses: []string{}})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if p.LearningStyle != "Visual" {
		t.Errorf("expected style kept, got %q", p.LearningStyle)
	}
	if len(p.Strengths) != 1 {
		t.Errorf("expected strengths kept, got %v", p.Strengths)
	}
	if len(p.Weaknesses) != 0 {
		t.Errorf("expected weaknesses cleared, got %v", p.Weaknesses)
	}

	if _, err := s.GetProfile(999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPins(t *testing.T) {
	s := newTestStore(t)

	pins, err := s.Pins(3, 2)
	if err != nil {
		t.Fatalf("Pins: %v", err)
	}
	if len(pins) != 0 {
		t.Errorf("expected no pins, got %v", pins)
	}

	if err := s.SetPins(3, 2, []string{"A", "B"}); err != nil {
		t.Fatalf("SetPins: %v", err)
	}
	if err := s.SetPins(3, 2, []string{"B"}); err != nil {
		t.Fatalf("SetPins: %v", err)
	}
	pins, err = s.Pins(3, 2)
	if err != nil {
		t.Fatalf("Pins: %v", err)
	}
	if len(pins) != 1 || pins[0] != "B" {
		t.Errorf("expected full replacement [B], got %v", pins)
	}

	other, _ := s.Pins(3, 5)
	if len(other) != 0 {
		t.Errorf("pins leaked across courses: %v", other)
	}
}

func TestKnowledgeBase(t *testing.T) {
	s := newTestStore(t)

	kb, err := s.KnowledgeBase(2)
	if err != nil {
		t.Fatalf("KnowledgeBase: %v", err)
	}
	if kb.DocumentCount != 0 || kb.Sources == nil {
		t.Errorf("expected empty snapshot, got %+v", kb)
	}

	chunks := []Chunk{
		{Source: "Intro", Type: "page", Content: "a"},
		{Source: "Intro", Type: "page", Content: "b"},
		{Source: "Cells", Type: "label", Content: "c"},
	}
	if err := s.ReplaceChunks(2, chunks); err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}
	kb, err = s.KnowledgeBase(2)
	if err != nil {
		t.Fatalf("KnowledgeBase: %v", err)
	}
	if kb.DocumentCount != 3 {
		t.Errorf("expected 3 chunks, got %d", kb.DocumentCount)
	}
	if len(kb.Sources) != 2 || kb.Sources[0].Name != "Intro" || kb.Sources[0].ChunkCount != 2 {
		t.Errorf("unexpected sources: %+v", kb.Sources)
	}

	// Re-ingest replaces instead of appending.
	if err := s.ReplaceChunks(2, chunks[:1]); err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}
	got, _ := s.Chunks(2)
	if len(got) != 1 {
		t.Errorf("expected 1 chunk after replace, got %d", len(got))
	}

	n, err := s.ClearChunks(2)
	if err != nil {
		t.Fatalf("ClearChunks: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}
}

func TestExportCourse(t *testing.T) {
	s := newTestStore(t)
	seedRoster(t, s)

	now := time.Now()
	if err := s.RecordQuizResult(2, 3, QuizRecord{Topic: "Cells", Name: "Quiz: Cells", Score: 100, TakenAt: now}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AppendMessage(2, 3, model.SpeakerUser, "hi", now); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPins(3, 2, []string{"Review Cells"}); err != nil {
		t.Fatal(err)
	}

	exp, err := s.ExportCourse(2)
	if err != nil {
		t.Fatalf("ExportCourse: %v", err)
	}
	if exp.CourseName != "Introduction to Biology" {
		t.Errorf("unexpected course name %q", exp.CourseName)
	}
	if len(exp.Students) != 2 {
		t.Fatalf("expected 2 students, got %d", len(exp.Students))
	}
	alice := exp.Students[0]
	if alice.AvgScore != 100 || len(alice.Quizzes) != 1 || len(alice.Conversation) != 1 || alice.Pinned[0] != "Review Cells" {
		t.Errorf("unexpected export for alice: %+v", alice)
	}

	if _, err := s.ExportCourse(77); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)
	v, err := s.GetMetadata("missing")
	if err != nil || v != "" {
		t.Errorf("expected empty value, got %q, %v", v, err)
	}
	if err := s.SetImportedFileHash("a.yaml", "h1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetImportedFileHash("a.yaml", "h2"); err != nil {
		t.Fatal(err)
	}
	if h, _ := s.GetImportedFileHash("a.yaml"); h != "h2" {
		t.Errorf("expected h2, got %q", h)
	}
}
