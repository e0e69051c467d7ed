package chat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pavelanni/aitutor/internal/i18n"
	"github.com/pavelanni/aitutor/internal/model"
)

// OpKind names a placeholder-backed action.
type OpKind string

const (
	OpQuiz         OpKind = "quiz"
	OpLearningPath OpKind = "learning_path"
)

// OpState is the lifecycle of a placeholder-backed action.
type OpState int

const (
	// OpPending means the placeholder is shown and the request is in flight.
	OpPending OpState = iota
	// OpResolved means the placeholder was replaced by the result.
	OpResolved
	// OpFailed means the placeholder was replaced by a failure message.
	OpFailed
	// OpDiscarded means the context changed before the response arrived.
	OpDiscarded
)

func (s OpState) String() string {
	switch s {
	case OpPending:
		return "pending"
	case OpResolved:
		return "resolved"
	case OpFailed:
		return "failed"
	default:
		return "discarded"
	}
}

// Operation tracks one placeholder from creation to replacement. The
// placeholder is located by PlaceholderID, never by its text.
type Operation struct {
	ID            string
	Kind          OpKind
	State         OpState
	PlaceholderID string
	ResultID      string
}

// Operation returns a snapshot of the operation with the given id.
func (s *Session) Operation(id string) (Operation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[id]
	if !ok {
		return Operation{}, false
	}
	return *op, true
}

type pendingOp struct {
	op   *Operation
	gen  uint64
	pair model.Pair
}

// beginOp appends the placeholder and registers the operation.
func (s *Session) beginOp(kind OpKind, placeholder string) (pendingOp, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return pendingOp{}, false
	}
	s.busy = true
	op := &Operation{ID: newID(), Kind: kind, State: OpPending, PlaceholderID: newID()}
	s.ops[op.ID] = op
	s.messages = append(s.messages, model.Message{
		ID:      op.PlaceholderID,
		Role:    model.SpeakerAssistant,
		Content: placeholder,
	})
	return pendingOp{op: op, gen: s.gen, pair: s.pair}, true
}

// settle swaps the placeholder of p for result. A stale operation only
// drops its placeholder.
func (s *Session) settle(p pendingOp, result model.Message, state OpState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false

	idx := -1
	for i, m := range s.messages {
		if m.ID == p.op.PlaceholderID {
			idx = i
			break
		}
	}

	if p.gen != s.gen {
		if idx >= 0 {
			s.messages = append(s.messages[:idx:idx], s.messages[idx+1:]...)
		}
		p.op.State = OpDiscarded
		slog.Debug("discarding stale operation", "op", p.op.ID, "kind", p.op.Kind)
		return
	}

	result.ID = newID()
	result.Role = model.SpeakerAssistant
	if idx >= 0 {
		s.messages[idx] = result
	} else {
		s.messages = append(s.messages, result)
	}
	p.op.State = state
	p.op.ResultID = result.ID
}

func (s *Session) beginQuiz(ctx context.Context) (pendingOp, bool) {
	return s.beginOp(OpQuiz, i18n.T(ctx, "QuizGenerating"))
}

func (s *Session) finishQuiz(ctx context.Context, p pendingOp, topic string) {
	if strings.TrimSpace(topic) == "" {
		topic = i18n.T(ctx, "QuizTopicDefault")
	}
	quiz, err := s.svc.GenerateQuiz(ctx, p.pair.CourseID, topic)
	if err != nil {
		slog.Error("generate quiz", "course_id", p.pair.CourseID, "topic", topic, "error", err)
		s.settle(p, model.Message{Content: i18n.T(ctx, "QuizFailed")}, OpFailed)
		return
	}
	quiz.Topic = topic
	pair := p.pair
	s.settle(p, model.Message{
		Content: i18n.T(ctx, "QuizReady"),
		Quiz:    quiz,
		Context: &pair,
	}, OpResolved)
}

// GenerateQuiz shows a placeholder, requests a quiz on topic and replaces
// the placeholder with the quiz card or a failure message. An empty topic
// means a general course review. It returns the operation id, or "" when the
// session is busy.
func (s *Session) GenerateQuiz(ctx context.Context, topic string) string {
	p, ok := s.beginQuiz(ctx)
	if !ok {
		return ""
	}
	s.finishQuiz(ctx, p, topic)
	return p.op.ID
}

// GenerateQuizAsync shows the placeholder and returns; the quiz is applied
// in the background.
func (s *Session) GenerateQuizAsync(ctx context.Context, topic string) string {
	p, ok := s.beginQuiz(ctx)
	if !ok {
		return ""
	}
	s.background(func() { s.finishQuiz(ctx, p, topic) })
	return p.op.ID
}

func (s *Session) beginPath(ctx context.Context) (pendingOp, bool) {
	return s.beginOp(OpLearningPath, i18n.T(ctx, "PathAnalyzing"))
}

func (s *Session) finishPath(ctx context.Context, p pendingOp) {
	path, err := s.svc.LearningPath(ctx, p.pair.CourseID, p.pair.StudentID)
	if err != nil {
		slog.Error("learning path", "course_id", p.pair.CourseID, "student_id", p.pair.StudentID, "error", err)
		s.settle(p, model.Message{Content: i18n.T(ctx, "PathFailed")}, OpFailed)
		return
	}
	s.settle(p, model.Message{Content: PathContent(ctx, path)}, OpResolved)
}

// RequestLearningPath shows a placeholder, requests the student's learning
// path and replaces the placeholder with the framed result or a failure
// message. It returns the operation id, or "" when the session is busy.
func (s *Session) RequestLearningPath(ctx context.Context) string {
	p, ok := s.beginPath(ctx)
	if !ok {
		return ""
	}
	s.finishPath(ctx, p)
	return p.op.ID
}

// RequestLearningPathAsync shows the placeholder and returns; the path is
// applied in the background.
func (s *Session) RequestLearningPathAsync(ctx context.Context) string {
	p, ok := s.beginPath(ctx)
	if !ok {
		return ""
	}
	s.background(func() { s.finishPath(ctx, p) })
	return p.op.ID
}

// PathContent renders a learning path as a chat message body, framed by its
// status.
func PathContent(ctx context.Context, path *model.LearningPath) string {
	switch path.Status {
	case model.PathOnTrack:
		return i18n.Td(ctx, "PathOnTrack", map[string]any{
			"Message":         path.Message,
			"Recommendations": bullets(path.Recommendations),
		})
	case model.PathStart:
		return i18n.Td(ctx, "PathStart", map[string]any{
			"Message":         path.Message,
			"Recommendations": bullets(path.Recommendations),
		})
	default:
		return i18n.Td(ctx, "PathNeedsSupport", map[string]any{
			"Weaknesses": strings.Join(path.Weaknesses, ", "),
			"StudyPlan":  path.StudyPlan,
		})
	}
}

func bullets(items []string) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "- " + it
	}
	return strings.Join(lines, "\n")
}
