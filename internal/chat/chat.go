// Package chat owns the message log of one student in one course and
// reconciles it with the remote tutoring service.
//
// Every action is split into a local step, applied under the session mutex,
// and a remote step that runs without holding it. Responses that arrive after
// the context changed are discarded by generation.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/pavelanni/aitutor/internal/i18n"
	"github.com/pavelanni/aitutor/internal/model"
)

// Service is the slice of the gateway the chat needs.
type Service interface {
	ChatHistory(ctx context.Context, courseID, studentID int64) ([]model.HistoryEntry, error)
	Ask(ctx context.Context, courseID, studentID int64, question string) (*model.Answer, error)
	GenerateQuiz(ctx context.Context, courseID int64, topic string) (*model.QuizPayload, error)
	LearningPath(ctx context.Context, courseID, studentID int64) (*model.LearningPath, error)
	Ingest(ctx context.Context, courseID int64) (*model.IngestResult, error)
}

// Session is the chat log state machine of one view.
type Session struct {
	svc Service

	mu       sync.Mutex
	pair     model.Pair
	gen      uint64
	messages []model.Message
	ops      map[string]*Operation
	busy     bool

	wg sync.WaitGroup
}

// New creates a session for pair. Call Load to populate it.
func New(svc Service, pair model.Pair) *Session {
	return &Session{
		svc:  svc,
		pair: pair,
		ops:  make(map[string]*Operation),
	}
}

func newID() string { return uuid.NewString() }

// Pair returns the course/student pair the log belongs to.
func (s *Session) Pair() model.Pair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pair
}

// Messages returns a copy of the log in insertion order.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Busy reports whether an action is in flight. Actions are refused while busy.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Wait blocks until every background action started with an Async method
// has been applied, or until ctx is done. Requests are not cancelled, so an
// action stuck on a hung request is abandoned rather than awaited.
func (s *Session) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) background(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func welcome(ctx context.Context) model.Message {
	return model.Message{ID: newID(), Role: model.SpeakerAssistant, Content: i18n.T(ctx, "ChatWelcome")}
}

// Load switches the log to pair and hydrates it from the service history.
// A non-empty history replaces the log in server order; an empty one leaves a
// single welcome message. When the fetch fails the current messages are kept,
// or the welcome message is shown if there are none.
func (s *Session) Load(ctx context.Context, pair model.Pair) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.pair = pair
	s.mu.Unlock()

	hist, err := s.svc.ChatHistory(ctx, pair.CourseID, pair.StudentID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		slog.Debug("discarding stale chat history", "course_id", pair.CourseID, "student_id", pair.StudentID)
		return
	}
	if err != nil {
		slog.Error("load chat history", "course_id", pair.CourseID, "student_id", pair.StudentID, "error", err)
		if len(s.messages) == 0 {
			s.messages = []model.Message{welcome(ctx)}
		}
		return
	}
	if len(hist) == 0 {
		s.messages = []model.Message{welcome(ctx)}
		return
	}
	msgs := make([]model.Message, 0, len(hist))
	for _, h := range hist {
		msgs = append(msgs, model.Message{
			ID:      fmt.Sprintf("h%d", h.ID),
			Role:    h.Role,
			Content: h.Content,
		})
	}
	s.messages = msgs
}

// LoadAsync runs Load in the background.
func (s *Session) LoadAsync(ctx context.Context, pair model.Pair) {
	s.background(func() { s.Load(ctx, pair) })
}

type pendingAsk struct {
	gen      uint64
	pair     model.Pair
	question string
}

// beginAsk appends the user message and marks the session busy.
func (s *Session) beginAsk(input string) (pendingAsk, bool) {
	if strings.TrimSpace(input) == "" {
		return pendingAsk{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return pendingAsk{}, false
	}
	s.busy = true
	s.messages = append(s.messages, model.Message{ID: newID(), Role: model.SpeakerUser, Content: input})
	return pendingAsk{gen: s.gen, pair: s.pair, question: input}, true
}

func (s *Session) finishAsk(ctx context.Context, p pendingAsk) {
	ans, err := s.svc.Ask(ctx, p.pair.CourseID, p.pair.StudentID, p.question)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if p.gen != s.gen {
		slog.Debug("discarding stale answer", "course_id", p.pair.CourseID)
		return
	}
	if err != nil {
		slog.Error("ask question", "course_id", p.pair.CourseID, "student_id", p.pair.StudentID, "error", err)
		s.messages = append(s.messages, model.Message{
			ID:      newID(),
			Role:    model.SpeakerAssistant,
			Content: i18n.T(ctx, "ChatAskFailed"),
		})
		return
	}
	s.messages = append(s.messages, model.Message{
		ID:      newID(),
		Role:    model.SpeakerAssistant,
		Content: ans.Answer,
		Sources: ans.Sources,
	})
}

// Ask sends a question and appends the answer, or an apology when the
// service fails. Blank input and calls while busy are ignored; the return
// value reports whether the question was accepted.
func (s *Session) Ask(ctx context.Context, input string) bool {
	p, ok := s.beginAsk(input)
	if !ok {
		return false
	}
	s.finishAsk(ctx, p)
	return true
}

// AskAsync appends the user message and returns; the answer is applied in
// the background.
func (s *Session) AskAsync(ctx context.Context, input string) bool {
	p, ok := s.beginAsk(input)
	if !ok {
		return false
	}
	s.background(func() { s.finishAsk(ctx, p) })
	return true
}

type pendingIngest struct {
	gen  uint64
	pair model.Pair
}

func (s *Session) beginIngest() (pendingIngest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return pendingIngest{}, false
	}
	s.busy = true
	return pendingIngest{gen: s.gen, pair: s.pair}, true
}

func (s *Session) finishIngest(ctx context.Context, p pendingIngest) {
	_, err := s.svc.Ingest(ctx, p.pair.CourseID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if p.gen != s.gen {
		return
	}
	msg := model.Message{ID: newID(), Role: model.SpeakerAssistant}
	if err != nil {
		slog.Error("ingest course", "course_id", p.pair.CourseID, "error", err)
		msg.Content = i18n.T(ctx, "IngestChatFailed")
	} else {
		msg.Content = i18n.Td(ctx, "IngestDone", map[string]any{"CourseID": p.pair.CourseID})
	}
	s.messages = append(s.messages, msg)
}

// IngestCourse asks the service to re-ingest the course content and reports
// the outcome in the log.
func (s *Session) IngestCourse(ctx context.Context) bool {
	p, ok := s.beginIngest()
	if !ok {
		return false
	}
	s.finishIngest(ctx, p)
	return true
}

// IngestCourseAsync runs the ingest in the background.
func (s *Session) IngestCourseAsync(ctx context.Context) bool {
	p, ok := s.beginIngest()
	if !ok {
		return false
	}
	s.background(func() { s.finishIngest(ctx, p) })
	return true
}
