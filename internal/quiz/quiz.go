// Package quiz tracks answers to in-chat quiz cards.
package quiz

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pavelanni/aitutor/internal/model"
	"github.com/pavelanni/aitutor/internal/persist"
)

// Submitter records quiz outcomes on the remote service.
type Submitter interface {
	SubmitQuizResult(ctx context.Context, res model.QuizResult) error
}

// Enqueuer schedules background writes.
type Enqueuer interface {
	Enqueue(t persist.Task) error
}

// OptionState is how one option of a card is rendered.
type OptionState int

const (
	// Open means the card is unanswered and the option is clickable.
	Open OptionState = iota
	// Correct marks the right answer once the card is answered.
	Correct
	// Wrong marks the user's incorrect pick.
	Wrong
	// Dimmed marks every other option of an answered card.
	Dimmed
)

func (s OptionState) String() string {
	switch s {
	case Correct:
		return "correct"
	case Wrong:
		return "wrong"
	case Dimmed:
		return "dimmed"
	default:
		return "open"
	}
}

// Board holds the attempts of every quiz card in one view, keyed by card
// instance. An attempt never changes once recorded.
type Board struct {
	svc   Submitter
	queue Enqueuer

	mu       sync.Mutex
	attempts map[string]model.QuizAttempt
}

// NewBoard creates an empty board. Results are submitted through queue.
func NewBoard(svc Submitter, queue Enqueuer) *Board {
	return &Board{svc: svc, queue: queue, attempts: make(map[string]model.QuizAttempt)}
}

// Attempt returns the recorded attempt of a card.
func (b *Board) Attempt(instanceID string) (model.QuizAttempt, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.attempts[instanceID]
	return a, ok
}

// Select answers the card instanceID with option. The first call records the
// attempt and schedules the result submission; it returns true. Any later
// call returns the existing attempt and false. An option that is not part of
// the payload is ignored.
func (b *Board) Select(instanceID string, payload model.QuizPayload, pair model.Pair, option string) (model.QuizAttempt, bool) {
	b.mu.Lock()
	if a, ok := b.attempts[instanceID]; ok {
		b.mu.Unlock()
		return a, false
	}
	if !payload.HasOption(option) {
		b.mu.Unlock()
		return model.QuizAttempt{}, false
	}
	a := model.QuizAttempt{Selected: option, IsCorrect: option == payload.CorrectAnswer}
	b.attempts[instanceID] = a
	b.mu.Unlock()

	res := model.QuizResult{
		CourseID:  pair.CourseID,
		StudentID: pair.StudentID,
		Topic:     payload.Topic,
		IsCorrect: a.IsCorrect,
	}
	err := b.queue.Enqueue(persist.Task{
		Name: "submit quiz result",
		Run: func(ctx context.Context) error {
			return b.svc.SubmitQuizResult(ctx, res)
		},
	})
	if err != nil {
		slog.Warn("quiz result not submitted", "card", instanceID, "error", err)
	}
	return a, true
}

// Feedback returns the render state of every option of payload, in option
// order. A nil attempt means the card is still open.
func Feedback(payload model.QuizPayload, attempt *model.QuizAttempt) []OptionState {
	out := make([]OptionState, len(payload.Options))
	if attempt == nil {
		return out
	}
	for i, o := range payload.Options {
		switch {
		case o == payload.CorrectAnswer:
			out[i] = Correct
		case o == attempt.Selected:
			out[i] = Wrong
		default:
			out[i] = Dimmed
		}
	}
	return out
}
