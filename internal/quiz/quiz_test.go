package quiz

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

type recorder struct {
	mu      sync.Mutex
	results []model.QuizResult
	err     error
}

func (r *recorder) SubmitQuizResult(_ context.Context, res model.QuizResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return r.err
}

func payload() model.QuizPayload {
	return model.QuizPayload{
		Question:      "Which organelle produces ATP?",
		Options:       []string{"Nucleus", "Mitochondria", "Ribosome", "Golgi"},
		CorrectAnswer: "Mitochondria",
		Explanation:   "Mitochondria are the powerhouse of the cell.",
		Topic:         "Cells",
	}
}

var pair = model.Pair{CourseID: 2, StudentID: 3}

func TestSelectRecordsOnce(t *testing.T) {
	tests := []struct {
		name    string
		first   string
		second  string
		correct bool
	}{
		{"correct then wrong", "Mitochondria", "Nucleus", true},
		{"wrong then correct", "Ribosome", "Mitochondria", false},
		{"same twice", "Golgi", "Golgi", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			q := persist.New(4)
			b := NewBoard(rec, q)

			a, ok := b.Select("card-1", payload(), pair, tc.first)
			require.True(t, ok)
			assert.Equal(t, tc.first, a.Selected)
			assert.Equal(t, tc.correct, a.IsCorrect)
			assert.Equal(t, tc.first == payload().CorrectAnswer, a.IsCorrect)

			again, ok := b.Select("card-1", payload(), pair, tc.second)
			assert.False(t, ok)
			assert.Equal(t, a, again)

			require.NoError(t, q.Close(context.Background()))
			require.Len(t, rec.results, 1, "only the first click is submitted")
			assert.Equal(t, model.QuizResult{CourseID: 2, StudentID: 3, Topic: "Cells", IsCorrect: tc.correct}, rec.results[0])
		})
	}
}

func TestCardsAreIndependent(t *testing.T) {
	rec := &recorder{}
	q := persist.New(4)
	b := NewBoard(rec, q)

	_, ok := b.Select("card-1", payload(), pair, "Nucleus")
	require.True(t, ok)
	_, ok = b.Select("card-2", payload(), pair, "Mitochondria")
	require.True(t, ok)

	require.NoError(t, q.Close(context.Background()))
	assert.Len(t, rec.results, 2)
}

func TestUnknownOptionIgnored(t *testing.T) {
	rec := &recorder{}
	q := persist.New(1)
	b := NewBoard(rec, q)

	_, ok := b.Select("card-1", payload(), pair, "Chloroplast")
	assert.False(t, ok)
	_, recorded := b.Attempt("card-1")
	assert.False(t, recorded)

	require.NoError(t, q.Close(context.Background()))
	assert.Empty(t, rec.results)
}

func TestSubmissionFailureKeepsAttempt(t *testing.T) {
	rec := &recorder{err: errors.New("service down")}
	q := persist.New(1)
	b := NewBoard(rec, q)

	a, ok := b.Select("card-1", payload(), pair, "Mitochondria")
	require.True(t, ok)
	require.NoError(t, q.Close(context.Background()))

	got, recorded := b.Attempt("card-1")
	require.True(t, recorded)
	assert.Equal(t, a, got)
}

func TestSelectAfterQueueClosed(t *testing.T) {
	q := persist.New(1)
	require.NoError(t, q.Close(context.Background()))
	b := NewBoard(&recorder{}, q)

	a, ok := b.Select("card-1", payload(), pair, "Nucleus")
	assert.True(t, ok, "local feedback does not depend on the write")
	assert.False(t, a.IsCorrect)
}

func TestFeedback(t *testing.T) {
	p := payload()

	assert.Equal(t, []OptionState{Open, Open, Open, Open}, Feedback(p, nil))

	wrong := &model.QuizAttempt{Selected: "Ribosome"}
	assert.Equal(t, []OptionState{Dimmed, Correct, Wrong, Dimmed}, Feedback(p, wrong))

	right := &model.QuizAttempt{Selected: "Mitochondria", IsCorrect: true}
	assert.Equal(t, []OptionState{Dimmed, Correct, Dimmed, Dimmed}, Feedback(p, right))
}
