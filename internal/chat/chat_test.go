package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/aitutor/internal/gateway"
	"github.com/pavelanni/aitutor/internal/model"
)

const (
	welcomeText = "Hello! I am your AI Tutor. I can help you with your course materials. What would you like to know today?"
	apologyText = "I apologize, but I encountered an error trying to answer your question. Please try again."
	quizWait    = "Generating a quick quiz for you..."
)

var errDown = &gateway.RemoteError{Op: "test", Kind: gateway.KindNetwork, Err: errors.New("connection refused")}

type fakeService struct {
	mu sync.Mutex

	history    map[model.Pair][]model.HistoryEntry
	historyErr error
	// historyGate, when set, blocks ChatHistory for the given course until
	// the channel is closed.
	historyGate map[int64]chan struct{}
	historyHit  chan struct{}

	answer *model.Answer
	askErr error
	asked  []string
	askHit chan struct{}
	askGo  chan struct{}

	quiz     *model.QuizPayload
	quizErr  error
	topics   []string
	quizGate chan struct{}

	path    *model.LearningPath
	pathErr error

	ingestErr error
	ingested  []int64
}

func (f *fakeService) ChatHistory(_ context.Context, courseID, studentID int64) ([]model.HistoryEntry, error) {
	f.mu.Lock()
	gate := f.historyGate[courseID]
	f.mu.Unlock()
	if gate != nil {
		f.historyHit <- struct{}{}
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history[model.Pair{CourseID: courseID, StudentID: studentID}], nil
}

func (f *fakeService) Ask(_ context.Context, _, _ int64, q string) (*model.Answer, error) {
	f.mu.Lock()
	f.asked = append(f.asked, q)
	hit, gate := f.askHit, f.askGo
	f.mu.Unlock()
	if hit != nil {
		hit <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if f.askErr != nil {
		return nil, f.askErr
	}
	return f.answer, nil
}

func (f *fakeService) GenerateQuiz(_ context.Context, _ int64, topic string) (*model.QuizPayload, error) {
	f.mu.Lock()
	f.topics = append(f.topics, topic)
	gate := f.quizGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if f.quizErr != nil {
		return nil, f.quizErr
	}
	q := *f.quiz
	return &q, nil
}

func (f *fakeService) LearningPath(_ context.Context, _, _ int64) (*model.LearningPath, error) {
	if f.pathErr != nil {
		return nil, f.pathErr
	}
	return f.path, nil
}

func (f *fakeService) Ingest(_ context.Context, courseID int64) (*model.IngestResult, error) {
	f.mu.Lock()
	f.ingested = append(f.ingested, courseID)
	f.mu.Unlock()
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	return &model.IngestResult{Status: "success", ChunksCount: 12}, nil
}

var pair23 = model.Pair{CourseID: 2, StudentID: 3}

func sampleQuiz() *model.QuizPayload {
	return &model.QuizPayload{
		Question:      "What do plants produce during photosynthesis?",
		Options:       []string{"Oxygen", "Nitrogen", "Helium", "Argon"},
		CorrectAnswer: "Oxygen",
		Explanation:   "Photosynthesis releases oxygen.",
	}
}

func contents(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestLoadEmptyHistoryShowsWelcome(t *testing.T) {
	s := New(&fakeService{}, pair23)
	s.Load(context.Background(), pair23)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.SpeakerAssistant, msgs[0].Role)
	assert.Equal(t, welcomeText, msgs[0].Content)
}

func TestLoadKeepsServerOrder(t *testing.T) {
	svc := &fakeService{history: map[model.Pair][]model.HistoryEntry{
		pair23: {
			{ID: 7, Role: model.SpeakerUser, Content: "first"},
			{ID: 3, Role: model.SpeakerAssistant, Content: "second"},
			{ID: 9, Role: model.SpeakerUser, Content: "third"},
		},
	}}
	s := New(svc, pair23)
	s.Load(context.Background(), pair23)

	assert.Equal(t, []string{"first", "second", "third"}, contents(s.Messages()))
}

func TestLoadFailureKeepsRenderedMessages(t *testing.T) {
	svc := &fakeService{answer: &model.Answer{Answer: "ok"}}
	s := New(svc, pair23)
	s.Load(context.Background(), pair23)
	require.True(t, s.Ask(context.Background(), "hi"))

	svc.historyErr = errDown
	s.Load(context.Background(), model.Pair{CourseID: 5, StudentID: 3})

	assert.Equal(t, []string{welcomeText, "hi", "ok"}, contents(s.Messages()))
}

func TestLoadFailureWithNothingShowsWelcome(t *testing.T) {
	s := New(&fakeService{historyErr: errDown}, pair23)
	s.Load(context.Background(), pair23)

	assert.Equal(t, []string{welcomeText}, contents(s.Messages()))
}

func TestStaleHistoryIsDiscarded(t *testing.T) {
	slow := make(chan struct{})
	svc := &fakeService{
		history: map[model.Pair][]model.HistoryEntry{
			{CourseID: 1, StudentID: 3}: {{ID: 1, Role: model.SpeakerUser, Content: "old course"}},
			{CourseID: 2, StudentID: 3}: {{ID: 2, Role: model.SpeakerUser, Content: "new course"}},
		},
		historyGate: map[int64]chan struct{}{1: slow},
		historyHit:  make(chan struct{}),
	}
	s := New(svc, model.Pair{CourseID: 1, StudentID: 3})

	s.LoadAsync(context.Background(), model.Pair{CourseID: 1, StudentID: 3})
	<-svc.historyHit
	s.Load(context.Background(), pair23)
	close(slow)
	require.NoError(t, s.Wait(context.Background()))

	assert.Equal(t, []string{"new course"}, contents(s.Messages()))
	assert.Equal(t, pair23, s.Pair())
}

func TestBlankQuestionIsNoop(t *testing.T) {
	for _, input := range []string{"", "   ", "\t\n"} {
		svc := &fakeService{answer: &model.Answer{Answer: "x"}}
		s := New(svc, pair23)
		s.Load(context.Background(), pair23)

		assert.False(t, s.Ask(context.Background(), input))
		assert.Len(t, s.Messages(), 1, "input %q", input)
		assert.Empty(t, svc.asked)
	}
}

func TestWelcomeThenAskScenario(t *testing.T) {
	cid := int64(2)
	svc := &fakeService{
		answer: &model.Answer{
			Answer:  "Photosynthesis turns light into chemical energy.",
			Sources: []model.Source{{Source: "biology.md", Type: "page", CourseID: &cid}},
		},
		askHit: make(chan struct{}),
		askGo:  make(chan struct{}),
	}
	s := New(svc, pair23)
	s.Load(context.Background(), pair23)
	require.Equal(t, []string{welcomeText}, contents(s.Messages()))

	require.True(t, s.AskAsync(context.Background(), "What is photosynthesis?"))
	<-svc.askHit

	// The user message is visible while the request is in flight.
	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.SpeakerUser, msgs[1].Role)
	assert.Equal(t, "What is photosynthesis?", msgs[1].Content)
	assert.True(t, s.Busy())
	assert.False(t, s.Ask(context.Background(), "another"), "busy session refuses input")

	close(svc.askGo)
	require.NoError(t, s.Wait(context.Background()))

	msgs = s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, model.SpeakerAssistant, msgs[2].Role)
	assert.Equal(t, "Photosynthesis turns light into chemical energy.", msgs[2].Content)
	require.Len(t, msgs[2].Sources, 1)
	assert.Equal(t, "biology.md", msgs[2].Sources[0].Source)
	assert.False(t, s.Busy())
	assert.Equal(t, []string{"What is photosynthesis?"}, svc.asked)
}

func TestWaitGivesUpOnHungRequest(t *testing.T) {
	svc := &fakeService{
		answer: &model.Answer{Answer: "late"},
		askHit: make(chan struct{}),
		askGo:  make(chan struct{}),
	}
	s := New(svc, pair23)
	s.Load(context.Background(), pair23)
	require.True(t, s.AskAsync(context.Background(), "anyone there?"))
	<-svc.askHit

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := s.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, s.Busy())

	close(svc.askGo)
	require.NoError(t, s.Wait(context.Background()))
	assert.False(t, s.Busy())
}

func TestAskFailureAppendsApology(t *testing.T) {
	s := New(&fakeService{askErr: errDown}, pair23)
	s.Load(context.Background(), pair23)

	require.True(t, s.Ask(context.Background(), "why?"))
	assert.Equal(t, []string{welcomeText, "why?", apologyText}, contents(s.Messages()))
	assert.False(t, s.Busy())
}

func TestQuizPlaceholderReplacedOnSuccess(t *testing.T) {
	gate := make(chan struct{})
	svc := &fakeService{quiz: sampleQuiz(), quizGate: gate}
	s := New(svc, pair23)
	s.Load(context.Background(), pair23)

	opID := s.GenerateQuizAsync(context.Background(), "")
	require.NotEmpty(t, opID)

	op, ok := s.Operation(opID)
	require.True(t, ok)
	assert.Equal(t, OpPending, op.State)
	assert.Equal(t, []string{welcomeText, quizWait}, contents(s.Messages()))
	assert.Equal(t, op.PlaceholderID, s.Messages()[1].ID)

	close(gate)
	require.NoError(t, s.Wait(context.Background()))

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.NotContains(t, contents(msgs), quizWait)
	assert.Equal(t, "Here is a practice question based on your course content:", msgs[1].Content)
	require.NotNil(t, msgs[1].Quiz)
	assert.Equal(t, "General Course Review", msgs[1].Quiz.Topic)
	require.NotNil(t, msgs[1].Context)
	assert.Equal(t, pair23, *msgs[1].Context)

	op, _ = s.Operation(opID)
	assert.Equal(t, OpResolved, op.State)
	assert.Equal(t, msgs[1].ID, op.ResultID)
	assert.Equal(t, []string{"General Course Review"}, svc.topics)
}

func TestQuizPlaceholderReplacedOnFailure(t *testing.T) {
	s := New(&fakeService{quizErr: errDown}, pair23)
	s.Load(context.Background(), pair23)

	opID := s.GenerateQuiz(context.Background(), "Cells")
	msgs := s.Messages()
	assert.Equal(t, []string{welcomeText, "Sorry, I couldn't generate a quiz right now."}, contents(msgs))
	for _, m := range msgs {
		assert.Nil(t, m.Quiz)
	}

	op, ok := s.Operation(opID)
	require.True(t, ok)
	assert.Equal(t, OpFailed, op.State)
}

func TestQuizPlaceholderMatchedByIDNotText(t *testing.T) {
	s := New(&fakeService{
		quiz: sampleQuiz(),
		history: map[model.Pair][]model.HistoryEntry{
			// A persisted message that happens to carry the placeholder text.
			pair23: {{ID: 1, Role: model.SpeakerAssistant, Content: quizWait}},
		},
	}, pair23)
	s.Load(context.Background(), pair23)

	s.GenerateQuiz(context.Background(), "Cells")

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, quizWait, msgs[0].Content)
	assert.NotNil(t, msgs[1].Quiz)
	assert.Equal(t, "Cells", msgs[1].Quiz.Topic)
}

func TestStaleQuizDropsPlaceholder(t *testing.T) {
	gate := make(chan struct{})
	svc := &fakeService{quiz: sampleQuiz(), quizGate: gate, historyErr: errDown}
	s := New(svc, pair23)
	s.Load(context.Background(), pair23)

	opID := s.GenerateQuizAsync(context.Background(), "")
	s.Load(context.Background(), model.Pair{CourseID: 9, StudentID: 3})
	close(gate)
	require.NoError(t, s.Wait(context.Background()))

	op, _ := s.Operation(opID)
	assert.Equal(t, OpDiscarded, op.State)
	assert.Equal(t, []string{welcomeText}, contents(s.Messages()))
	assert.False(t, s.Busy())
}

func TestLearningPathFraming(t *testing.T) {
	tests := []struct {
		name string
		path *model.LearningPath
		want []string
	}{
		{
			name: "on track",
			path: &model.LearningPath{
				Status:          model.PathOnTrack,
				Message:         "You're doing great!",
				Recommendations: []string{"Try advanced topics", "Help a peer"},
			},
			want: []string{"### 🌟 Great Progress!", "You're doing great!", "**Recommendations:**\n- Try advanced topics\n- Help a peer"},
		},
		{
			name: "start",
			path: &model.LearningPath{
				Status:          model.PathStart,
				Message:         "Take your first quiz.",
				Recommendations: []string{"Take a Pop Quiz"},
			},
			want: []string{"### 👋 Welcome!", "**Getting Started:**\n- Take a Pop Quiz"},
		},
		{
			name: "needs support",
			path: &model.LearningPath{
				Status:     model.PathNeedsSupport,
				Weaknesses: []string{"Cells", "Genetics"},
				StudyPlan:  "1. Review cells.",
			},
			want: []string{"### 🎯 Personalized Study Plan", "**Cells, Genetics**", "Here is your custom plan:\n\n1. Review cells."},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := New(&fakeService{path: tc.path}, pair23)
			s.Load(context.Background(), pair23)

			opID := s.RequestLearningPath(context.Background())
			msgs := s.Messages()
			require.Len(t, msgs, 2)
			for _, w := range tc.want {
				assert.Contains(t, msgs[1].Content, w)
			}
			op, _ := s.Operation(opID)
			assert.Equal(t, OpResolved, op.State)
			assert.Equal(t, OpLearningPath, op.Kind)
		})
	}
}

func TestLearningPathFailure(t *testing.T) {
	s := New(&fakeService{pathErr: errDown}, pair23)
	s.Load(context.Background(), pair23)

	s.RequestLearningPath(context.Background())
	msgs := contents(s.Messages())
	assert.Equal(t, []string{welcomeText, "Sorry, I couldn't generate a learning path right now."}, msgs)
	for _, m := range msgs {
		assert.False(t, strings.HasPrefix(m, "Analyzing"))
	}
}

func TestIngestCourse(t *testing.T) {
	svc := &fakeService{}
	s := New(svc, pair23)
	s.Load(context.Background(), pair23)

	require.True(t, s.IngestCourse(context.Background()))
	msgs := s.Messages()
	assert.Equal(t, "Successfully ingested content for Course 2. I am now ready to answer questions about it!", msgs[len(msgs)-1].Content)
	assert.Equal(t, []int64{2}, svc.ingested)

	svc.ingestErr = errDown
	require.True(t, s.IngestCourse(context.Background()))
	msgs = s.Messages()
	assert.Equal(t, "Sorry, I couldn't refresh the course content right now.", msgs[len(msgs)-1].Content)
}
