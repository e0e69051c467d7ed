package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/aitutor/internal/gateway"
	"github.com/pavelanni/aitutor/internal/i18n"
	"github.com/pavelanni/aitutor/internal/model"
)

type fakeService struct {
	mu        sync.Mutex
	history   []model.HistoryEntry
	quiz      model.QuizPayload
	analytics model.CourseAnalytics
	ingestErr error
	submitted []model.QuizResult
	pins      [][]string
	cleared   int
	// askGate, when set, holds Ask until the channel is closed.
	askGate chan struct{}
}

func (f *fakeService) ChatHistory(ctx context.Context, courseID, studentID int64) ([]model.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history, nil
}

func (f *fakeService) Ask(ctx context.Context, courseID, studentID int64, question string) (*model.Answer, error) {
	f.mu.Lock()
	gate := f.askGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return &model.Answer{Answer: "Answer to " + question, Sources: []model.Source{{Source: "week1.pdf", Type: "file"}}}, nil
}

func (f *fakeService) GenerateQuiz(ctx context.Context, courseID int64, topic string) (*model.QuizPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.quiz
	return &q, nil
}

func (f *fakeService) LearningPath(ctx context.Context, courseID, studentID int64) (*model.LearningPath, error) {
	return &model.LearningPath{
		Status:                model.PathNeedsSupport,
		Weaknesses:            []string{"Loops"},
		Recommendations:       []string{"Review loops", "Practice recursion"},
		PinnedRecommendations: []string{"Review loops"},
	}, nil
}

func (f *fakeService) Ingest(ctx context.Context, courseID int64) (*model.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	return &model.IngestResult{Status: "success", ChunksCount: 4}, nil
}

func (f *fakeService) SubmitQuizResult(ctx context.Context, res model.QuizResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, res)
	return nil
}

func (f *fakeService) SetPinnedRecommendations(ctx context.Context, studentID, courseID int64, pinned []string) (*model.PinOverrides, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pins = append(f.pins, pinned)
	return &model.PinOverrides{CourseID: courseID, PinnedRecommendations: pinned}, nil
}

func (f *fakeService) Analytics(ctx context.Context, courseID int64) (*model.CourseAnalytics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.analytics
	a.CourseID = courseID
	return &a, nil
}

func (f *fakeService) Profile(ctx context.Context, studentID int64) (*model.StudentProfile, error) {
	return &model.StudentProfile{ID: studentID, Name: "Ada", LearningStyle: "Visual", Strengths: []string{"Math"}}, nil
}

func (f *fakeService) UpdateProfile(ctx context.Context, studentID int64, upd model.ProfileUpdate) (*model.StudentProfile, error) {
	return &model.StudentProfile{ID: studentID, LearningStyle: *upd.LearningStyle, Strengths: upd.Strengths, Weaknesses: upd.Weaknesses}, nil
}

func (f *fakeService) KnowledgeBase(ctx context.Context, courseID int64) (*model.KnowledgeBaseSnapshot, error) {
	return &model.KnowledgeBaseSnapshot{CourseID: courseID, DocumentCount: 3, Sources: []model.KnowledgeSource{{Name: "week1.pdf", Type: "file", ChunkCount: 3}}}, nil
}

func (f *fakeService) ClearKnowledgeBase(ctx context.Context, courseID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return nil
}

func (f *fakeService) Courses(ctx context.Context) ([]model.Course, error) {
	return []model.Course{{ID: 2, FullName: "Intro to Go"}}, nil
}

type testServer struct {
	h   *Handler
	svc *fakeService
	srv http.Handler
}

func newTestServer(t *testing.T, svc *fakeService) *testServer {
	t.Helper()
	require.NoError(t, i18n.Init("en"))
	h := New(svc, model.ServeConfig{DefaultCourseID: 2, DefaultStudentID: 3})
	r := chi.NewRouter()
	r.Use(i18n.Middleware("en"))
	h.Routes(r)
	return &testServer{h: h, svc: svc, srv: r}
}

// open performs the iframe load and returns the created view.
func (ts *testServer) open(t *testing.T, query string) *View {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(loc, "/v/"), loc)
	v, ok := ts.h.Registry().Get(strings.TrimPrefix(loc, "/v/"))
	require.True(t, ok)
	return v
}

func (ts *testServer) get(v *View, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v/"+v.ID+path, nil)
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) post(v *View, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v/"+v.ID+path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	req.Header.Set(csrfHeader, v.CSRF)
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	return rec
}

func TestIndexResolvesContext(t *testing.T) {
	ts := newTestServer(t, &fakeService{})
	v := ts.open(t, "courseid=5&studentId=7&role=teacher")

	c := v.Resolver.Context()
	assert.Equal(t, int64(5), c.CourseID)
	assert.Equal(t, int64(7), c.StudentID)
	assert.Equal(t, model.RoleTeacher, c.Role)
	assert.True(t, c.RoleEnforced)
	assert.Equal(t, 1, ts.h.Registry().Len())
}

func TestStudentPageShowsWelcome(t *testing.T) {
	ts := newTestServer(t, &fakeService{})
	v := ts.open(t, "")

	rec := ts.get(v, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Hello! I am your AI Tutor.")
	assert.Contains(t, body, v.CSRF)
	assert.Contains(t, body, "Intro to Go", "course selector shown when the host omitted the course")
	assert.Len(t, v.Chat.Messages(), 1)
}

func TestHostBadge(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    string
		notWant []string
	}{
		{"student only", "studentId=7&role=student", `<span class="badge">Student 7</span>`, []string{"•"}},
		{"course only", "courseId=5&role=student", `<span class="badge">Course 5</span>`, []string{"•"}},
		{"both", "courseId=5&studentId=7&role=student", `<span class="badge">Course 5 • Student 7</span>`, nil},
		{"neither", "role=student", "", []string{`class="badge"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &fakeService{})
			v := ts.open(t, tt.query)

			rec := ts.get(v, "/")
			require.Equal(t, http.StatusOK, rec.Code)
			body := rec.Body.String()
			if tt.want != "" {
				assert.Contains(t, body, tt.want)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, body, s)
			}
		})
	}
}

func TestExpiredView(t *testing.T) {
	ts := newTestServer(t, &fakeService{})
	req := httptest.NewRequest(http.MethodGet, "/v/nope/", nil)
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "expired")
}

func TestCSRFRequired(t *testing.T) {
	ts := newTestServer(t, &fakeService{})
	v := ts.open(t, "")

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"wrong", "not-the-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v/"+v.ID+"/chat/ask", strings.NewReader("question=hi"))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if tt.token != "" {
				req.Header.Set(csrfHeader, tt.token)
			}
			rec := httptest.NewRecorder()
			ts.srv.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})
	}
	assert.Empty(t, v.Chat.Messages())
}

func TestRoleSwitch(t *testing.T) {
	ts := newTestServer(t, &fakeService{})

	t.Run("free", func(t *testing.T) {
		v := ts.open(t, "")
		rec := ts.post(v, "/role", url.Values{"role": {"teacher"}})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "/v/"+v.ID, rec.Header().Get("HX-Redirect"))
		assert.Equal(t, model.RoleTeacher, v.Resolver.Context().Role)
	})

	t.Run("enforced", func(t *testing.T) {
		v := ts.open(t, "role=teacher")
		rec := ts.post(v, "/role", url.Values{"role": {"student"}})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, model.RoleTeacher, v.Resolver.Context().Role)
	})
}

func TestRoleGuard(t *testing.T) {
	ts := newTestServer(t, &fakeService{})
	student := ts.open(t, "role=student")
	teacher := ts.open(t, "role=teacher")

	assert.Equal(t, http.StatusForbidden, ts.post(student, "/dashboard/kb/open", nil).Code)
	assert.Equal(t, http.StatusForbidden, ts.post(teacher, "/chat/ask", url.Values{"question": {"hi"}}).Code)
}

func TestAskShowsQuestionThenAnswer(t *testing.T) {
	ts := newTestServer(t, &fakeService{})
	v := ts.open(t, "courseId=2&studentId=3")
	ts.get(v, "/")

	rec := ts.post(v, "/chat/ask", url.Values{"question": {"What is a goroutine?"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "What is a goroutine?")

	require.NoError(t, v.Chat.Wait(context.Background()))
	rec = ts.get(v, "/chat/messages")
	body := rec.Body.String()
	assert.Contains(t, body, "Answer to What is a goroutine?")
	assert.Contains(t, body, "week1.pdf")
	assert.NotContains(t, body, "every 1s", "polling stops once idle")
}

func TestQuizAnswerIsRecordedOnce(t *testing.T) {
	svc := &fakeService{quiz: model.QuizPayload{
		Question:      "2+2?",
		Options:       []string{"3", "4"},
		CorrectAnswer: "4",
		Explanation:   "Basic arithmetic.",
	}}
	ts := newTestServer(t, svc)
	v := ts.open(t, "courseId=2&studentId=3")
	ts.get(v, "/")

	ts.post(v, "/chat/quiz", nil)
	require.NoError(t, v.Chat.Wait(context.Background()))

	var quizID string
	for _, m := range v.Chat.Messages() {
		if m.Quiz != nil {
			quizID = m.ID
		}
	}
	require.NotEmpty(t, quizID)

	rec := ts.post(v, "/chat/quiz/"+quizID+"/answer", url.Values{"option": {"4"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Correct!")

	rec = ts.post(v, "/chat/quiz/"+quizID+"/answer", url.Values{"option": {"3"}})
	assert.Contains(t, rec.Body.String(), "Correct!")

	require.NoError(t, v.close(context.Background()))
	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Len(t, svc.submitted, 1)
	assert.Equal(t, model.QuizResult{CourseID: 2, StudentID: 3, Topic: "General Course Review", IsCorrect: true}, svc.submitted[0])

	assert.Equal(t, http.StatusNotFound, ts.post(v, "/chat/quiz/unknown/answer", url.Values{"option": {"4"}}).Code)
}

func TestDashboard(t *testing.T) {
	svc := &fakeService{analytics: model.CourseAnalytics{
		TotalStudents: 2,
		Students: []model.StudentAnalyticsRow{
			{ID: 7, Name: "Ada", LearningStyle: "Visual", AvgScore: 85},
			{ID: 8, Name: "Bob", LearningStyle: "General", AvgScore: 40},
		},
	}}
	ts := newTestServer(t, svc)
	v := ts.open(t, "courseId=9&role=teacher")

	rec := ts.get(v, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "On Track")
	assert.Contains(t, body, "At Risk")
	assert.NotContains(t, body, "Intro to Go", "no course selector when the host fixed the course")

	t.Run("pin", func(t *testing.T) {
		rec := ts.post(v, "/dashboard/students/7/plan", url.Values{"name": {"Ada"}})
		assert.Contains(t, rec.Body.String(), "Practice recursion")

		ts.post(v, "/dashboard/plan/pin", url.Values{"recommendation": {"Practice recursion"}})
		assert.Equal(t, []string{"Review loops", "Practice recursion"}, v.Path.Pinned())
	})

	t.Run("profile", func(t *testing.T) {
		rec := ts.post(v, "/dashboard/students/7/profile", url.Values{"name": {"Ada"}})
		assert.Contains(t, rec.Body.String(), `value="Visual"`)

		ts.post(v, "/dashboard/profile/save", url.Values{
			"learning_style": {"Kinesthetic"},
			"strengths":      {"Math,  Reading ,,"},
		})
		assert.Nil(t, v.Dash.Snapshot().Profile)
		assert.Equal(t, "Kinesthetic", v.Dash.Rows()[0].LearningStyle)
	})

	t.Run("clear needs confirmation", func(t *testing.T) {
		ts.post(v, "/dashboard/kb/open", nil)
		ts.post(v, "/dashboard/kb/clear", nil)
		svc.mu.Lock()
		assert.Zero(t, svc.cleared)
		svc.mu.Unlock()

		rec := ts.post(v, "/dashboard/kb/clear", url.Values{"confirmed": {"true"}})
		assert.Contains(t, rec.Body.String(), "No content has been ingested")
		svc.mu.Lock()
		assert.Equal(t, 1, svc.cleared)
		svc.mu.Unlock()
	})

	t.Run("ingest failure shows detail", func(t *testing.T) {
		svc.mu.Lock()
		svc.ingestErr = &gateway.RemoteError{Op: "ingest", Kind: gateway.KindService, Status: 500, Detail: "course not found"}
		svc.mu.Unlock()
		rec := ts.post(v, "/dashboard/ingest", nil)
		assert.Contains(t, rec.Body.String(), "course not found")
	})
}

func TestSweepDropsIdleViews(t *testing.T) {
	ts := newTestServer(t, &fakeService{})
	now := time.Now()
	ts.h.reg.now = func() time.Time { return now }

	old := ts.open(t, "")
	now = now.Add(10 * time.Minute)
	fresh := ts.open(t, "")

	assert.Equal(t, 1, ts.h.reg.Sweep(context.Background(), 5*time.Minute))
	_, ok := ts.h.reg.Get(old.ID)
	assert.False(t, ok)
	_, ok = ts.h.reg.Get(fresh.ID)
	assert.True(t, ok)
}

func TestCloseAllGivesUpOnHungAsk(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	ts := newTestServer(t, &fakeService{askGate: gate})
	v := ts.open(t, "courseId=2&studentId=3&role=student")
	ts.get(v, "")
	require.True(t, v.Chat.AskAsync(context.Background(), "Is anyone there?"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		ts.h.reg.closeAll(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("closeAll ignored its deadline")
	}
	assert.Equal(t, 0, ts.h.Registry().Len())
}
