package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/aitutor/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL)
	require.NoError(t, err)
	return c
}

func TestNewAppendsBasePath(t *testing.T) {
	c, err := New("http://tutor.local:8000/")
	require.NoError(t, err)
	assert.Equal(t, "http://tutor.local:8000/api/v1", c.BaseURL())

	c, err = New("https://tutor.local/custom/api")
	require.NoError(t, err)
	assert.Equal(t, "https://tutor.local/custom/api", c.BaseURL())

	_, err = New("")
	assert.Error(t, err)
	_, err = New("ftp://tutor.local")
	assert.Error(t, err)
}

func TestAsk(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/ai/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(2), body["course_id"])
		assert.Equal(t, float64(3), body["student_id"])
		assert.Equal(t, "What is photosynthesis?", body["question"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"answer": "Plants turn light into sugar.",
			"sources": []map[string]any{
				{"source": "biology.md", "type": "page", "course_id": 2},
			},
		})
	})

	ans, err := c.Ask(context.Background(), 2, 3, "What is photosynthesis?")
	require.NoError(t, err)
	assert.Equal(t, "Plants turn light into sugar.", ans.Answer)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "biology.md", ans.Sources[0].Source)
	require.NotNil(t, ans.Sources[0].CourseID)
	assert.Equal(t, int64(2), *ans.Sources[0].CourseID)
}

func TestServiceErrorCarriesDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"no content found for course 9"}`))
	})

	_, err := c.Ingest(context.Background(), 9)
	require.Error(t, err)

	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, KindService, re.Kind)
	assert.Equal(t, http.StatusInternalServerError, re.Status)
	assert.Equal(t, "no content found for course 9", re.Detail)
	assert.Equal(t, "ingest", re.Op)
	assert.True(t, IsService(err))
	assert.False(t, IsNetwork(err))
	assert.Equal(t, "no content found for course 9", DetailOf(err))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
}

func TestServiceErrorWithoutBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	err := c.ClearKnowledgeBase(context.Background(), 4)
	require.Error(t, err)
	assert.True(t, IsService(err))
	assert.Equal(t, http.StatusNotFound, StatusOf(err))
	assert.Contains(t, err.Error(), "404")
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url)
	require.NoError(t, err)

	_, err = c.ChatHistory(context.Background(), 1, 1)
	require.Error(t, err)
	assert.True(t, IsNetwork(err))
	assert.Zero(t, StatusOf(err))
}

func TestChatHistoryOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/ai/chat/history/2/3", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"id": 1, "role": "user", "content": "hi", "created_at": "2026-01-02T10:00:00Z"},
			{"id": 2, "role": "assistant", "content": "hello", "created_at": "2026-01-02T10:00:01Z"}
		]`))
	})

	hist, err := c.ChatHistory(context.Background(), 2, 3)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, model.SpeakerUser, hist[0].Role)
	assert.Equal(t, "hello", hist[1].Content)
}

func TestSetPinnedRecommendationsSendsFullSet(t *testing.T) {
	var got model.PinOverrides
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/dashboard/students/3/learning-path-overrides", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(got)
	})

	out, err := c.SetPinnedRecommendations(context.Background(), 3, 2, []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.CourseID)
	assert.Equal(t, []string{"A", "B"}, got.PinnedRecommendations)
	assert.Equal(t, []string{"A", "B"}, out.PinnedRecommendations)
}

func TestSetPinnedRecommendationsEmptyIsArray(t *testing.T) {
	var raw map[string]json.RawMessage
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"course_id":2,"pinned_recommendations":[]}`))
	})

	_, err := c.SetPinnedRecommendations(context.Background(), 3, 2, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw["pinned_recommendations"]))
}

func TestUpdateProfile(t *testing.T) {
	var raw map[string]json.RawMessage
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"id":3,"name":"Alice","learning_style":"Visual","strengths":["Math"],"weaknesses":[],"interests":["Art"]}`))
	})

	style := "Visual"
	p, err := c.UpdateProfile(context.Background(), 3, model.ProfileUpdate{
		LearningStyle: &style,
		Strengths:     []string{"Math"},
		Weaknesses:    []string{},
	})
	require.NoError(t, err)
	assert.Equal(t, "Visual", p.LearningStyle)
	assert.Equal(t, []string{"Art"}, p.Interests)

	assert.JSONEq(t, `"Visual"`, string(raw["learning_style"]))
	assert.JSONEq(t, `[]`, string(raw["weaknesses"]))
	assert.JSONEq(t, `null`, string(raw["interests"]))
}

func TestSubmitQuizResultAcceptsEmptyBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/ai/quiz/submit", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.SubmitQuizResult(context.Background(), model.QuizResult{CourseID: 2, StudentID: 3, Topic: "Cells", IsCorrect: true})
	assert.NoError(t, err)
}

func TestDecodeFailureIsServiceError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := c.Courses(context.Background())
	require.Error(t, err)
	assert.True(t, IsService(err))
}
