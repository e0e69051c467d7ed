package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pavelanni/aitutor/internal/model"
)

type courseRequest struct {
	CourseID int64 `json:"course_id"`
}

type askRequest struct {
	CourseID  int64  `json:"course_id"`
	Question  string `json:"question"`
	StudentID int64  `json:"student_id"`
}

type quizRequest struct {
	CourseID int64  `json:"course_id"`
	Topic    string `json:"topic"`
}

type pathRequest struct {
	CourseID  int64 `json:"course_id"`
	StudentID int64 `json:"student_id"`
}

// Ingest asks the service to (re)ingest the content of a course.
func (c *Client) Ingest(ctx context.Context, courseID int64) (*model.IngestResult, error) {
	var out model.IngestResult
	if err := c.do(ctx, "ingest", http.MethodPost, "/ai/ingest", courseRequest{CourseID: courseID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// KnowledgeBase returns the ingested-content summary of a course.
func (c *Client) KnowledgeBase(ctx context.Context, courseID int64) (*model.KnowledgeBaseSnapshot, error) {
	var out model.KnowledgeBaseSnapshot
	if err := c.do(ctx, "knowledge base", http.MethodGet, fmt.Sprintf("/ai/knowledge-base/%d", courseID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearKnowledgeBase deletes all ingested content of a course.
func (c *Client) ClearKnowledgeBase(ctx context.Context, courseID int64) error {
	return c.do(ctx, "clear knowledge base", http.MethodDelete, fmt.Sprintf("/ai/knowledge-base/%d", courseID), nil, nil)
}

// ChatHistory returns the persisted conversation of a student in a course,
// oldest first.
func (c *Client) ChatHistory(ctx context.Context, courseID, studentID int64) ([]model.HistoryEntry, error) {
	var out []model.HistoryEntry
	if err := c.do(ctx, "chat history", http.MethodGet, fmt.Sprintf("/ai/chat/history/%d/%d", courseID, studentID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ask sends a question and returns the answer with its citations.
func (c *Client) Ask(ctx context.Context, courseID, studentID int64, question string) (*model.Answer, error) {
	var out model.Answer
	req := askRequest{CourseID: courseID, Question: question, StudentID: studentID}
	if err := c.do(ctx, "ask", http.MethodPost, "/ai/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateQuiz requests one multiple-choice question on topic.
func (c *Client) GenerateQuiz(ctx context.Context, courseID int64, topic string) (*model.QuizPayload, error) {
	var out model.QuizPayload
	if err := c.do(ctx, "generate quiz", http.MethodPost, "/ai/quiz", quizRequest{CourseID: courseID, Topic: topic}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitQuizResult records the outcome of an answered quiz card.
func (c *Client) SubmitQuizResult(ctx context.Context, res model.QuizResult) error {
	return c.do(ctx, "submit quiz result", http.MethodPost, "/ai/quiz/submit", res, nil)
}

// LearningPath requests the learning path of a student in a course.
func (c *Client) LearningPath(ctx context.Context, courseID, studentID int64) (*model.LearningPath, error) {
	var out model.LearningPath
	if err := c.do(ctx, "learning path", http.MethodPost, "/ai/learning-path", pathRequest{CourseID: courseID, StudentID: studentID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetPinnedRecommendations replaces the complete pin set of a student in a
// course.
func (c *Client) SetPinnedRecommendations(ctx context.Context, studentID, courseID int64, pinned []string) (*model.PinOverrides, error) {
	if pinned == nil {
		pinned = []string{}
	}
	in := model.PinOverrides{CourseID: courseID, PinnedRecommendations: pinned}
	var out model.PinOverrides
	path := fmt.Sprintf("/dashboard/students/%d/learning-path-overrides", studentID)
	if err := c.do(ctx, "set pinned recommendations", http.MethodPost, path, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Analytics returns the per-student dashboard of a course.
func (c *Client) Analytics(ctx context.Context, courseID int64) (*model.CourseAnalytics, error) {
	var out model.CourseAnalytics
	if err := c.do(ctx, "analytics", http.MethodGet, fmt.Sprintf("/dashboard/analytics/%d", courseID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile returns a student's profile.
func (c *Client) Profile(ctx context.Context, studentID int64) (*model.StudentProfile, error) {
	var out model.StudentProfile
	if err := c.do(ctx, "profile", http.MethodGet, fmt.Sprintf("/dashboard/students/%d/profile", studentID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile writes the non-nil fields of upd and returns the full
// profile as stored.
func (c *Client) UpdateProfile(ctx context.Context, studentID int64, upd model.ProfileUpdate) (*model.StudentProfile, error) {
	var out model.StudentProfile
	if err := c.do(ctx, "update profile", http.MethodPut, fmt.Sprintf("/dashboard/students/%d/profile", studentID), upd, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Courses lists the courses available in the host LMS.
func (c *Client) Courses(ctx context.Context) ([]model.Course, error) {
	var out []model.Course
	if err := c.do(ctx, "courses", http.MethodGet, "/courses", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
