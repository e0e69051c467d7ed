package model

import "time"

// CourseExport is the top-level JSON structure for course progress export.
type CourseExport struct {
	CourseID   int64           `json:"course_id"`
	CourseName string          `json:"course_name"`
	ExportedAt time.Time       `json:"exported_at"`
	Students   []StudentExport `json:"students"`
}

// StudentExport holds one student's progress for export.
type StudentExport struct {
	ID            int64             `json:"id"`
	Name          string            `json:"name"`
	LearningStyle string            `json:"learning_style"`
	Strengths     []string          `json:"strengths"`
	Weaknesses    []string          `json:"weaknesses"`
	Quizzes       []QuizScore       `json:"quizzes"`
	AvgScore      float64           `json:"avg_score"`
	Pinned        []string          `json:"pinned_recommendations"`
	Conversation  []ConversationMsg `json:"conversation"`
}

// ConversationMsg is a single message in an exported conversation.
type ConversationMsg struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}
