package model

import "time"

// Role is the audience a view is rendered for.
type Role string

const (
	// RoleStudent is the student-facing chat view.
	RoleStudent Role = "student"
	// RoleTeacher is the teacher-facing dashboard view.
	RoleTeacher Role = "teacher"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

// SessionContext is the embedding context of one view. It is built once from
// the host-supplied query parameters and never re-read from the URL.
type SessionContext struct {
	CourseID     int64 `json:"course_id"`
	StudentID    int64 `json:"student_id"`
	RoleEnforced bool  `json:"role_enforced"`
	Role         Role  `json:"role"`
}

// Pair returns the course/student pair of the context.
func (c SessionContext) Pair() Pair {
	return Pair{CourseID: c.CourseID, StudentID: c.StudentID}
}

// Pair identifies a chat log: one student in one course.
type Pair struct {
	CourseID  int64 `json:"course_id"`
	StudentID int64 `json:"student_id"`
}

// Speaker is a chat message author.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Source is a citation attached to an assistant answer.
type Source struct {
	Source   string `json:"source"`
	Type     string `json:"type"`
	CourseID *int64 `json:"course_id,omitempty"`
}

// QuizPayload is a single multiple-choice question produced by the service.
// Topic is not part of the wire response; the chat attaches the topic it
// asked for so the result can be reported against it.
type QuizPayload struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
	Topic         string   `json:"topic,omitempty"`
}

// HasOption reports whether opt is one of the payload's options.
func (q QuizPayload) HasOption(opt string) bool {
	for _, o := range q.Options {
		if o == opt {
			return true
		}
	}
	return false
}

// QuizAttempt is the local outcome of answering a quiz card.
type QuizAttempt struct {
	Selected  string `json:"selected"`
	IsCorrect bool   `json:"is_correct"`
}

// Message is one entry in the chat log.
type Message struct {
	ID      string       `json:"id"`
	Role    Speaker      `json:"role"`
	Content string       `json:"content"`
	Sources []Source     `json:"sources,omitempty"`
	Quiz    *QuizPayload `json:"quiz,omitempty"`
	Context *Pair        `json:"context,omitempty"`
}

// HistoryEntry is a persisted chat turn as returned by the history endpoint.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	Role      Speaker   `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Answer is the service reply to a chat question.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// PathStatus classifies a learning path.
type PathStatus string

const (
	PathStart        PathStatus = "start"
	PathOnTrack      PathStatus = "on_track"
	PathNeedsSupport PathStatus = "needs_support"
)

// Severity of a weak topic.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// QuizScore is one graded quiz.
type QuizScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// WeaknessDetail explains why a topic was flagged.
type WeaknessDetail struct {
	Topic        string      `json:"topic"`
	AverageScore float64     `json:"average_score"`
	Severity     Severity    `json:"severity"`
	Quizzes      []QuizScore `json:"quizzes"`
}

// LearningPath is a student's recommendation state for one course.
type LearningPath struct {
	Status                PathStatus       `json:"status"`
	Message               string           `json:"message,omitempty"`
	Weaknesses            []string         `json:"weaknesses,omitempty"`
	WeaknessDetails       []WeaknessDetail `json:"weakness_details,omitempty"`
	StudyPlan             string           `json:"study_plan,omitempty"`
	Recommendations       []string         `json:"recommendations,omitempty"`
	PinnedRecommendations []string         `json:"pinned_recommendations,omitempty"`
}

// PinOverrides is the teacher-owned pin set for one student in one course.
type PinOverrides struct {
	CourseID              int64    `json:"course_id"`
	PinnedRecommendations []string `json:"pinned_recommendations"`
}

// QuizResult reports the outcome of one answered quiz card.
type QuizResult struct {
	CourseID  int64  `json:"course_id" validate:"required,gt=0"`
	StudentID int64  `json:"student_id" validate:"required,gt=0"`
	Topic     string `json:"topic" validate:"required"`
	IsCorrect bool   `json:"is_correct"`
}

// StudentAnalyticsRow is one student line of the course dashboard.
type StudentAnalyticsRow struct {
	ID            int64              `json:"id"`
	Name          string             `json:"name"`
	LearningStyle string             `json:"learning_style"`
	AvgScore      float64            `json:"avg_score"`
	QuizScores    map[string]float64 `json:"quiz_scores,omitempty"`
	Strengths     []string           `json:"strengths,omitempty"`
	Weaknesses    []string           `json:"weaknesses,omitempty"`
}

// CourseAnalytics is the dashboard payload for one course.
type CourseAnalytics struct {
	CourseID       int64                 `json:"course_id"`
	TotalStudents  int                   `json:"total_students"`
	ActiveStudents int                   `json:"active_students"`
	AverageScore   float64               `json:"average_score"`
	Students       []StudentAnalyticsRow `json:"students"`
}

// StudentProfile holds the personalization attributes of a student.
type StudentProfile struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	Email         *string  `json:"email,omitempty"`
	LearningStyle string   `json:"learning_style"`
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	Interests     []string `json:"interests"`
}

// ProfileUpdate is a partial profile write. Nil fields travel as null and are
// left untouched; an empty non-nil list clears the field.
type ProfileUpdate struct {
	LearningStyle *string  `json:"learning_style,omitempty"`
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	Interests     []string `json:"interests"`
}

// KnowledgeSource is one ingested document.
type KnowledgeSource struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	ChunkCount int    `json:"chunks"`
}

// KnowledgeBaseSnapshot summarizes the ingested content of a course.
type KnowledgeBaseSnapshot struct {
	CourseID      int64             `json:"course_id"`
	DocumentCount int               `json:"document_count"`
	Sources       []KnowledgeSource `json:"sources"`
}

// EmptyKnowledgeBase returns the snapshot of a course with nothing ingested.
func EmptyKnowledgeBase(courseID int64) KnowledgeBaseSnapshot {
	return KnowledgeBaseSnapshot{CourseID: courseID, Sources: []KnowledgeSource{}}
}

// IngestResult is the outcome of ingesting a course.
type IngestResult struct {
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	ChunksCount int    `json:"chunks_count"`
}

// Course is a course known to the host LMS.
type Course struct {
	ID        int64  `json:"id"`
	FullName  string `json:"fullname"`
	ShortName string `json:"shortname"`
}

// ServeConfig holds runtime parameters of the embedded UI server.
type ServeConfig struct {
	BasePath         string        // URL prefix for sub-path deployments
	DefaultCourseID  int64         // used when the host omits courseId
	DefaultStudentID int64         // used when the host omits studentId
	ViewIdleTTL      time.Duration // views unused for longer are dropped
}
