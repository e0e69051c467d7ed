// Package tutorsvc is the companion tutoring service: a JSON API that answers
// course questions, generates quizzes and study plans, and keeps the student
// progress the dashboard reports on.
package tutorsvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/pavelanni/aitutor/internal/llm/prompts"
	"github.com/pavelanni/aitutor/internal/model"
	"github.com/pavelanni/aitutor/internal/store"
)

const (
	weakThreshold   = 75.0
	severeThreshold = 50.0
)

// Generator produces the model-written parts of the service's responses.
type Generator interface {
	Answer(ctx context.Context, data prompts.AnswerData) (string, error)
	Quiz(ctx context.Context, data prompts.QuizData) (*model.QuizPayload, error)
	StudyPlan(ctx context.Context, data prompts.StudyPlanData) (string, error)
}

// Config holds the runtime parameters of the service.
type Config struct {
	ContentDir   string // course content lives in ContentDir/<course id>
	TopK         int    // chunks retrieved per question
	HistoryLimit int    // chat turns returned by the history endpoint
}

// Service implements the tutoring operations on top of the store.
type Service struct {
	store *store.Store
	gen   Generator
	cfg   Config
	now   func() time.Time

	ingestMu sync.Mutex
}

// New creates a service. Zero TopK and HistoryLimit get defaults.
func New(st *store.Store, gen Generator, cfg Config) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	return &Service{store: st, gen: gen, cfg: cfg, now: time.Now}
}

// Ingest rebuilds the knowledge base of a course from its content directory.
// Existing chunks are dropped first, even when no content is found.
func (s *Service) Ingest(ctx context.Context, courseID int64) (model.IngestResult, error) {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	chunks, err := loadCourseContent(ctx, s.cfg.ContentDir, courseID)
	if err != nil {
		return model.IngestResult{}, fmt.Errorf("load content of course %d: %w", courseID, err)
	}
	if err := s.store.ReplaceChunks(courseID, chunks); err != nil {
		return model.IngestResult{}, fmt.Errorf("store chunks: %w", err)
	}
	if len(chunks) == 0 {
		slog.Warn("no content to ingest", "course_id", courseID, "dir", CourseDir(s.cfg.ContentDir, courseID))
		return model.IngestResult{Status: "warning", Message: "No content found"}, nil
	}
	slog.Info("ingested course", "course_id", courseID, "chunks", len(chunks))
	return model.IngestResult{Status: "success", ChunksCount: len(chunks)}, nil
}

func (s *Service) KnowledgeBase(courseID int64) (model.KnowledgeBaseSnapshot, error) {
	return s.store.KnowledgeBase(courseID)
}

func (s *Service) ClearKnowledgeBase(courseID int64) error {
	n, err := s.store.ClearChunks(courseID)
	if err != nil {
		return err
	}
	slog.Info("cleared knowledge base", "course_id", courseID, "chunks", n)
	return nil
}

func (s *Service) History(courseID, studentID int64) ([]model.HistoryEntry, error) {
	return s.store.History(courseID, studentID, s.cfg.HistoryLimit)
}

// profileOrDefault returns the stored profile, or the defaults for students
// missing from the roster.
func (s *Service) profileOrDefault(studentID int64) (model.StudentProfile, error) {
	p, err := s.store.GetProfile(studentID)
	if errors.Is(err, store.ErrNotFound) {
		return model.StudentProfile{ID: studentID, Name: "Student", LearningStyle: "General"}, nil
	}
	return p, err
}

// Ask answers a question with the best matching course material and the
// student's profile and progress. Both turns are added to the chat history.
func (s *Service) Ask(ctx context.Context, courseID, studentID int64, question string) (model.Answer, error) {
	profile, err := s.profileOrDefault(studentID)
	if err != nil {
		return model.Answer{}, fmt.Errorf("get profile: %w", err)
	}
	recs, err := s.store.QuizResults(courseID, studentID)
	if err != nil {
		return model.Answer{}, fmt.Errorf("get progress: %w", err)
	}
	chunks, err := s.store.Chunks(courseID)
	if err != nil {
		return model.Answer{}, fmt.Errorf("get chunks: %w", err)
	}
	hits := retrieve(chunks, question, s.cfg.TopK)

	answer, err := s.gen.Answer(ctx, prompts.AnswerData{
		Question:      question,
		Material:      contents(hits),
		StudentName:   profile.Name,
		LearningStyle: profile.LearningStyle,
		Strengths:     profile.Strengths,
		Weaknesses:    profile.Weaknesses,
		QuizScores:    store.Scores(recs),
	})
	if err != nil {
		return model.Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	now := s.now()
	if _, err := s.store.AppendMessage(courseID, studentID, model.SpeakerUser, question, now); err != nil {
		slog.Error("failed to save question", "course_id", courseID, "student_id", studentID, "error", err)
	}
	if _, err := s.store.AppendMessage(courseID, studentID, model.SpeakerAssistant, answer, now); err != nil {
		slog.Error("failed to save answer", "course_id", courseID, "student_id", studentID, "error", err)
	}

	return model.Answer{Answer: answer, Sources: sourcesOf(courseID, hits)}, nil
}

func sourcesOf(courseID int64, chunks []store.Chunk) []model.Source {
	sources := []model.Source{}
	seen := map[string]bool{}
	for _, c := range chunks {
		name := c.Section + " - " + c.Source
		if seen[name] {
			continue
		}
		seen[name] = true
		id := courseID
		sources = append(sources, model.Source{Source: name, Type: c.Type, CourseID: &id})
	}
	return sources
}

// Quiz generates one multiple-choice question on topic from the course
// material.
func (s *Service) Quiz(ctx context.Context, courseID int64, topic string) (*model.QuizPayload, error) {
	chunks, err := s.store.Chunks(courseID)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	q, err := s.gen.Quiz(ctx, prompts.QuizData{
		Topic:    topic,
		Material: contents(retrieve(chunks, topic, s.cfg.TopK)),
	})
	if err != nil {
		return nil, fmt.Errorf("generate quiz: %w", err)
	}
	return q, nil
}

// SubmitQuiz records an answered quiz as a 100 or 0 score.
func (s *Service) SubmitQuiz(res model.QuizResult) error {
	now := s.now()
	score := 0.0
	if res.IsCorrect {
		score = 100
	}
	rec := store.QuizRecord{
		Topic:   res.Topic,
		Name:    fmt.Sprintf("Quiz: %s (%d)", res.Topic, now.Unix()),
		Score:   score,
		TakenAt: now,
	}
	if err := s.store.RecordQuizResult(res.CourseID, res.StudentID, rec); err != nil {
		return fmt.Errorf("record quiz result: %w", err)
	}
	return nil
}

// weakTopics groups quiz results by topic, in order of first attempt, and
// returns the topics whose average is below the weak threshold.
func weakTopics(recs []store.QuizRecord) []model.WeaknessDetail {
	var order []string
	byTopic := map[string][]store.QuizRecord{}
	for _, r := range recs {
		if _, ok := byTopic[r.Topic]; !ok {
			order = append(order, r.Topic)
		}
		byTopic[r.Topic] = append(byTopic[r.Topic], r)
	}
	var details []model.WeaknessDetail
	for _, topic := range order {
		group := byTopic[topic]
		avg := store.AverageScore(group)
		if avg >= weakThreshold {
			continue
		}
		sev := model.SeverityMedium
		if avg < severeThreshold {
			sev = model.SeverityHigh
		}
		details = append(details, model.WeaknessDetail{
			Topic:        topic,
			AverageScore: avg,
			Severity:     sev,
			Quizzes:      store.Scores(group),
		})
	}
	return details
}

// LearningPath derives the recommendation state of a student from quiz
// results and attaches the teacher's pins.
func (s *Service) LearningPath(ctx context.Context, courseID, studentID int64) (model.LearningPath, error) {
	recs, err := s.store.QuizResults(courseID, studentID)
	if err != nil {
		return model.LearningPath{}, fmt.Errorf("get progress: %w", err)
	}
	pins, err := s.store.Pins(studentID, courseID)
	if err != nil {
		return model.LearningPath{}, fmt.Errorf("get pins: %w", err)
	}

	if len(recs) == 0 {
		return model.LearningPath{
			Status:                model.PathStart,
			Message:               "Welcome! Start by exploring the Course Introduction.",
			Recommendations:       []string{"Review Course Introduction"},
			PinnedRecommendations: pins,
		}, nil
	}
	details := weakTopics(recs)
	if len(details) == 0 {
		return model.LearningPath{
			Status:                model.PathOnTrack,
			Message:               "Excellent work! You are performing well in all assessed topics.",
			Recommendations:       []string{"Continue to the next module."},
			PinnedRecommendations: pins,
		}, nil
	}

	weak := make([]string, len(details))
	var recsOut []string
	for i, d := range details {
		weak[i] = d.Topic
		recsOut = append(recsOut, "Review the course material on "+d.Topic, "Take another quiz on "+d.Topic)
	}
	plan, err := s.studyPlan(ctx, courseID, weak)
	if err != nil {
		return model.LearningPath{}, err
	}
	return model.LearningPath{
		Status:                model.PathNeedsSupport,
		Weaknesses:            weak,
		WeaknessDetails:       details,
		StudyPlan:             plan,
		Recommendations:       recsOut,
		PinnedRecommendations: pins,
	}, nil
}

func (s *Service) studyPlan(ctx context.Context, courseID int64, weak []string) (string, error) {
	if len(weak) == 0 {
		return "Great job! You seem to be doing well in all topics. Keep reviewing the latest materials.", nil
	}
	chunks, err := s.store.Chunks(courseID)
	if err != nil {
		return "", fmt.Errorf("get chunks: %w", err)
	}
	var material []string
	seen := map[int64]bool{}
	for _, topic := range weak {
		for _, c := range retrieve(chunks, topic, 2) {
			if !seen[c.ID] {
				seen[c.ID] = true
				material = append(material, c.Content)
			}
		}
	}
	plan, err := s.gen.StudyPlan(ctx, prompts.StudyPlanData{Weaknesses: weak, Material: material})
	if err != nil {
		return "", fmt.Errorf("generate study plan: %w", err)
	}
	return plan, nil
}

func (s *Service) Pins(studentID, courseID int64) (model.PinOverrides, error) {
	pins, err := s.store.Pins(studentID, courseID)
	if err != nil {
		return model.PinOverrides{}, err
	}
	return model.PinOverrides{CourseID: courseID, PinnedRecommendations: pins}, nil
}

// SetPins replaces the pin set of a student in a course.
func (s *Service) SetPins(studentID int64, in model.PinOverrides) (model.PinOverrides, error) {
	if err := s.store.SetPins(studentID, in.CourseID, in.PinnedRecommendations); err != nil {
		return model.PinOverrides{}, fmt.Errorf("save pins: %w", err)
	}
	return s.Pins(studentID, in.CourseID)
}

// Analytics aggregates the quiz results of the students of a course. The
// class average covers students with a non-zero average; when there are none
// every student counts as active.
func (s *Service) Analytics(courseID int64) (model.CourseAnalytics, error) {
	members, err := s.store.ListStudents(courseID)
	if err != nil {
		return model.CourseAnalytics{}, fmt.Errorf("list students: %w", err)
	}
	out := model.CourseAnalytics{
		CourseID:      courseID,
		TotalStudents: len(members),
		Students:      []model.StudentAnalyticsRow{},
	}
	var sum float64
	for _, m := range members {
		profile, err := s.store.GetProfile(m.ID)
		if err != nil {
			return out, fmt.Errorf("get profile %d: %w", m.ID, err)
		}
		recs, err := s.store.QuizResults(courseID, m.ID)
		if err != nil {
			return out, fmt.Errorf("get progress %d: %w", m.ID, err)
		}
		scores := map[string]float64{}
		var raw float64
		for _, r := range recs {
			scores[r.Name] = r.Score
			raw += r.Score
		}
		if len(recs) > 0 {
			raw /= float64(len(recs))
		}
		if raw > 0 {
			out.ActiveStudents++
			sum += raw
		}
		out.Students = append(out.Students, model.StudentAnalyticsRow{
			ID:            m.ID,
			Name:          m.Name,
			LearningStyle: profile.LearningStyle,
			AvgScore:      round1(raw),
			QuizScores:    scores,
			Strengths:     profile.Strengths,
			Weaknesses:    profile.Weaknesses,
		})
	}
	if out.ActiveStudents > 0 {
		out.AverageScore = round1(sum / float64(out.ActiveStudents))
	} else {
		out.ActiveStudents = out.TotalStudents
	}
	return out, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func (s *Service) Profile(studentID int64) (model.StudentProfile, error) {
	return s.store.GetProfile(studentID)
}

func (s *Service) UpdateProfile(studentID int64, u model.ProfileUpdate) (model.StudentProfile, error) {
	return s.store.UpdateProfile(studentID, u)
}

func (s *Service) Courses() ([]model.Course, error) {
	return s.store.ListCourses()
}
