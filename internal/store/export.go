package store

import (
	"fmt"
	"math"
	"time"

	"github.com/pavelanni/aitutor/internal/model"
)

// ExportCourse builds the progress export of every student in a course.
func (s *Store) ExportCourse(courseID int64) (*model.CourseExport, error) {
	course, err := s.GetCourse(courseID)
	if err != nil {
		return nil, fmt.Errorf("get course %d: %w", courseID, err)
	}
	members, err := s.ListStudents(courseID)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}

	out := &model.CourseExport{
		CourseID:   course.ID,
		CourseName: course.FullName,
		ExportedAt: time.Now().UTC(),
		Students:   []model.StudentExport{},
	}
	for _, m := range members {
		profile, err := s.GetProfile(m.ID)
		if err != nil {
			return nil, fmt.Errorf("get profile %d: %w", m.ID, err)
		}
		recs, err := s.QuizResults(courseID, m.ID)
		if err != nil {
			return nil, fmt.Errorf("get quizzes of %d: %w", m.ID, err)
		}
		pins, err := s.Pins(m.ID, courseID)
		if err != nil {
			return nil, fmt.Errorf("get pins of %d: %w", m.ID, err)
		}
		history, err := s.History(courseID, m.ID, 0)
		if err != nil {
			return nil, fmt.Errorf("get history of %d: %w", m.ID, err)
		}

		conv := make([]model.ConversationMsg, 0, len(history))
		for _, h := range history {
			conv = append(conv, model.ConversationMsg{
				Role:    string(h.Role),
				Content: h.Content,
				At:      h.CreatedAt,
			})
		}

		out.Students = append(out.Students, model.StudentExport{
			ID:            m.ID,
			Name:          m.Name,
			LearningStyle: profile.LearningStyle,
			Strengths:     profile.Strengths,
			Weaknesses:    profile.Weaknesses,
			Quizzes:       Scores(recs),
			AvgScore:      AverageScore(recs),
			Pinned:        pins,
			Conversation:  conv,
		})
	}
	return out, nil
}

// AverageScore is the mean quiz score rounded to one decimal, 0 when there
// are no quizzes.
func AverageScore(recs []QuizRecord) float64 {
	if len(recs) == 0 {
		return 0
	}
	var sum float64
	for _, r := range recs {
		sum += r.Score
	}
	return math.Round(sum/float64(len(recs))*10) / 10
}
