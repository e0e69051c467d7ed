package store

import (
	"time"

	"github.com/pavelanni/aitutor/internal/model"
)

// QuizRecord is one graded quiz of a student.
type QuizRecord struct {
	Topic   string
	Name    string
	Score   float64
	TakenAt time.Time
}

// RecordQuizResult stores a graded quiz.
func (s *Store) RecordQuizResult(courseID, studentID int64, rec QuizRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO quiz_results (course_id, student_id, topic, name, score, taken_at) VALUES (?, ?, ?, ?, ?, ?)`,
		courseID, studentID, rec.Topic, rec.Name, rec.Score, rec.TakenAt.UTC(),
	)
	return err
}

// QuizResults returns the graded quizzes of a student in a course in the
// order they were taken.
func (s *Store) QuizResults(courseID, studentID int64) ([]QuizRecord, error) {
	rows, err := s.db.Query(
		`SELECT topic, name, score, taken_at FROM quiz_results
		 WHERE course_id = ? AND student_id = ? ORDER BY id`,
		courseID, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []QuizRecord
	for rows.Next() {
		var r QuizRecord
		if err := rows.Scan(&r.Topic, &r.Name, &r.Score, &r.TakenAt); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Scores converts records to their wire form.
func Scores(recs []QuizRecord) []model.QuizScore {
	out := make([]model.QuizScore, 0, len(recs))
	for _, r := range recs {
		out = append(out, model.QuizScore{Name: r.Name, Score: r.Score})
	}
	return out
}
