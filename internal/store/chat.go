package store

import (
	"slices"
	"time"

	"github.com/pavelanni/aitutor/internal/model"
)

// AppendMessage stores one chat turn and returns its id.
func (s *Store) AppendMessage(courseID, studentID int64, role model.Speaker, content string, at time.Time) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO messages (course_id, student_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		courseID, studentID, string(role), content, at.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// History returns the latest limit turns of a student's chat log in a
// course, oldest first. A limit of zero or less returns the whole log.
func (s *Store) History(courseID, studentID int64, limit int) ([]model.HistoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, role, content, created_at FROM messages
		 WHERE course_id = ? AND student_id = ? ORDER BY id DESC LIMIT ?`,
		courseID, studentID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []model.HistoryEntry{}
	for rows.Next() {
		var e model.HistoryEntry
		var role string
		if err := rows.Scan(&e.ID, &role, &e.Content, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Role = model.Speaker(role)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	return entries, nil
}
