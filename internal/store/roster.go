package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/aitutor/internal/model"
)

// Roster is the seed file describing courses and who is enrolled in them.
// It stands in for the host LMS directory.
type Roster struct {
	Courses []RosterCourse `yaml:"courses"`
}

type RosterCourse struct {
	ID        int64          `yaml:"id"`
	FullName  string         `yaml:"fullname"`
	ShortName string         `yaml:"shortname"`
	Members   []RosterMember `yaml:"members"`
}

type RosterMember struct {
	ID    int64  `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Role  string `yaml:"role"` // "student" (default) or "teacher"
}

// Member is an enrolled person as stored.
type Member struct {
	ID    int64
	Name  string
	Email *string
	Role  string
}

// ParseRoster decodes a roster file.
func ParseRoster(data []byte) (*Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	for _, c := range r.Courses {
		if c.ID <= 0 {
			return nil, fmt.Errorf("parse roster: course %q has no id", c.FullName)
		}
		for _, m := range c.Members {
			if m.ID <= 0 {
				return nil, fmt.Errorf("parse roster: member %q of course %d has no id", m.Name, c.ID)
			}
		}
	}
	return &r, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ImportRoster upserts the roster in data, read from path. An import whose
// content hash matches the previous import of the same path is skipped. It
// reports whether anything was written.
func (s *Store) ImportRoster(path string, data []byte) (bool, error) {
	hash := sha256sum(data)
	stored, err := s.GetImportedFileHash(path)
	if err != nil {
		return false, fmt.Errorf("check import status for %s: %w", path, err)
	}
	if stored == hash {
		slog.Info("roster unchanged, skipping", "path", path)
		return false, nil
	}

	r, err := ParseRoster(data)
	if err != nil {
		return false, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	for _, c := range r.Courses {
		if _, err := tx.Exec(
			`INSERT INTO courses (id, fullname, shortname) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET fullname = excluded.fullname, shortname = excluded.shortname`,
			c.ID, c.FullName, c.ShortName,
		); err != nil {
			return false, fmt.Errorf("upsert course %d: %w", c.ID, err)
		}
		for _, m := range c.Members {
			var email any
			if m.Email != "" {
				email = m.Email
			}
			if _, err := tx.Exec(
				`INSERT INTO students (id, name, email) VALUES (?, ?, ?)
				 ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email`,
				m.ID, m.Name, email,
			); err != nil {
				return false, fmt.Errorf("upsert member %d: %w", m.ID, err)
			}
			role := m.Role
			if role == "" {
				role = string(model.RoleStudent)
			}
			if _, err := tx.Exec(
				`INSERT INTO enrollments (course_id, student_id, role) VALUES (?, ?, ?)
				 ON CONFLICT(course_id, student_id) DO UPDATE SET role = excluded.role`,
				c.ID, m.ID, role,
			); err != nil {
				return false, fmt.Errorf("enroll %d in %d: %w", m.ID, c.ID, err)
			}
		}
	}
	if _, err := tx.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		importKey(path), hash,
	); err != nil {
		return false, fmt.Errorf("record import for %s: %w", path, err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	slog.Info("imported roster", "path", path, "courses", len(r.Courses))
	return true, nil
}

// ListCourses returns all courses ordered by id.
func (s *Store) ListCourses() ([]model.Course, error) {
	rows, err := s.db.Query(`SELECT id, fullname, shortname FROM courses ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	courses := []model.Course{}
	for rows.Next() {
		var c model.Course
		if err := rows.Scan(&c.ID, &c.FullName, &c.ShortName); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// GetCourse returns a course by id, or ErrNotFound.
func (s *Store) GetCourse(id int64) (model.Course, error) {
	var c model.Course
	err := s.db.QueryRow(`SELECT id, fullname, shortname FROM courses WHERE id = ?`, id).
		Scan(&c.ID, &c.FullName, &c.ShortName)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

// ListStudents returns the members of a course enrolled as students, ordered
// by id. Teachers are left out.
func (s *Store) ListStudents(courseID int64) ([]Member, error) {
	rows, err := s.db.Query(
		`SELECT s.id, s.name, s.email, e.role FROM enrollments e
		 JOIN students s ON s.id = e.student_id
		 WHERE e.course_id = ? AND e.role = ?
		 ORDER BY s.id`, courseID, string(model.RoleStudent),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []Member
	for rows.Next() {
		var m Member
		var email sql.NullString
		if err := rows.Scan(&m.ID, &m.Name, &email, &m.Role); err != nil {
			return nil, err
		}
		if email.Valid {
			m.Email = &email.String
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetMember returns a person by id, or ErrNotFound.
func (s *Store) GetMember(id int64) (Member, error) {
	var m Member
	var email sql.NullString
	err := s.db.QueryRow(`SELECT id, name, email FROM students WHERE id = ?`, id).Scan(&m.ID, &m.Name, &email)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	if email.Valid {
		m.Email = &email.String
	}
	return m, err
}
