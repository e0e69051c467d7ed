package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pavelanni/aitutor/internal/model"
)

const defaultLearningStyle = "General"

// GetProfile returns the profile of a student. Students without a stored
// profile get the defaults. ErrNotFound means the student is not on the
// roster.
func (s *Store) GetProfile(studentID int64) (model.StudentProfile, error) {
	m, err := s.GetMember(studentID)
	if err != nil {
		return model.StudentProfile{}, err
	}
	p := model.StudentProfile{
		ID:            m.ID,
		Name:          m.Name,
		Email:         m.Email,
		LearningStyle: defaultLearningStyle,
		Strengths:     []string{},
		Weaknesses:    []string{},
		Interests:     []string{},
	}
	var strengths, weaknesses, interests string
	err = s.db.QueryRow(
		`SELECT learning_style, strengths, weaknesses, interests FROM profiles WHERE student_id = ?`,
		studentID,
	).Scan(&p.LearningStyle, &strengths, &weaknesses, &interests)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return p, err
	}
	for _, f := range []struct {
		raw string
		dst *[]string
	}{{strengths, &p.Strengths}, {weaknesses, &p.Weaknesses}, {interests, &p.Interests}} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return p, fmt.Errorf("decode profile %d: %w", studentID, err)
		}
		if *f.dst == nil {
			*f.dst = []string{}
		}
	}
	return p, nil
}

// UpdateProfile applies a partial update: an empty learning style and nil
// lists leave the stored value alone. It returns the resulting profile.
func (s *Store) UpdateProfile(studentID int64, u model.ProfileUpdate) (model.StudentProfile, error) {
	p, err := s.GetProfile(studentID)
	if err != nil {
		return p, err
	}
	if u.LearningStyle != nil && *u.LearningStyle != "" {
		p.LearningStyle = *u.LearningStyle
	}
	if u.Strengths != nil {
		p.Strengths = u.Strengths
	}
	if u.Weaknesses != nil {
		p.Weaknesses = u.Weaknesses
	}
	if u.Interests != nil {
		p.Interests = u.Interests
	}
	strengths, _ := json.Marshal(p.Strengths)
	weaknesses, _ := json.Marshal(p.Weaknesses)
	interests, _ := json.Marshal(p.Interests)
	_, err = s.db.Exec(
		`INSERT INTO profiles (student_id, learning_style, strengths, weaknesses, interests) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(student_id) DO UPDATE SET
		   learning_style = excluded.learning_style,
		   strengths = excluded.strengths,
		   weaknesses = excluded.weaknesses,
		   interests = excluded.interests`,
		studentID, p.LearningStyle, string(strengths), string(weaknesses), string(interests),
	)
	if err != nil {
		return p, fmt.Errorf("save profile %d: %w", studentID, err)
	}
	return p, nil
}

// Pins returns the teacher-pinned recommendations of a student in a course.
func (s *Store) Pins(studentID, courseID int64) ([]string, error) {
	var raw string
	err := s.db.QueryRow(
		`SELECT pinned FROM pin_overrides WHERE student_id = ? AND course_id = ?`,
		studentID, courseID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	pins := []string{}
	if err := json.Unmarshal([]byte(raw), &pins); err != nil {
		return nil, fmt.Errorf("decode pins: %w", err)
	}
	if pins == nil {
		pins = []string{}
	}
	return pins, nil
}

// SetPins replaces the pinned recommendations of a student in a course.
func (s *Store) SetPins(studentID, courseID int64, pins []string) error {
	if pins == nil {
		pins = []string{}
	}
	raw, err := json.Marshal(pins)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO pin_overrides (student_id, course_id, pinned) VALUES (?, ?, ?)
		 ON CONFLICT(student_id, course_id) DO UPDATE SET pinned = excluded.pinned`,
		studentID, courseID, string(raw),
	)
	return err
}
