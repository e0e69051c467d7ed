// Package store is the SQLite persistence of the companion tutoring service:
// the course roster, chat history, quiz results, student profiles, teacher
// pin overrides and the ingested knowledge base.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS courses (
		id INTEGER PRIMARY KEY,
		fullname TEXT NOT NULL,
		shortname TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS students (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT
	);

	CREATE TABLE IF NOT EXISTS enrollments (
		course_id INTEGER NOT NULL,
		student_id INTEGER NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		PRIMARY KEY (course_id, student_id),
		FOREIGN KEY (course_id) REFERENCES courses(id),
		FOREIGN KEY (student_id) REFERENCES students(id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL,
		student_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(course_id, student_id, id);

	CREATE TABLE IF NOT EXISTS quiz_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL,
		student_id INTEGER NOT NULL,
		topic TEXT NOT NULL,
		name TEXT NOT NULL,
		score REAL NOT NULL,
		taken_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS profiles (
		student_id INTEGER PRIMARY KEY,
		learning_style TEXT NOT NULL DEFAULT 'General',
		strengths TEXT NOT NULL DEFAULT '[]',
		weaknesses TEXT NOT NULL DEFAULT '[]',
		interests TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS pin_overrides (
		student_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		pinned TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (student_id, course_id)
	);

	CREATE TABLE IF NOT EXISTS kb_chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL,
		source TEXT NOT NULL,
		type TEXT NOT NULL,
		section TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_kb_chunks_course ON kb_chunks(course_id);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}
