package store

import (
	"fmt"

	"github.com/pavelanni/aitutor/internal/model"
)

// Chunk is one retrievable piece of course content.
type Chunk struct {
	ID      int64
	Source  string
	Type    string
	Section string
	Content string
}

// ReplaceChunks drops the knowledge base of a course and stores chunks in
// its place.
func (s *Store) ReplaceChunks(courseID int64, chunks []Chunk) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM kb_chunks WHERE course_id = ?`, courseID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO kb_chunks (course_id, source, type, section, content) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range chunks {
		if _, err := stmt.Exec(courseID, c.Source, c.Type, c.Section, c.Content); err != nil {
			return fmt.Errorf("insert chunk from %s: %w", c.Source, err)
		}
	}
	return tx.Commit()
}

// Chunks returns all chunks of a course in insertion order.
func (s *Store) Chunks(courseID int64) ([]Chunk, error) {
	rows, err := s.db.Query(
		`SELECT id, source, type, section, content FROM kb_chunks WHERE course_id = ? ORDER BY id`,
		courseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.Source, &c.Type, &c.Section, &c.Content); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ClearChunks deletes the knowledge base of a course and returns how many
// chunks were removed.
func (s *Store) ClearChunks(courseID int64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM kb_chunks WHERE course_id = ?`, courseID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// KnowledgeBase summarizes the chunks of a course per source document.
// DocumentCount is the total number of chunks.
func (s *Store) KnowledgeBase(courseID int64) (model.KnowledgeBaseSnapshot, error) {
	kb := model.EmptyKnowledgeBase(courseID)
	rows, err := s.db.Query(
		`SELECT source, type, COUNT(*) FROM kb_chunks WHERE course_id = ?
		 GROUP BY source, type ORDER BY MIN(id)`,
		courseID,
	)
	if err != nil {
		return kb, err
	}
	defer rows.Close()
	for rows.Next() {
		var src model.KnowledgeSource
		if err := rows.Scan(&src.Name, &src.Type, &src.ChunkCount); err != nil {
			return kb, err
		}
		kb.Sources = append(kb.Sources, src)
		kb.DocumentCount += src.ChunkCount
	}
	return kb, rows.Err()
}
