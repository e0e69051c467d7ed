package tutorsvc

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/aitutor/internal/store"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadCourseContent(t *testing.T) {
	root := t.TempDir()
	dir := CourseDir(root, 2)
	writeFile(t, filepath.Join(dir, "Introduction.html"), "<h1>Welcome</h1><p>Biology is the study of life &amp; living things.</p>")
	writeFile(t, filepath.Join(dir, "Week 1", "Cells.md"), "# Cells\n\nCells are the basic unit of life.")
	writeFile(t, filepath.Join(dir, "Week 1", "slides.pdf"), "%PDF")
	writeFile(t, filepath.Join(dir, ".git", "notes.txt"), "hidden")

	chunks, err := loadCourseContent(context.Background(), root, 2)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	bySource := map[string]store.Chunk{}
	for _, c := range chunks {
		bySource[c.Source] = c
	}
	intro := bySource["Introduction"]
	assert.Equal(t, "page", intro.Type)
	assert.Equal(t, "General", intro.Section)
	assert.Contains(t, intro.Content, "Biology is the study of life & living things.")
	assert.NotContains(t, intro.Content, "<p>")
	assert.True(t, strings.HasPrefix(intro.Content, "Course ID: 2\nSection: General\nModule: Introduction\n"))

	cells := bySource["Cells"]
	assert.Equal(t, "markdown", cells.Type)
	assert.Equal(t, "Week 1", cells.Section)
}

func TestLoadCourseContentMissingDir(t *testing.T) {
	chunks, err := loadCourseContent(context.Background(), t.TempDir(), 99)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitText(t *testing.T) {
	t.Run("short text is one chunk", func(t *testing.T) {
		assert.Equal(t, []string{"hello"}, splitText("hello", 10, 2))
	})

	t.Run("long text overlaps", func(t *testing.T) {
		words := make([]string, 300)
		for i := range words {
			words[i] = "word"
		}
		text := strings.Join(words, " ") // 1499 runes
		parts := splitText(text, chunkSize, chunkOverlap)
		require.Len(t, parts, 2)
		for _, p := range parts {
			assert.LessOrEqual(t, len([]rune(p)), chunkSize)
			assert.False(t, strings.HasPrefix(p, " "))
		}
		// Together the parts cover more than the text because of the overlap.
		assert.Greater(t, len(parts[0])+len(parts[1]), len(text))
	})

	t.Run("no break falls back to a hard cut", func(t *testing.T) {
		parts := splitText(strings.Repeat("x", 25), 10, 2)
		require.NotEmpty(t, parts)
		for _, p := range parts {
			assert.LessOrEqual(t, len(p), 10)
		}
		assert.Equal(t, strings.Repeat("x", 10), parts[0])
	})
}

func TestRetrieve(t *testing.T) {
	chunks := []store.Chunk{
		{ID: 1, Content: "Introduction to the course"},
		{ID: 2, Content: "Mitosis is how cells divide"},
		{ID: 3, Content: "Photosynthesis happens in chloroplasts of plant cells"},
	}

	got := retrieve(chunks, "How do cells divide during mitosis?", 2)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)

	// Nothing matches: ingestion order.
	got = retrieve(chunks, "zzz", 2)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)

	assert.Len(t, retrieve(chunks, "cells", 10), 3)
	assert.Nil(t, retrieve(nil, "cells", 3))
}
