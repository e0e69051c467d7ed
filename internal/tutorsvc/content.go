package tutorsvc

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/aitutor/internal/store"
)

const (
	chunkSize    = 1000
	chunkOverlap = 200
	maxReaders   = 8
)

var (
	contentTypes = map[string]string{
		".html": "page",
		".htm":  "page",
		".md":   "markdown",
		".txt":  "text",
	}
	blankLines = regexp.MustCompile(`\n{3,}`)
	stripHTML  = bluemonday.StrictPolicy()
)

// CourseDir returns the content directory of a course under root.
func CourseDir(root string, courseID int64) string {
	return filepath.Join(root, strconv.FormatInt(courseID, 10))
}

type document struct {
	section string
	name    string
	kind    string
	text    string
}

// loadCourseContent reads every supported file under the course directory
// and splits it into chunks. Files directly in the course directory belong to
// the "General" section; files in a subdirectory use its name as section. A
// missing directory yields no chunks.
func loadCourseContent(ctx context.Context, root string, courseID int64) ([]store.Chunk, error) {
	dir := CourseDir(root, courseID)
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
			paths = append(paths, path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	docs := make([]document, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxReaders)
	for i, path := range paths {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			doc, err := readDocument(dir, path)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var chunks []store.Chunk
	for _, doc := range docs {
		if doc.text == "" {
			continue
		}
		header := fmt.Sprintf("Course ID: %d\nSection: %s\nModule: %s\nType: %s\n", courseID, doc.section, doc.name, doc.kind)
		for _, part := range splitText(doc.text, chunkSize, chunkOverlap) {
			chunks = append(chunks, store.Chunk{
				Source:  doc.name,
				Type:    doc.kind,
				Section: doc.section,
				Content: header + part,
			})
		}
	}
	return chunks, nil
}

func readDocument(dir, path string) (document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return document{}, fmt.Errorf("read %s: %w", path, err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	doc := document{
		section: "General",
		name:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		kind:    contentTypes[ext],
	}
	if rel, err := filepath.Rel(dir, filepath.Dir(path)); err == nil && rel != "." {
		doc.section = filepath.ToSlash(rel)
	}
	text := string(data)
	if doc.kind == "page" {
		text = cleanHTML(text)
	}
	doc.text = strings.TrimSpace(text)
	return doc, nil
}

func cleanHTML(raw string) string {
	text := html.UnescapeString(stripHTML.Sanitize(raw))
	return blankLines.ReplaceAllString(text, "\n\n")
}

// splitText cuts text into pieces of at most size runes that overlap by
// overlap runes, preferring to cut at a paragraph or line break, then at a
// space.
func splitText(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}
	var parts []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			parts = append(parts, strings.TrimSpace(string(runes[start:])))
			break
		}
		cut := lastBreak(runes[start:end])
		if cut <= overlap {
			cut = end - start
		}
		parts = append(parts, strings.TrimSpace(string(runes[start:start+cut])))
		start += cut - overlap
	}
	return parts
}

func lastBreak(window []rune) int {
	s := string(window)
	for _, sep := range []string{"\n\n", "\n", " "} {
		if i := strings.LastIndex(s, sep); i > 0 {
			return len([]rune(s[:i])) + len([]rune(sep))
		}
	}
	return 0
}
