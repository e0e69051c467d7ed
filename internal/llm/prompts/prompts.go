// Package prompts renders the generation prompts of the tutoring service
// from embedded templates.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/aitutor/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

const maxQuestionRunes = 4000

var (
	studentQuestionRegex    = regexp.MustCompile(`(?i)</?\s*student-question\b[^>]*>`)
	courseMaterialRegex     = regexp.MustCompile(`(?i)</?\s*course-material\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[string]*template.Template
)

var funcs = template.FuncMap{
	"join": func(items []string) string {
		if len(items) == 0 {
			return "None"
		}
		return strings.Join(items, ", ")
	},
}

// AnswerData holds template data for the chat answer prompt.
type AnswerData struct {
	Question      string
	Material      []string
	StudentName   string
	LearningStyle string
	Strengths     []string
	Weaknesses    []string
	QuizScores    []model.QuizScore
}

// QuizData holds template data for the quiz prompt.
type QuizData struct {
	Topic    string
	Material []string
}

// StudyPlanData holds template data for the study plan prompt.
type StudyPlanData struct {
	Weaknesses []string
	Material   []string
}

// Load parses the embedded templates. It is safe to call more than once.
func Load() error {
	loadOnce.Do(func() {
		templates = make(map[string]*template.Template)
		for _, name := range []string{"answer", "quiz", "study_plan"} {
			file := "templates/" + name + ".txt"
			content, err := templateFS.ReadFile(file)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
				return
			}
			tmpl, err := template.New(name).Funcs(funcs).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
				return
			}
			templates[name] = tmpl
		}
	})
	return loadErr
}

func execute(name string, data any) (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := templates[name].Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return buf.String(), nil
}

// BuildAnswerPrompt renders the prompt for answering a student question.
func BuildAnswerPrompt(d AnswerData) (string, error) {
	d.Question = sanitize(d.Question)
	d.Material = sanitizeAll(d.Material)
	return execute("answer", d)
}

// BuildQuizPrompt renders the prompt for a one-question quiz on a topic.
func BuildQuizPrompt(d QuizData) (string, error) {
	d.Topic = strings.ReplaceAll(sanitize(d.Topic), `"`, "'")
	d.Material = sanitizeAll(d.Material)
	return execute("quiz", d)
}

// BuildStudyPlanPrompt renders the prompt for a study plan covering the
// given weak topics.
func BuildStudyPlanPrompt(d StudyPlanData) (string, error) {
	d.Material = sanitizeAll(d.Material)
	return execute("study_plan", d)
}

func sanitizeAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		out = append(out, stripTags(s))
	}
	return out
}

func stripTags(s string) string {
	s = studentQuestionRegex.ReplaceAllString(s, "")
	s = courseMaterialRegex.ReplaceAllString(s, "")
	s = systemInstructionsRegex.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// sanitize removes prompt delimiters from untrusted text and caps its length.
func sanitize(s string) string {
	s = stripTags(s)
	if utf8.RuneCountInString(s) > maxQuestionRunes {
		runes := []rune(s)
		s = string(runes[:maxQuestionRunes]) + "\n\n[Truncated]"
	}
	return s
}
