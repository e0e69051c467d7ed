// Package views renders the embedded UI as templ components.
package views

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/a-h/templ"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/pavelanni/aitutor/internal/dashboard"
	"github.com/pavelanni/aitutor/internal/i18n"
	"github.com/pavelanni/aitutor/internal/model"
)

var (
	markdown = goldmark.New(
		goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
	sanitizer = bluemonday.UGCPolicy()
)

// Markdown renders assistant text. Service output is untrusted, so the HTML
// is sanitized after conversion.
func Markdown(src string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		slog.Warn("markdown render failed", "error", err)
		return "<p>" + templ.EscapeString(src) + "</p>"
	}
	return sanitizer.Sanitize(buf.String())
}

func formatScore(v float64) string {
	s := fmt.Sprintf("%.1f", v)
	return strings.TrimSuffix(s, ".0")
}

func idString(id int64) string {
	return fmt.Sprintf("%d", id)
}

// jsonString quotes s for use inside an hx-vals object.
func jsonString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func csrfHeader(token string) string {
	return `{"X-CSRF-Token": ` + jsonString(token) + `}`
}

// hostBadge names the ids the host fixed. The separator appears only when
// both are shown.
func hostBadge(ctx context.Context, d ChatData) string {
	var parts []string
	if d.CourseFromHost {
		parts = append(parts, i18n.Td(ctx, "CourseLabel", map[string]any{"ID": d.Context.CourseID}))
	}
	if d.StudentFromHost {
		parts = append(parts, i18n.Td(ctx, "StudentLabel", map[string]any{"ID": d.Context.StudentID}))
	}
	return strings.Join(parts, " • ")
}

func hasCourse(courses []model.Course, id int64) bool {
	for _, c := range courses {
		if c.ID == id {
			return true
		}
	}
	return false
}

func attemptFor(attempts map[string]model.QuizAttempt, msgID string) *model.QuizAttempt {
	a, ok := attempts[msgID]
	if !ok {
		return nil
	}
	return &a
}

func feedbackLabel(correct bool) string {
	if correct {
		return "Correct"
	}
	return "Incorrect"
}

var studentColumns = []string{"ColStudent", "ColLearningStyle", "ColAvgScore", "ColQuizScores", "ColStatus", "ColActions"}

func statusClass(s dashboard.Status) string {
	return strings.ReplaceAll(strings.ToLower(string(s)), " ", "-")
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func ingestLabel(ctx context.Context, running bool) string {
	if running {
		return i18n.T(ctx, "Ingesting")
	}
	return i18n.T(ctx, "IngestCourse")
}

func severityLabel(s model.Severity) string {
	if s == model.SeverityHigh {
		return "SeverityHigh"
	}
	return "SeverityMedium"
}

func nameVals(name string) templ.Attributes {
	return templ.Attributes{"hx-vals": `{"name": ` + jsonString(name) + `}`}
}

func recommendationVals(rec string) templ.Attributes {
	return templ.Attributes{"hx-vals": `{"recommendation": ` + jsonString(rec) + `}`}
}

func clearVals(ctx context.Context) templ.Attributes {
	return templ.Attributes{
		"hx-confirm": i18n.T(ctx, "ClearConfirm"),
		"hx-vals":    `{"confirmed": "true"}`,
	}
}
