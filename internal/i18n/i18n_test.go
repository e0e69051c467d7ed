package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "AI Tutor" {
		t.Errorf("T(AppTitle) = %q, want 'AI Tutor'", got)
	}

	got = T(ctx, "QuizGenerating")
	if got != "Generating a quick quiz for you..." {
		t.Errorf("T(QuizGenerating) = %q", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "AppTitle")
	if got != "ИИ-репетитор" {
		t.Errorf("T(AppTitle) = %q, want 'ИИ-репетитор'", got)
	}

	got = T(ctx, "StatusAtRisk")
	if got != "В зоне риска" {
		t.Errorf("T(StatusAtRisk) = %q, want 'В зоне риска'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "DocumentCount", 1)
	if got1 != "1 chunk indexed" {
		t.Errorf("Tp(DocumentCount, 1) = %q, want '1 chunk indexed'", got1)
	}

	got5 := Tp(ctx, "DocumentCount", 5)
	if got5 != "5 chunks indexed" {
		t.Errorf("Tp(DocumentCount, 5) = %q, want '5 chunks indexed'", got5)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "IngestDone", map[string]any{"CourseID": 7})
	want := "Successfully ingested content for Course 7. I am now ready to answer questions about it!"
	if got != want {
		t.Errorf("Td(IngestDone, CourseID=7) = %q, want %q", got, want)
	}

	got = Td(ctx, "PathOnTrack", map[string]any{
		"Message":         "Keep going.",
		"Recommendations": "- Try the advanced unit",
	})
	if !strings.HasPrefix(got, "### 🌟 Great Progress!\n\nKeep going.") {
		t.Errorf("Td(PathOnTrack) = %q", got)
	}
	if !strings.HasSuffix(got, "**Recommendations:**\n- Try the advanced unit") {
		t.Errorf("Td(PathOnTrack) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMiddlewarePrefersAcceptLanguage(t *testing.T) {
	initLang(t, "en")

	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "Send")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en;q=0.8")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Отправить" {
		t.Errorf("with ru Accept-Language got %q, want 'Отправить'", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Send" {
		t.Errorf("without Accept-Language got %q, want 'Send'", got)
	}
}
