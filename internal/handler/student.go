package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/aitutor/internal/handler/views"
	"github.com/pavelanni/aitutor/internal/model"
)

func (h *Handler) chatData(v *View) views.ChatData {
	courseFromHost, studentFromHost := v.Resolver.HostSupplied()
	msgs := v.Chat.Messages()
	attempts := make(map[string]model.QuizAttempt)
	for _, m := range msgs {
		if m.Quiz == nil {
			continue
		}
		if a, ok := v.Board.Attempt(m.ID); ok {
			attempts[m.ID] = a
		}
	}
	return views.ChatData{
		Base:            h.viewBase(v),
		CSRF:            v.CSRF,
		Context:         v.Resolver.Context(),
		CourseFromHost:  courseFromHost,
		StudentFromHost: studentFromHost,
		Messages:        msgs,
		Attempts:        attempts,
		Busy:            v.Chat.Busy(),
	}
}

func (h *Handler) renderMessages(w http.ResponseWriter, r *http.Request, v *View) {
	render(w, r, views.Messages(h.chatData(v)))
}

// handleMessages is polled while an action is in flight.
func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	h.renderMessages(w, r, viewFromContext(r.Context()))
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	v := viewFromContext(r.Context())
	v.Chat.AskAsync(detached(r), r.FormValue("question"))
	h.renderMessages(w, r, v)
}

func (h *Handler) handleQuiz(w http.ResponseWriter, r *http.Request) {
	v := viewFromContext(r.Context())
	if id := v.Chat.GenerateQuizAsync(detached(r), r.FormValue("topic")); id != "" {
		slog.Debug("quiz requested", "view", v.ID, "op", id)
	}
	h.renderMessages(w, r, v)
}

func (h *Handler) handleLearningPath(w http.ResponseWriter, r *http.Request) {
	v := viewFromContext(r.Context())
	if id := v.Chat.RequestLearningPathAsync(detached(r)); id != "" {
		slog.Debug("learning path requested", "view", v.ID, "op", id)
	}
	h.renderMessages(w, r, v)
}

func (h *Handler) handleChatIngest(w http.ResponseWriter, r *http.Request) {
	v := viewFromContext(r.Context())
	v.Chat.IngestCourseAsync(detached(r))
	h.renderMessages(w, r, v)
}

func (h *Handler) handleQuizAnswer(w http.ResponseWriter, r *http.Request) {
	v := viewFromContext(r.Context())
	msgID := chi.URLParam(r, "msgID")

	var card *model.Message
	for _, m := range v.Chat.Messages() {
		if m.ID == msgID && m.Quiz != nil {
			card = &m
			break
		}
	}
	if card == nil {
		http.Error(w, "quiz not found", http.StatusNotFound)
		return
	}

	pair := v.Chat.Pair()
	if card.Context != nil {
		pair = *card.Context
	}
	option := r.FormValue("option")
	if _, first := v.Board.Select(msgID, *card.Quiz, pair, option); first {
		slog.Info("quiz answered", "view", v.ID, "course_id", pair.CourseID, "student_id", pair.StudentID, "topic", card.Quiz.Topic)
	}

	var attempt *model.QuizAttempt
	if a, ok := v.Board.Attempt(msgID); ok {
		attempt = &a
	}
	render(w, r, views.QuizCard(h.viewBase(v), msgID, *card.Quiz, attempt))
}

func parseFormID(r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.FormValue(key)), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) handleChatCourse(w http.ResponseWriter, r *http.Request) {
	v := viewFromContext(r.Context())
	id, ok := parseFormID(r, "courseId")
	if !ok {
		http.Error(w, "invalid course ID", http.StatusBadRequest)
		return
	}
	if v.Resolver.SelectCourse(id) {
		v.Chat.Load(r.Context(), v.Resolver.Context().Pair())
	}
	h.renderMessages(w, r, v)
}

func (h *Handler) handleChatStudent(w http.ResponseWriter, r *http.Request) {
	v := viewFromContext(r.Context())
	id, ok := parseFormID(r, "studentId")
	if !ok {
		http.Error(w, "invalid student ID", http.StatusBadRequest)
		return
	}
	if v.Resolver.SelectStudent(id) {
		v.Chat.Load(r.Context(), v.Resolver.Context().Pair())
	}
	h.renderMessages(w, r, v)
}
