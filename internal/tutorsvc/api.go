package tutorsvc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/aitutor/internal/model"
	"github.com/pavelanni/aitutor/internal/store"
)

// APIPrefix is the versioned root of every route.
const APIPrefix = "/api/v1"

type courseRequest struct {
	CourseID int64 `json:"course_id" validate:"required,gt=0"`
}

type askRequest struct {
	CourseID  int64  `json:"course_id" validate:"required,gt=0"`
	StudentID int64  `json:"student_id"`
	Question  string `json:"question" validate:"required"`
}

type quizRequest struct {
	CourseID int64  `json:"course_id" validate:"required,gt=0"`
	Topic    string `json:"topic" validate:"required"`
}

type pathRequest struct {
	CourseID  int64 `json:"course_id" validate:"required,gt=0"`
	StudentID int64 `json:"student_id" validate:"required,gt=0"`
}

type pinRequest struct {
	CourseID              int64    `json:"course_id" validate:"required,gt=0"`
	PinnedRecommendations []string `json:"pinned_recommendations"`
}

// API serves the service over HTTP.
type API struct {
	svc      *Service
	validate *validator.Validate
}

func NewAPI(svc *Service) *API {
	return &API{svc: svc, validate: validator.New()}
}

// Routes returns the API router, with every route under APIPrefix.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route(APIPrefix, func(r chi.Router) {
		r.Get("/courses", a.handleCourses)

		r.Route("/ai", func(r chi.Router) {
			r.Post("/ingest", a.handleIngest)
			r.Get("/knowledge-base/{courseID}", a.handleKnowledgeBase)
			r.Delete("/knowledge-base/{courseID}", a.handleClearKnowledgeBase)
			r.Get("/chat/history/{courseID}/{studentID}", a.handleHistory)
			r.Post("/chat", a.handleAsk)
			r.Post("/quiz", a.handleQuiz)
			r.Post("/quiz/submit", a.handleQuizSubmit)
			r.Post("/learning-path", a.handleLearningPath)
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/analytics/{courseID}", a.handleAnalytics)
			r.Get("/students/{studentID}/profile", a.handleProfile)
			r.Put("/students/{studentID}/profile", a.handleUpdateProfile)
			r.Get("/students/{studentID}/learning-path-overrides", a.handleGetPins)
			r.Post("/students/{studentID}/learning-path-overrides", a.handleSetPins)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeError maps a service error to a status and a detail body.
func writeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, op+": not found")
		return
	}
	slog.Error("request failed", "op", op, "error", err)
	writeDetail(w, http.StatusInternalServerError, err.Error())
}

// decode reads a JSON body into v and validates it. On failure it writes the
// error response and returns false.
func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if err := a.validate.Struct(v); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := make([]string, 0, len(ve))
			for _, fe := range ve {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			writeDetail(w, http.StatusUnprocessableEntity, "invalid fields: "+strings.Join(fields, ", "))
			return false
		}
		writeDetail(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeDetail(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func (a *API) handleCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := a.svc.Courses()
	if err != nil {
		writeError(w, "courses", err)
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

func (a *API) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req courseRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.svc.Ingest(r.Context(), req.CourseID)
	if err != nil {
		writeError(w, "ingest", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	courseID, ok := idParam(w, r, "courseID")
	if !ok {
		return
	}
	kb, err := a.svc.KnowledgeBase(courseID)
	if err != nil {
		writeError(w, "knowledge base", err)
		return
	}
	writeJSON(w, http.StatusOK, kb)
}

func (a *API) handleClearKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	courseID, ok := idParam(w, r, "courseID")
	if !ok {
		return
	}
	if err := a.svc.ClearKnowledgeBase(courseID); err != nil {
		writeError(w, "clear knowledge base", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	courseID, ok := idParam(w, r, "courseID")
	if !ok {
		return
	}
	studentID, ok := idParam(w, r, "studentID")
	if !ok {
		return
	}
	history, err := a.svc.History(courseID, studentID)
	if err != nil {
		writeError(w, "chat history", err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (a *API) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.StudentID <= 0 {
		req.StudentID = 1
	}
	answer, err := a.svc.Ask(r.Context(), req.CourseID, req.StudentID, req.Question)
	if err != nil {
		writeError(w, "chat", err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (a *API) handleQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if !a.decode(w, r, &req) {
		return
	}
	q, err := a.svc.Quiz(r.Context(), req.CourseID, req.Topic)
	if err != nil {
		writeError(w, "quiz", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (a *API) handleQuizSubmit(w http.ResponseWriter, r *http.Request) {
	var req model.QuizResult
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.svc.SubmitQuiz(req); err != nil {
		writeError(w, "quiz submit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Progress updated"})
}

func (a *API) handleLearningPath(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !a.decode(w, r, &req) {
		return
	}
	path, err := a.svc.LearningPath(r.Context(), req.CourseID, req.StudentID)
	if err != nil {
		writeError(w, "learning path", err)
		return
	}
	writeJSON(w, http.StatusOK, path)
}

func (a *API) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	courseID, ok := idParam(w, r, "courseID")
	if !ok {
		return
	}
	analytics, err := a.svc.Analytics(courseID)
	if err != nil {
		writeError(w, "analytics", err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	studentID, ok := idParam(w, r, "studentID")
	if !ok {
		return
	}
	p, err := a.svc.Profile(studentID)
	if err != nil {
		writeError(w, "profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	studentID, ok := idParam(w, r, "studentID")
	if !ok {
		return
	}
	var req model.ProfileUpdate
	if !a.decode(w, r, &req) {
		return
	}
	p, err := a.svc.UpdateProfile(studentID, req)
	if err != nil {
		writeError(w, "update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleGetPins(w http.ResponseWriter, r *http.Request) {
	studentID, ok := idParam(w, r, "studentID")
	if !ok {
		return
	}
	courseID, err := strconv.ParseInt(r.URL.Query().Get("course_id"), 10, 64)
	if err != nil || courseID <= 0 {
		writeDetail(w, http.StatusBadRequest, "invalid course_id")
		return
	}
	pins, err := a.svc.Pins(studentID, courseID)
	if err != nil {
		writeError(w, "learning path overrides", err)
		return
	}
	writeJSON(w, http.StatusOK, pins)
}

func (a *API) handleSetPins(w http.ResponseWriter, r *http.Request) {
	studentID, ok := idParam(w, r, "studentID")
	if !ok {
		return
	}
	var req pinRequest
	if !a.decode(w, r, &req) {
		return
	}
	pins, err := a.svc.SetPins(studentID, model.PinOverrides{
		CourseID:              req.CourseID,
		PinnedRecommendations: req.PinnedRecommendations,
	})
	if err != nil {
		writeError(w, "set learning path overrides", err)
		return
	}
	writeJSON(w, http.StatusOK, pins)
}
