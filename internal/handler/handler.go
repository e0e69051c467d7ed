// Package handler serves the embedded UI: every iframe load resolves its
// embedding context into a view, and the student and teacher screens of that
// view are rendered and updated through htmx fragments.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/aitutor/internal/chat"
	"github.com/pavelanni/aitutor/internal/dashboard"
	"github.com/pavelanni/aitutor/internal/embedctx"
	"github.com/pavelanni/aitutor/internal/handler/views"
	"github.com/pavelanni/aitutor/internal/i18n"
	"github.com/pavelanni/aitutor/internal/model"
	"github.com/pavelanni/aitutor/internal/pathpanel"
	"github.com/pavelanni/aitutor/internal/quiz"
)

// Service is everything the views need from the remote tutoring service.
// *gateway.Client satisfies it.
type Service interface {
	chat.Service
	quiz.Submitter
	pathpanel.Service
	dashboard.Service
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	reg      *Registry
	config   model.ServeConfig
	defaults embedctx.Defaults
}

// New creates a new Handler.
func New(svc Service, cfg model.ServeConfig) *Handler {
	return &Handler{
		reg:    NewRegistry(svc),
		config: cfg,
		defaults: embedctx.Defaults{
			CourseID:  cfg.DefaultCourseID,
			StudentID: cfg.DefaultStudentID,
		},
	}
}

// Registry returns the view registry, for the idle sweeper.
func (h *Handler) Registry() *Registry {
	return h.reg
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Route("/v/{view}", func(r chi.Router) {
		r.Use(h.loadView)
		r.Use(csrfMiddleware)
		r.Get("/", h.handleViewPage)
		r.Post("/context", h.handleBindContext)
		r.Post("/role", h.handleSwitchRole)

		r.Route("/chat", func(r chi.Router) {
			r.Use(requireRole(model.RoleStudent))
			r.Get("/messages", h.handleMessages)
			r.Post("/ask", h.handleAsk)
			r.Post("/quiz", h.handleQuiz)
			r.Post("/quiz/{msgID}/answer", h.handleQuizAnswer)
			r.Post("/path", h.handleLearningPath)
			r.Post("/ingest", h.handleChatIngest)
			r.Post("/course", h.handleChatCourse)
			r.Post("/student", h.handleChatStudent)
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Use(requireRole(model.RoleTeacher))
			r.Post("/course", h.handleDashCourse)
			r.Post("/refresh", h.handleDashRefresh)
			r.Post("/students/{studentID}/plan", h.handleOpenPlan)
			r.Post("/plan/pin", h.handlePin)
			r.Post("/plan/pin-draft", h.handlePinDraft)
			r.Post("/plan/close", h.handleClosePlan)
			r.Post("/students/{studentID}/profile", h.handleEditProfile)
			r.Post("/profile/save", h.handleSaveProfile)
			r.Post("/profile/cancel", h.handleCancelProfile)
			r.Post("/kb/open", h.handleOpenKB)
			r.Post("/kb/clear", h.handleClearKB)
			r.Post("/kb/close", h.handleCloseKB)
			r.Post("/ingest", h.handleDashIngest)
		})
	})
}

// path prefixes p with the configured base path.
func (h *Handler) path(p string) string {
	return strings.TrimRight(h.config.BasePath, "/") + p
}

func (h *Handler) viewBase(v *View) string {
	return h.path("/v/" + v.ID)
}

// detached returns a context for view operations that must outlive the
// request that started them. Request-scoped values such as the localizer
// are kept.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func render(w http.ResponseWriter, r *http.Request, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	res := embedctx.NewResolver(embedctx.FromQuery(r.URL.Query()), h.defaults)
	v, err := h.reg.Create(res)
	if err != nil {
		slog.Error("failed to create view", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.viewBase(v), http.StatusSeeOther)
}

func (h *Handler) handleViewPage(w http.ResponseWriter, r *http.Request) {
	v := viewFromContext(r.Context())
	c := v.Resolver.Context()

	if c.Role == model.RoleTeacher {
		var alert *views.Alert
		if v.claimDashLoad() || v.Dash.CourseID() != c.CourseID {
			if err := v.Dash.Load(r.Context(), c.CourseID); err != nil {
				slog.Error("failed to load analytics", "course_id", c.CourseID, "error", err)
				alert = &views.Alert{Error: true, Text: i18n.T(r.Context(), "DashboardLoadFailed")}
			}
		}
		d := h.dashboardData(v, alert)
		d.Courses = h.courses(r, v)
		render(w, r, views.DashboardPage(d))
		return
	}

	if v.claimChatLoad() || v.Chat.Pair() != c.Pair() {
		v.Chat.Load(r.Context(), c.Pair())
	}
	d := h.chatData(v)
	d.Courses = h.courses(r, v)
	render(w, r, views.ChatPage(d))
}

// handleBindContext applies ids the host sends after the first render.
func (h *Handler) handleBindContext(w http.ResponseWriter, r *http.Request) {
	v := viewFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	if !v.Resolver.BindLate(embedctx.FromQuery(r.Form)) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	c := v.Resolver.Context()
	slog.Info("context bound late", "view", v.ID, "course_id", c.CourseID, "student_id", c.StudentID)
	w.Header().Set("HX-Refresh", "true")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSwitchRole(w http.ResponseWriter, r *http.Request) {
	v := viewFromContext(r.Context())
	role := model.Role(r.FormValue("role"))
	if err := v.Resolver.SwitchRole(role); err != nil {
		if errors.Is(err, embedctx.ErrRoleEnforced) {
			http.Error(w, "role is fixed by the host", http.StatusForbidden)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	target := h.viewBase(v)
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// courses lists the course selector options when the host did not fix the
// course. A failure only hides the list.
func (h *Handler) courses(r *http.Request, v *View) []model.Course {
	if course, _ := v.Resolver.HostSupplied(); course {
		return nil
	}
	courses, err := v.Dash.Courses(r.Context())
	if err != nil {
		slog.Warn("failed to list courses", "error", err)
		return nil
	}
	return courses
}
