package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/aitutor/internal/dashboard"
	"github.com/pavelanni/aitutor/internal/gateway"
	"github.com/pavelanni/aitutor/internal/handler/views"
	"github.com/pavelanni/aitutor/internal/i18n"
)

func (h *Handler) dashboardData(v *View, alert *views.Alert) views.DashboardData {
	course, _ := v.Resolver.HostSupplied()
	return views.DashboardData{
		Base:           h.viewBase(v),
		CSRF:           v.CSRF,
		Context:        v.Resolver.Context(),
		CourseFromHost: course,
		State:          v.Dash.Snapshot(),
		Plan:           v.Path.Snapshot(),
		Alert:          alert,
	}
}

// renderDashboard swaps the dashboard body, with alert shown above it.
func (h *Handler) renderDashboard(w http.ResponseWriter, r *http.Request, alert *views.Alert) {
	v := viewFromContext(r.Context())
	render(w, r, views.DashboardBody(h.dashboardData(v, alert)))
}

func errorAlert(r *http.Request, msgID string) *views.Alert {
	return &views.Alert{Error: true, Text: i18n.T(r.Context(), msgID)}
}

func studentIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "studentID"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) handleDashCourse(w http.ResponseWriter, r *http.Request) {
	v := viewFromContext(r.Context())
	id, ok := parseFormID(r, "courseId")
	if !ok {
		http.Error(w, "invalid course ID", http.StatusBadRequest)
		return
	}
	var alert *views.Alert
	if v.Resolver.SelectCourse(id) {
		v.Path.Close()
		if err := v.Dash.Load(r.Context(), id); err != nil {
			slog.Error("failed to load analytics", "course_id", id, "error", err)
			alert = errorAlert(r, "DashboardLoadFailed")
		}
	}
	h.renderDashboard(w, r, alert)
}

func (h *Handler) handleDashRefresh(w http.ResponseWriter, r *http.Request) {
	v := viewFromContext(r.Context())
	var alert *views.Alert
	if err := v.Dash.Load(r.Context(), v.Resolver.Context().CourseID); err != nil {
		slog.Error("failed to load analytics", "error", err)
		alert = errorAlert(r, "DashboardLoadFailed")
	}
	h.renderDashboard(w, r, alert)
}

func (h *Handler) handleOpenPlan(w http.ResponseWriter, r *http.Request) {
	v := viewFromContext(r.Context())
	studentID, ok := studentIDParam(r)
	if !ok {
		http.Error(w, "invalid student ID", http.StatusBadRequest)
		return
	}
	courseID := v.Resolver.Context().CourseID
	if err := v.Path.Open(r.Context(), courseID, studentID, r.FormValue("name")); err != nil {
		// The modal shows its own failure state.
		slog.Error("failed to load learning path", "course_id", courseID, "student_id", studentID, "error", err)
	}
	h.renderDashboard(w, r, nil)
}

func (h *Handler) handlePin(w http.ResponseWriter, r *http.Request) {
	v := viewFromContext(r.Context())
	v.Path.Pin(r.FormValue("recommendation"))
	h.renderDashboard(w, r, nil)
}

func (h *Handler) handlePinDraft(w http.ResponseWriter, r *http.Request) {
	v := viewFromContext(r.Context())
	v.Path.SetDraft(r.FormValue("draft"))
	v.Path.PinDraft()
	h.renderDashboard(w, r, nil)
}

func (h *Handler) handleClosePlan(w http.ResponseWriter, r *http.Request) {
	viewFromContext(r.Context()).Path.Close()
	h.renderDashboard(w, r, nil)
}

func (h *Handler) handleEditProfile(w http.ResponseWriter, r *http.Request) {
	v := viewFromContext(r.Context())
	studentID, ok := studentIDParam(r)
	if !ok {
		http.Error(w, "invalid student ID", http.StatusBadRequest)
		return
	}
	var alert *views.Alert
	if err := v.Dash.EditProfile(r.Context(), studentID, r.FormValue("name")); err != nil {
		slog.Error("failed to load profile", "student_id", studentID, "error", err)
		alert = errorAlert(r, "ProfileLoadFailed")
	}
	h.renderDashboard(w, r, alert)
}

func (h *Handler) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	v := viewFromContext(r.Context())
	err := v.Dash.SetProfileForm(r.FormValue("learning_style"), r.FormValue("strengths"), r.FormValue("weaknesses"))
	if err == nil {
		err = v.Dash.SaveProfile(r.Context())
	}
	var alert *views.Alert
	switch {
	case err == nil:
	case errors.Is(err, dashboard.ErrNoProfile):
		http.Error(w, "no profile is being edited", http.StatusConflict)
		return
	case errors.Is(err, dashboard.ErrBusy):
	default:
		slog.Error("failed to save profile", "error", err)
		alert = errorAlert(r, "ProfileSaveFailed")
	}
	h.renderDashboard(w, r, alert)
}

func (h *Handler) handleCancelProfile(w http.ResponseWriter, r *http.Request) {
	viewFromContext(r.Context()).Dash.CancelProfile()
	h.renderDashboard(w, r, nil)
}

func (h *Handler) handleOpenKB(w http.ResponseWriter, r *http.Request) {
	v := viewFromContext(r.Context())
	var alert *views.Alert
	if err := v.Dash.OpenKnowledgeBase(r.Context()); err != nil {
		slog.Error("failed to load knowledge base", "error", err)
		alert = errorAlert(r, "KnowledgeBaseLoadFailed")
	}
	h.renderDashboard(w, r, alert)
}

func (h *Handler) handleClearKB(w http.ResponseWriter, r *http.Request) {
	v := viewFromContext(r.Context())
	var alert *views.Alert
	err := v.Dash.ClearKnowledgeBase(r.Context(), r.FormValue("confirmed") == "true")
	switch {
	case err == nil:
		slog.Info("knowledge base cleared", "course_id", v.Dash.CourseID())
	case errors.Is(err, dashboard.ErrNotConfirmed), errors.Is(err, dashboard.ErrBusy):
	default:
		slog.Error("failed to clear knowledge base", "error", err)
		alert = errorAlert(r, "KnowledgeBaseClearFailed")
	}
	h.renderDashboard(w, r, alert)
}

func (h *Handler) handleCloseKB(w http.ResponseWriter, r *http.Request) {
	viewFromContext(r.Context()).Dash.CloseKnowledgeBase()
	h.renderDashboard(w, r, nil)
}

func (h *Handler) handleDashIngest(w http.ResponseWriter, r *http.Request) {
	v := viewFromContext(r.Context())
	res, err := v.Dash.Ingest(r.Context())
	var alert *views.Alert
	switch {
	case err == nil:
		slog.Info("course ingested", "course_id", v.Dash.CourseID(), "chunks", res.ChunksCount)
		alert = &views.Alert{Text: i18n.T(r.Context(), "IngestSucceeded")}
	case errors.Is(err, dashboard.ErrBusy):
	default:
		slog.Error("failed to ingest course", "error", err)
		alert = &views.Alert{Error: true, Text: i18n.Td(r.Context(), "IngestFailedDetail", map[string]any{"Detail": gateway.DetailOf(err)})}
	}
	h.renderDashboard(w, r, alert)
}
