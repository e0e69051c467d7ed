package handler

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/aitutor/internal/handler/views"
	"github.com/pavelanni/aitutor/internal/i18n"
	"github.com/pavelanni/aitutor/internal/model"
)

const csrfHeader = "X-CSRF-Token"

type viewCtxKey struct{}

func viewFromContext(ctx context.Context) *View {
	v, _ := ctx.Value(viewCtxKey{}).(*View)
	return v
}

// loadView looks up the view named in the URL. Expired views get an error
// page telling the user to reload the host page, which creates a new view.
func (h *Handler) loadView(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, ok := h.reg.Get(chi.URLParam(r, "view"))
		if !ok {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusNotFound)
			if err := views.ErrorPage(i18n.T(r.Context(), "ViewExpired")).Render(r.Context(), w); err != nil {
				slog.Error("render error", "error", err)
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), viewCtxKey{}, v)))
	})
}

// csrfMiddleware checks the per-view token on state-changing requests. htmx
// sends it as a header; plain form posts may carry it as csrf_token. No
// cookies are involved so the check works inside third-party iframes.
func csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		v := viewFromContext(r.Context())
		token := r.Header.Get(csrfHeader)
		if token == "" {
			token = r.FormValue("csrf_token")
		}
		if token == "" {
			slog.Warn("CSRF token missing", "view", v.ID)
			http.Error(w, "csrf token missing", http.StatusForbidden)
			return
		}
		if len(token) != len(v.CSRF) || subtle.ConstantTimeCompare([]byte(token), []byte(v.CSRF)) != 1 {
			slog.Warn("CSRF token mismatch", "view", v.ID)
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireRole returns middleware that only lets requests through while the
// view is rendered for role.
func requireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := viewFromContext(r.Context())
			if v == nil {
				http.Error(w, "unknown view", http.StatusNotFound)
				return
			}
			if v.Resolver.Context().Role != role {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
