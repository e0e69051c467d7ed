package handler

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/aitutor/internal/chat"
	"github.com/pavelanni/aitutor/internal/dashboard"
	"github.com/pavelanni/aitutor/internal/embedctx"
	"github.com/pavelanni/aitutor/internal/pathpanel"
	"github.com/pavelanni/aitutor/internal/persist"
	"github.com/pavelanni/aitutor/internal/quiz"
)

// View is one embedded page load: the resolved context plus the state
// machines of both the student and the teacher screens.
type View struct {
	ID       string
	CSRF     string
	Resolver *embedctx.Resolver

	Chat  *chat.Session
	Board *quiz.Board
	Path  *pathpanel.Panel
	Dash  *dashboard.Dashboard
	queue *persist.Queue

	mu         sync.Mutex
	lastSeen   time.Time
	chatLoaded bool
	dashLoaded bool
}

func (v *View) touch(now time.Time) {
	v.mu.Lock()
	v.lastSeen = now
	v.mu.Unlock()
}

func (v *View) idleSince(now time.Time) time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return now.Sub(v.lastSeen)
}

// claimChatLoad reports whether the caller should perform the first history
// load of the view.
func (v *View) claimChatLoad() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.chatLoaded {
		return false
	}
	v.chatLoaded = true
	return true
}

func (v *View) claimDashLoad() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.dashLoaded {
		return false
	}
	v.dashLoaded = true
	return true
}

// viewCloseTimeout bounds how long an expired view may take to settle its
// in-flight actions and pending writes.
const viewCloseTimeout = 5 * time.Second

// close waits for in-flight chat actions and flushes pending writes until ctx
// is done. Whatever is still running after that is abandoned.
func (v *View) close(ctx context.Context) error {
	waitErr := v.Chat.Wait(ctx)
	if err := v.queue.Close(ctx); err != nil {
		return err
	}
	if waitErr != nil {
		return fmt.Errorf("wait for chat actions: %w", waitErr)
	}
	return nil
}

// Registry holds the live views of the server.
type Registry struct {
	svc Service
	now func() time.Time

	mu    sync.Mutex
	views map[string]*View
}

// NewRegistry creates an empty registry whose views talk to svc.
func NewRegistry(svc Service) *Registry {
	return &Registry{svc: svc, now: time.Now, views: make(map[string]*View)}
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Create registers a new view for the resolved context.
func (r *Registry) Create(res *embedctx.Resolver) (*View, error) {
	token, err := generateCSRFToken()
	if err != nil {
		return nil, fmt.Errorf("generate csrf token: %w", err)
	}
	q := persist.New(32)
	v := &View{
		ID:       uuid.NewString(),
		CSRF:     token,
		Resolver: res,
		Chat:     chat.New(r.svc, res.Context().Pair()),
		Board:    quiz.NewBoard(r.svc, q),
		Path:     pathpanel.New(r.svc, q),
		Dash:     dashboard.New(r.svc),
		queue:    q,
		lastSeen: r.now(),
	}

	r.mu.Lock()
	r.views[v.ID] = v
	n := len(r.views)
	r.mu.Unlock()

	c := res.Context()
	slog.Info("view created", "view", v.ID, "course_id", c.CourseID, "student_id", c.StudentID, "role", c.Role, "role_enforced", c.RoleEnforced, "views", n)
	return v, nil
}

// Get returns the view with id and marks it as used.
func (r *Registry) Get(id string) (*View, bool) {
	r.mu.Lock()
	v, ok := r.views[id]
	r.mu.Unlock()
	if ok {
		v.touch(r.now())
	}
	return v, ok
}

// Len returns the number of live views.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Sweep drops views idle for longer than ttl and returns how many were
// dropped. Pending background writes of a dropped view are flushed.
func (r *Registry) Sweep(ctx context.Context, ttl time.Duration) int {
	now := r.now()
	var stale []*View
	r.mu.Lock()
	for id, v := range r.views {
		if v.idleSince(now) > ttl {
			stale = append(stale, v)
			delete(r.views, id)
		}
	}
	r.mu.Unlock()

	for _, v := range stale {
		closeCtx, cancel := context.WithTimeout(ctx, viewCloseTimeout)
		err := v.close(closeCtx)
		cancel()
		if err != nil {
			slog.Warn("close idle view", "view", v.ID, "error", err)
		}
		slog.Debug("view expired", "view", v.ID)
	}
	return len(stale)
}

// Run sweeps idle views every interval until ctx is done, then closes every
// remaining view.
func (r *Registry) Run(ctx context.Context, interval, ttl time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			r.closeAll(shutdown)
			return nil
		case <-t.C:
			if n := r.Sweep(ctx, ttl); n > 0 {
				slog.Info("expired idle views", "count", n)
			}
		}
	}
}

func (r *Registry) closeAll(ctx context.Context) {
	r.mu.Lock()
	views := make([]*View, 0, len(r.views))
	for id, v := range r.views {
		views = append(views, v)
		delete(r.views, id)
	}
	r.mu.Unlock()
	for _, v := range views {
		if err := v.close(ctx); err != nil {
			slog.Warn("close view", "view", v.ID, "error", err)
		}
	}
}
