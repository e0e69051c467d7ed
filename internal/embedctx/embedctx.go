// Package embedctx derives the embedding context of a view from the query
// string the host LMS puts on the iframe URL.
//
// The role parameter is a capability hint computed by the host from its own
// authorization check. It is accepted as given: this package validates its
// shape but cannot authenticate it.
package embedctx

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/pavelanni/aitutor/internal/model"
)

// Query parameter names as written by the host plugin.
const (
	ParamCourseID  = "courseId"
	ParamStudentID = "studentId"
	ParamRole      = "role"
)

// ErrRoleEnforced is returned when switching the role of a view whose role
// was fixed by the host.
var ErrRoleEnforced = errors.New("role is enforced by the host")

// Params is the untrusted set of embedding parameters. A SessionContext can
// only be built from a Params value, never from ambient state.
type Params struct {
	CourseID  string
	StudentID string
	Role      string
}

// FromQuery extracts embedding parameters from a query string. Key names
// match case-insensitively; an exact-case key wins over other spellings.
func FromQuery(q url.Values) Params {
	return Params{
		CourseID:  lookup(q, ParamCourseID),
		StudentID: lookup(q, ParamStudentID),
		Role:      lookup(q, ParamRole),
	}
}

// FromURL parses raw as a URL and extracts its embedding parameters.
func FromURL(raw string) (Params, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Params{}, fmt.Errorf("parse embed url: %w", err)
	}
	return FromQuery(u.Query()), nil
}

func lookup(q url.Values, key string) string {
	if v := strings.TrimSpace(q.Get(key)); v != "" {
		return v
	}
	for k, vs := range q {
		if strings.EqualFold(k, key) && len(vs) > 0 {
			if v := strings.TrimSpace(vs[0]); v != "" {
				return v
			}
		}
	}
	return ""
}

// Defaults are the ids used when the host leaves them out.
type Defaults struct {
	CourseID  int64
	StudentID int64
}

// Resolve builds the session context for p. It is a pure function; use a
// Resolver to get the compute-once semantics of a view.
func Resolve(p Params, d Defaults) model.SessionContext {
	sc := model.SessionContext{
		CourseID:  d.CourseID,
		StudentID: d.StudentID,
		Role:      model.RoleStudent,
	}
	if id, ok := parseID(p.CourseID); ok {
		sc.CourseID = id
	}
	if id, ok := parseID(p.StudentID); ok {
		sc.StudentID = id
	}
	if role, ok := parseRole(p.Role); ok {
		sc.Role = role
		sc.RoleEnforced = true
	}
	return sc
}

func parseID(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseRole accepts only the exact values the host writes. Key names are
// case-insensitive, role values are not.
func parseRole(s string) (model.Role, bool) {
	role := model.Role(s)
	return role, role.Valid()
}

// Resolver owns the session context of one view. The context is resolved on
// first use and is immutable afterwards, except for a single late binding of
// ids the host did not supply up front.
type Resolver struct {
	params   Params
	defaults Defaults

	once sync.Once
	mu   sync.Mutex
	ctx  model.SessionContext

	courseFromHost  bool
	studentFromHost bool
	lateBound       bool
}

// NewResolver returns a resolver for the given initial parameters.
func NewResolver(p Params, d Defaults) *Resolver {
	return &Resolver{params: p, defaults: d}
}

func (r *Resolver) resolve() {
	r.once.Do(func() {
		r.ctx = Resolve(r.params, r.defaults)
		_, r.courseFromHost = parseID(r.params.CourseID)
		_, r.studentFromHost = parseID(r.params.StudentID)
	})
}

// Context returns the resolved session context.
func (r *Resolver) Context() model.SessionContext {
	r.resolve()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctx
}

// HostSupplied reports which ids came from the embedding URL rather than the
// defaults.
func (r *Resolver) HostSupplied() (course, student bool) {
	r.resolve()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.courseFromHost, r.studentFromHost
}

// BindLate applies ids the host supplied after the first render. Only ids
// that were defaulted at resolution time are eligible, and only the first
// call that carries a usable value has any effect. The role is never touched.
// It reports whether the context changed.
func (r *Resolver) BindLate(p Params) bool {
	r.resolve()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lateBound {
		return false
	}
	changed := false
	if id, ok := parseID(p.CourseID); ok && !r.courseFromHost {
		r.ctx.CourseID = id
		r.courseFromHost = true
		changed = true
	}
	if id, ok := parseID(p.StudentID); ok && !r.studentFromHost {
		r.ctx.StudentID = id
		r.studentFromHost = true
		changed = true
	}
	if changed {
		r.lateBound = true
	}
	return changed
}

// SwitchRole changes the role of a view whose role is user-adjustable.
func (r *Resolver) SwitchRole(role model.Role) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	r.resolve()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx.RoleEnforced {
		return ErrRoleEnforced
	}
	r.ctx.Role = role
	return nil
}

// SelectCourse changes the course of a view whose course id was not fixed by
// the host (the course selector). It reports whether the context changed.
func (r *Resolver) SelectCourse(courseID int64) bool {
	r.resolve()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.courseFromHost || courseID <= 0 || r.ctx.CourseID == courseID {
		return false
	}
	r.ctx.CourseID = courseID
	return true
}

// SelectStudent changes the student of a view whose student id was not fixed
// by the host. It reports whether the context changed.
func (r *Resolver) SelectStudent(studentID int64) bool {
	r.resolve()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.studentFromHost || studentID <= 0 || r.ctx.StudentID == studentID {
		return false
	}
	r.ctx.StudentID = studentID
	return true
}
