// Package authz implements the permission-handler registry described by
// spec.md §4.2: for every resource kind, a Handler computes both a boolean
// can_perform decision and a build_query row filter from the same
// role/claim algebra, so the two never drift apart (the P1 testable
// property). Handlers are plain Go values registered in a Registry keyed by
// ResourceKind; the query-builder half returns an opaque QueryRestriction
// rather than coupling callers to a specific ORM, matching the "dynamic
// polymorphism" design note.
package authz

import (
	"context"

	"github.com/computor-platform/computor-api/internal/domain"
	"github.com/computor-platform/computor-api/internal/principal"
)

// Action is one of the CRUD verbs a Handler is asked to decide on.
type Action string

const (
	ActionGet    Action = "get"
	ActionList   Action = "list"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ResourceKind names an entity family with its own Handler.
type ResourceKind string

const (
	KindOrganization      ResourceKind = "Organization"
	KindCourseFamily      ResourceKind = "CourseFamily"
	KindCourse            ResourceKind = "Course"
	KindCourseContent     ResourceKind = "CourseContent"
	KindCourseContentType ResourceKind = "CourseContentType"
	KindCourseMember      ResourceKind = "CourseMember"
	KindResult            ResourceKind = "Result"
	KindExample           ResourceKind = "Example"
	KindMessage           ResourceKind = "Message"
	KindStudentProfile    ResourceKind = "StudentProfile"
	KindApiToken          ResourceKind = "ApiToken"
	KindUser              ResourceKind = "User"
)

// QueryRestriction is the Go-typed analogue of the SQLAlchemy Query the
// original returns from build_query: an opaque filter-spec that a
// goqu-based store translates into a WHERE clause. Exactly one of
// Unrestricted, Deny, or a populated filter field applies.
type QueryRestriction struct {
	// Unrestricted means "all rows of this kind", granted to admins and to
	// principals holding the matching general claim.
	Unrestricted bool
	// Deny means no row of this kind is visible.
	Deny bool

	// CourseIDIn restricts rows to those whose course_id is in this set,
	// the standard course-scoped narrowing from §4.2.
	CourseIDIn []string
	// OwnerUserID restricts rows to those owned by (authored by / belonging
	// to) this user, used for self-only branches (StudentProfile,
	// ApiToken, Message author visibility).
	OwnerUserID *string
	// SubmissionGroupMemberOfUserID additionally admits rows reachable
	// through the principal's SubmissionGroupMember rows (the Result
	// "owner via own submission group" branch).
	SubmissionGroupMemberOfUserID *string
	// MessagePrimaryTargets, when set, is the union of primary-target
	// filters described in §4.8 ("visibility is the union of...").
	MessagePrimaryTargets *MessageVisibility
}

// MessageVisibility names every source of message visibility from §4.8 so
// the store layer can OR them together in one query.
type MessageVisibility struct {
	AuthorUserID         string
	TargetUserID         string
	CourseMemberIDs      []string
	SubmissionGroupIDs   []string
	CourseGroupIDs       []string
	CourseContentIDIn    []string
	CourseIDIn           []string
	// BroadAccessCourseIDIn admits every message scoped to these courses
	// regardless of primary target, for the tutor/lecturer broad-access
	// branch.
	BroadAccessCourseIDIn []string
}

// Handler is implemented once per ResourceKind.
type Handler interface {
	CanPerform(ctx context.Context, p principal.Principal, action Action, resourceID string, resourceCtx map[string]any) (bool, error)
	BuildQuery(ctx context.Context, p principal.Principal, action Action) (QueryRestriction, error)
}

// Registry dispatches to the Handler registered for a resource kind. A
// lookup miss is "no handler implies admin-only" per §4.2 rule 4.
type Registry struct {
	handlers map[ResourceKind]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[ResourceKind]Handler)}
}

func (r *Registry) Register(kind ResourceKind, h Handler) {
	r.handlers[kind] = h
}

// CanPerform evaluates rule 1 (admin) before deferring to the registered
// handler, so every handler can assume P.is_admin has already been handled.
func (r *Registry) CanPerform(ctx context.Context, kind ResourceKind, p principal.Principal, action Action, resourceID string, resourceCtx map[string]any) (bool, error) {
	if p.IsAdmin {
		return true, nil
	}

	h, ok := r.handlers[kind]
	if !ok {
		return false, nil
	}
	return h.CanPerform(ctx, p, action, resourceID, resourceCtx)
}

// BuildQuery evaluates rule 1 (admin) before deferring to the registered
// handler.
func (r *Registry) BuildQuery(ctx context.Context, kind ResourceKind, p principal.Principal, action Action) (QueryRestriction, error) {
	if p.IsAdmin {
		return QueryRestriction{Unrestricted: true}, nil
	}

	h, ok := r.handlers[kind]
	if !ok {
		return QueryRestriction{Deny: true}, nil
	}
	return h.BuildQuery(ctx, p, action)
}

// roleThreshold is the minimum course role required for (kind, action),
// from the table in §4.2. A zero threshold (empty string) means "no
// course-scoped path grants this action" (it's general-claim or admin
// only).
type roleThreshold struct {
	get    domain.CourseRole
	list   domain.CourseRole
	create domain.CourseRole
	update domain.CourseRole
	delete domain.CourseRole
}

func (t roleThreshold) forAction(a Action) domain.CourseRole {
	switch a {
	case ActionGet:
		return t.get
	case ActionList:
		return t.list
	case ActionCreate:
		return t.create
	case ActionUpdate:
		return t.update
	case ActionDelete:
		return t.delete
	default:
		return ""
	}
}
