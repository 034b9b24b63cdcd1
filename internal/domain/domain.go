// Package domain holds the relational entities of the course platform
// described by the data model: users and sessions, the organization/course
// hierarchy, course content and membership, submissions and their test
// results, deployments, messages, and API tokens. These are plain structs;
// persistence lives in internal/store/postgres and authorization lives in
// internal/authz.
package domain

import (
	"time"

	"github.com/worldline-go/types"
)

// CourseRole is one of the totally ordered course-scoped roles. Index order
// in courseRoleOrder defines the hierarchy: holding a role implies holding
// every role below it in the same course.
type CourseRole string

const (
	CourseRoleStudent   CourseRole = "_student"
	CourseRoleTutor     CourseRole = "_tutor"
	CourseRoleLecturer  CourseRole = "_lecturer"
	CourseRoleMaintainer CourseRole = "_maintainer"
	CourseRoleOwner     CourseRole = "_owner"
)

// courseRoleOrder lists the course roles from lowest to highest privilege.
var courseRoleOrder = []CourseRole{
	CourseRoleStudent,
	CourseRoleTutor,
	CourseRoleLecturer,
	CourseRoleMaintainer,
	CourseRoleOwner,
}

// RoleRank returns the position of r in the course-role hierarchy, or -1 if
// r is not a recognized course role.
func RoleRank(r CourseRole) int {
	for i, cr := range courseRoleOrder {
		if cr == r {
			return i
		}
	}
	return -1
}

// AtLeast reports whether r meets or exceeds the threshold role.
func (r CourseRole) AtLeast(threshold CourseRole) bool {
	rr, tr := RoleRank(r), RoleRank(threshold)
	return rr >= 0 && tr >= 0 && rr >= tr
}

// User is a platform account holder. Roles are global (UserRole table);
// course-scoped roles live on CourseMember.
type User struct {
	ID        string    `db:"id"`
	Username  string    `db:"username"`
	Email     string    `db:"email"`
	GivenName string    `db:"given_name"`
	FamilyName string   `db:"family_name"`
	// PasswordHash is a bcrypt hash. Empty when the account only signs in
	// through an Account (OAuth/OIDC/provider) binding.
	PasswordHash string    `db:"password_hash"`
	IsArchived   bool      `db:"is_archived"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// UserRole is a global (non-course-scoped) role assignment, e.g. "_admin",
// "user_manager".
type UserRole struct {
	UserID string `db:"user_id"`
	Role   string `db:"role"`
}

// Account binds a User to an external identity (OAuth/OIDC provider, GitLab,
// Coder, ...).
type Account struct {
	ID               string    `db:"id"`
	UserID           string    `db:"user_id"`
	ProviderURL      string    `db:"provider_url"`
	ProviderAccountID string   `db:"provider_account_id"`
	Type             string    `db:"type"`
	CreatedAt        time.Time `db:"created_at"`
}

// Session is the system-of-record row backing a login. The live bearer
// tokens themselves are only ever held, hashed, in Redis (internal/session);
// this row survives Redis eviction and carries device/audit metadata.
type Session struct {
	ID               string     `db:"id"`
	UserID           string     `db:"user_id"`
	SessionIDHash    string     `db:"session_id_hash"`
	RefreshTokenHash string     `db:"refresh_token_hash"`
	DeviceLabel      string     `db:"device_label"`
	UserAgent        string     `db:"user_agent"`
	IP               string     `db:"ip"`
	ExpiresAt        time.Time  `db:"expires_at"`
	RefreshExpiresAt time.Time  `db:"refresh_expires_at"`
	CreatedAt        time.Time  `db:"created_at"`
	EndedAt          *time.Time `db:"ended_at"`
}

// Alive reports whether the session can still be refreshed.
func (s Session) Alive(now time.Time) bool {
	return s.EndedAt == nil && now.Before(s.RefreshExpiresAt)
}

// ProviderBinding is the optional GitLab-style integration carried by
// Organization, CourseFamily and Course rows.
type ProviderBinding struct {
	URL           string `db:"provider_url"`
	GroupPath     string `db:"provider_group_path"`
	EncryptedToken string `db:"provider_token"`
}

// Organization is the top container in the course hierarchy.
type Organization struct {
	ID        string    `db:"id"`
	Path      string    `db:"path"`
	Title     string    `db:"title"`
	Provider  ProviderBinding
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// CourseFamily groups courses within an Organization.
type CourseFamily struct {
	ID             string    `db:"id"`
	OrganizationID string    `db:"organization_id"`
	Path           string    `db:"path"`
	Title          string    `db:"title"`
	Provider       ProviderBinding
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Course is one running instance of a course family.
type Course struct {
	ID             string    `db:"id"`
	CourseFamilyID string    `db:"course_family_id"`
	Path           string    `db:"path"`
	Title          string    `db:"title"`
	Provider       ProviderBinding
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// CourseContentKind defines whether content of a CourseContentType is
// submittable (can receive submissions/deployments) or purely structural.
type CourseContentKind struct {
	ID          string `db:"id"`
	Title       string `db:"title"`
	Submittable bool   `db:"submittable"`
}

// CourseContentType is the per-course configuration of a content kind
// (e.g. "Assignment", "Unit", each with its own grading/execution settings).
type CourseContentType struct {
	ID                  string `db:"id"`
	CourseID            string `db:"course_id"`
	Slug                string `db:"slug"`
	Title               string `db:"title"`
	CourseContentKindID string `db:"course_content_kind_id"`
	// ExecutionBackendID names the test-execution backend used when content
	// of this type is scheduled for testing; empty means "not executable".
	ExecutionBackendID string `db:"execution_backend_id"`
}

// CourseContent is one node of a course's Ltree-pathed content tree.
type CourseContent struct {
	ID                  string `db:"id"`
	CourseID            string `db:"course_id"`
	CourseContentTypeID string `db:"course_content_type_id"`
	// Path is the dotted Ltree label path, e.g. "week_1.assignment_2".
	Path      string    `db:"path"`
	Title     string    `db:"title"`
	MaxGroupSize int    `db:"max_group_size"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// CourseMember is a user's membership in a course.
type CourseMember struct {
	ID            string     `db:"id"`
	CourseID      string     `db:"course_id"`
	UserID        string     `db:"user_id"`
	CourseRoleID  CourseRole `db:"course_role_id"`
	CourseGroupID *string    `db:"course_group_id"`
	CreatedAt     time.Time  `db:"created_at"`
}

// CourseGroup is an optional sub-grouping of course members (e.g. lab
// sections), referenced by Message's course_group_id target.
type CourseGroup struct {
	ID       string `db:"id"`
	CourseID string `db:"course_id"`
	Title    string `db:"title"`
}

// SubmissionGroup is the unit of attribution for submissions to one
// CourseContent.
type SubmissionGroup struct {
	ID              string    `db:"id"`
	CourseID        string    `db:"course_id"`
	CourseContentID string    `db:"course_content_id"`
	JoinCode        string    `db:"join_code"`
	MaxGroupSize    int       `db:"max_group_size"`
	MaxSubmissions  *int      `db:"max_submissions"`
	MaxTestRuns     *int      `db:"max_test_runs"`
	CreatedAt       time.Time `db:"created_at"`
}

// SubmissionGroupMember links a CourseMember into a SubmissionGroup.
type SubmissionGroupMember struct {
	ID                string    `db:"id"`
	SubmissionGroupID string    `db:"submission_group_id"`
	CourseMemberID    string    `db:"course_member_id"`
	// Pending is true while the member awaits lecturer/tutor approval to
	// join a group that requires sign-off.
	Pending   bool      `db:"pending"`
	CreatedAt time.Time `db:"created_at"`
}

// SubmissionArtifact is one immutable uploaded ZIP archive.
type SubmissionArtifact struct {
	ID                string    `db:"id"`
	SubmissionGroupID string    `db:"submission_group_id"`
	Bucket            string    `db:"bucket"`
	ObjectKey         string    `db:"object_key"`
	VersionIdentifier string    `db:"version_identifier"`
	Filename          string    `db:"filename"`
	ContentType       string    `db:"content_type"`
	SizeBytes         int64     `db:"size_bytes"`
	Submit            bool      `db:"submit"`
	UploadedByUserID  string    `db:"uploaded_by_user_id"`
	Properties        string    `db:"properties"` // opaque JSON
	CreatedAt         time.Time `db:"created_at"`
}

// DeploymentStatus is the current phase of a CourseContentDeployment.
type DeploymentStatus string

const (
	DeploymentPending    DeploymentStatus = "pending"
	DeploymentDeploying  DeploymentStatus = "deploying"
	DeploymentDeployed   DeploymentStatus = "deployed"
	DeploymentFailed     DeploymentStatus = "failed"
	DeploymentUnassigned DeploymentStatus = "unassigned"
)

// CourseContentDeployment binds a submittable CourseContent to a specific
// example version, 1-1.
type CourseContentDeployment struct {
	ID                string           `db:"id"`
	CourseContentID   string           `db:"course_content_id"`
	ExampleVersionID  string           `db:"example_version_id"`
	ExampleIdentifier string           `db:"example_identifier"`
	VersionTag        string           `db:"version_tag"`
	DeploymentStatus  DeploymentStatus `db:"deployment_status"`
	DeploymentPath    string           `db:"deployment_path"`
	VersionIdentifier string           `db:"version_identifier"`
	WorkflowID        string           `db:"workflow_id"`
	CreatedAt         time.Time        `db:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at"`
}

// DeploymentAction enumerates the append-only DeploymentHistory transitions.
type DeploymentAction string

const (
	DeploymentActionAssigned       DeploymentAction = "assigned"
	DeploymentActionReassigned     DeploymentAction = "reassigned"
	DeploymentActionUpdated        DeploymentAction = "updated"
	DeploymentActionUnassigned     DeploymentAction = "unassigned"
	DeploymentActionDeployStarted  DeploymentAction = "deploy_started"
	DeploymentActionDeploySucceeded DeploymentAction = "deploy_succeeded"
	DeploymentActionDeployFailed   DeploymentAction = "deploy_failed"
)

// DeploymentHistory is one append-only transition log entry.
type DeploymentHistory struct {
	ID                  string           `db:"id"`
	DeploymentID        string           `db:"deployment_id"`
	Action              DeploymentAction `db:"action"`
	ActorUserID         string           `db:"actor_user_id"`
	PriorExampleVersion string           `db:"prior_example_version"`
	NewExampleVersion   string           `db:"new_example_version"`
	Message             string           `db:"message"`
	CreatedAt           time.Time        `db:"created_at"`
}

// ResultStatus is Result.status, stored as int per spec.
type ResultStatus int

const (
	ResultFinished  ResultStatus = 0
	ResultFailed    ResultStatus = 1
	ResultCancelled ResultStatus = 2
	ResultScheduled ResultStatus = 3
	ResultPending   ResultStatus = 4
	ResultRunning   ResultStatus = 5
	ResultCrashed   ResultStatus = 6
	ResultPaused    ResultStatus = 7
)

// Terminal reports whether the status is one of the absorbing states.
func (s ResultStatus) Terminal() bool {
	switch s {
	case ResultFinished, ResultFailed, ResultCancelled, ResultCrashed:
		return true
	default:
		return false
	}
}

func (s ResultStatus) String() string {
	switch s {
	case ResultFinished:
		return "finished"
	case ResultFailed:
		return "failed"
	case ResultCancelled:
		return "cancelled"
	case ResultScheduled:
		return "scheduled"
	case ResultPending:
		return "pending"
	case ResultRunning:
		return "running"
	case ResultCrashed:
		return "crashed"
	case ResultPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Result is the outcome of one test execution against a SubmissionArtifact.
type Result struct {
	ID                       string       `db:"id"`
	SubmissionArtifactID     string       `db:"submission_artifact_id"`
	CourseMemberID           string       `db:"course_member_id"`
	CourseContentID          string       `db:"course_content_id"`
	// CourseContentTypeID is carried for legacy reasons only; do not use it
	// for authorization decisions.
	CourseContentTypeID      string       `db:"course_content_type_id"`
	ExecutionBackendID       string       `db:"execution_backend_id"`
	TestSystemID             string       `db:"test_system_id"`
	Status                   ResultStatus `db:"status"`
	Grade                    *float64     `db:"grade"`
	ResultJSON               string       `db:"result_json"`
	LogText                  string       `db:"log_text"`
	VersionIdentifier        string       `db:"version_identifier"`
	ReferenceVersionIdentifier string     `db:"reference_version_identifier"`
	Properties               string      `db:"properties"`
	CreatedAt                time.Time   `db:"created_at"`
	StartedAt                *time.Time  `db:"started_at"`
	FinishedAt               *time.Time  `db:"finished_at"`
}

// GradeStatus is SubmissionGrade.status.
type GradeStatus string

const (
	GradeNotReviewed        GradeStatus = "not_reviewed"
	GradeImprovementPossible GradeStatus = "improvement_possible"
	GradeCorrected          GradeStatus = "corrected"
)

// SubmissionGrade is a tutor-supplied grade for a SubmissionArtifact.
type SubmissionGrade struct {
	ID                   string      `db:"id"`
	SubmissionArtifactID string      `db:"submission_artifact_id"`
	AuthorUserID         string      `db:"author_user_id"`
	Grade                float64     `db:"grade"`
	Status               GradeStatus `db:"status"`
	Comment              string      `db:"comment"`
	CreatedAt            time.Time   `db:"created_at"`
}

// Message is a hierarchical, scoped note. At most one of the *_id fields is
// the primary target; CourseID is copied from the primary target for
// cache-invalidation and visibility queries.
type Message struct {
	ID                string    `db:"id"`
	ParentID          *string   `db:"parent_id"`
	AuthorUserID      string    `db:"author_user_id"`
	UserID            *string   `db:"user_id"`
	CourseMemberID    *string   `db:"course_member_id"`
	SubmissionGroupID *string   `db:"submission_group_id"`
	CourseGroupID     *string   `db:"course_group_id"`
	CourseContentID   *string   `db:"course_content_id"`
	CourseID          *string   `db:"course_id"`
	Title             string    `db:"title"`
	Content           string    `db:"content"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// MessageRead is a read-marker: (message_id, reader_user_id) set membership.
type MessageRead struct {
	MessageID    string    `db:"message_id"`
	ReaderUserID string    `db:"reader_user_id"`
	ReadAt       time.Time `db:"read_at"`
}

// ApiToken is a long-lived service-account credential.
type ApiToken struct {
	ID          string          `db:"id"`
	UserID      string          `db:"user_id"`
	Name        string          `db:"name"`
	TokenPrefix string          `db:"token_prefix"`
	TokenHash   string          `db:"token_hash"`
	Scopes      types.Slice[string] `db:"scopes"`
	ExpiresAt   *time.Time      `db:"expires_at"`
	RevokedAt   *time.Time      `db:"revoked_at"`
	CreatedAt   time.Time       `db:"created_at"`
}

// Revoked reports whether the token can no longer authenticate.
func (t ApiToken) Revoked(now time.Time) bool {
	if t.RevokedAt != nil {
		return true
	}
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// StudentProfile is a course member's self-managed profile (bio, links),
// supplementing spec.md with the permission table's StudentProfile kind.
type StudentProfile struct {
	ID             string    `db:"id"`
	CourseMemberID string    `db:"course_member_id"`
	Bio            string    `db:"bio"`
	AvatarURL      string    `db:"avatar_url"`
	UpdatedAt      time.Time `db:"updated_at"`
}
