package rbac

import "strings"

type Role string
type Action string

const (
	RoleViewer Role = "VIEWER"
	RoleEditor Role = "EDITOR"
	RoleAdmin  Role = "ADMIN"
	RoleOwner  Role = "OWNER"
)

const (
	ActionRead    Action = "read"
	ActionComment Action = "comment"
	ActionWrite   Action = "write"
	ActionPublish Action = "publish"
	ActionApprove Action = "approve"
	ActionAdmin   Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner, RoleAdmin:
		return true
	case RoleEditor:
		return action == ActionRead || action == ActionComment || action == ActionWrite || action == ActionPublish
	case RoleViewer:
		return action == ActionRead || action == ActionComment
	default:
		return false
	}
}

// Normalize maps stored role strings onto a known role. Unknown values
// degrade to viewer.
func Normalize(role string) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(role))) {
	case RoleViewer:
		return RoleViewer
	case RoleEditor:
		return RoleEditor
	case RoleAdmin:
		return RoleAdmin
	case RoleOwner:
		return RoleOwner
	default:
		return RoleViewer
	}
}

// Assignable reports whether role may be handed out through an invite.
// Ownership is never transferred by invite.
func Assignable(role string) bool {
	switch Role(strings.ToUpper(strings.TrimSpace(role))) {
	case RoleViewer, RoleEditor, RoleAdmin:
		return true
	default:
		return false
	}
}
