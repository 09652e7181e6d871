package rbac

type Role string
type Action string

const (
	RoleNone         Role = "none"
	RoleViewer       Role = "viewer"
	RoleCollaborator Role = "collaborator"
	RoleOwner        Role = "owner"
	// RoleAdmin is never stored on a checklist. It is the level an admin
	// user resolves to, and it dominates every other role.
	RoleAdmin Role = "admin"
)

const (
	ActionRead       Action = "read"
	ActionEdit       Action = "edit"
	ActionManage     Action = "manage"
	ActionAdminister Action = "administer"
)

// Level returns the ordinal used for permission comparisons:
// viewer(1) < collaborator(2) < owner(3) < admin(4). Unknown roles are 0.
func (r Role) Level() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleCollaborator:
		return 2
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 4
	default:
		return 0
	}
}

func (r Role) AtLeast(minimum Role) bool {
	level := r.Level()
	return level > 0 && level >= minimum.Level()
}

// Minimum is the lowest role allowed to perform action.
func Minimum(action Action) Role {
	switch action {
	case ActionRead:
		return RoleViewer
	case ActionEdit:
		return RoleCollaborator
	case ActionManage:
		return RoleOwner
	default:
		return RoleAdmin
	}
}

func Can(role Role, action Action) bool {
	return role.AtLeast(Minimum(action))
}

// ParseCollaboratorRole accepts only the roles a Collaborator row may hold.
func ParseCollaboratorRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleViewer, RoleCollaborator:
		return Role(value), true
	default:
		return RoleNone, false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleCollaborator, RoleOwner, RoleAdmin:
		return Role(role)
	default:
		return RoleNone
	}
}
