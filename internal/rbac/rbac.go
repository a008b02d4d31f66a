package rbac

type Role string
type Action string

const (
	RoleViewer     Role = "viewer"
	RoleOperator   Role = "operator"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

const (
	ActionRead    Action = "read"    // view shipments, documents, audit trail
	ActionComment Action = "comment" // field and manifest comments
	ActionWrite   Action = "write"   // uploads, field edits, manifests, stage work
	ActionReview  Action = "review"  // document review decisions
	ActionSubmit  Action = "submit"  // manifest submission and settlement
	ActionUnlock  Action = "unlock"  // unlock an approved document
	ActionAdmin   Action = "admin"   // audit reset, operator management
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleSupervisor:
		return action != ActionAdmin
	case RoleOperator:
		return action == ActionRead || action == ActionComment || action == ActionWrite
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleOperator, RoleSupervisor, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
