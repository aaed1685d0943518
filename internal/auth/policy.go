package auth

// Action identifies an operation subject to the authorization policy.
type Action string

const (
	ActionRegister       Action = "register"
	ActionLogin          Action = "login"
	ActionListSubjects   Action = "subject.list"
	ActionReadSubject    Action = "subject.read"
	ActionCreateSubject  Action = "subject.create"
	ActionUpdateSubject  Action = "subject.update"
	ActionChangePassword Action = "subject.change_password"
	ActionToggleActive   Action = "subject.toggle_active"
	ActionChangeRole     Action = "subject.change_role"
	ActionDeleteSubject  Action = "subject.delete"
)

// Target names the subject an action operates on. Nil target means the
// action has no per-subject scope (listing, creation without a record yet).
type Target struct {
	ID   string
	Role Role
}

// Decision is the outcome of one policy evaluation. Reason carries the
// denial category surfaced to clients; it never includes target data.
type Decision struct {
	Allow  bool
	Reason string
}

func allow() Decision             { return Decision{Allow: true} }
func deny(reason string) Decision { return Decision{Allow: false, Reason: reason} }

// CanAccess computes the access decision for one request. Rules are
// evaluated in order, first match wins:
//
//  1. unauthenticated actors may only register or log in;
//  2. role changes and deletes are admin-only regardless of target;
//  3. a subject may read/update its own record and change its own password;
//  4. admins may do everything else;
//  5. employees may list, and read/write subjects whose role is citizen;
//  6. citizens get nothing beyond rule 3.
func CanAccess(actor *Identity, action Action, target *Target) Decision {
	if actor == nil {
		if action == ActionRegister || action == ActionLogin {
			return allow()
		}
		return deny("authentication required")
	}

	if action == ActionChangeRole || action == ActionDeleteSubject {
		if actor.Role == RoleAdmin {
			return allow()
		}
		return deny("admin role required")
	}

	if target != nil && target.ID == actor.ID {
		switch action {
		case ActionReadSubject, ActionUpdateSubject, ActionChangePassword:
			return allow()
		}
	}

	switch actor.Role {
	case RoleAdmin:
		return allow()
	case RoleEmployee:
		switch action {
		case ActionListSubjects:
			return allow()
		case ActionCreateSubject, ActionReadSubject, ActionUpdateSubject, ActionToggleActive:
			if target != nil && target.Role == RoleCitizen {
				return allow()
			}
			return deny("employees may only manage citizen records")
		}
		return deny("insufficient role")
	case RoleCitizen:
		return deny("citizens may only access their own record")
	}
	return deny("unknown role")
}
