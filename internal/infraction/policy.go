package infraction

// Decision is the outcome of an access-policy check. Reason is set on deny
// and becomes the audited failure reason.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// Decide is the pure access policy: it maps (actor role, record status,
// requested operation) to allow or deny, with no side effects. Status-driven
// preconditions that the state machine reports as invalid transitions
// (register on non-draft, double cancel, delete outside draft) are enforced
// there, so that callers receive a state-conflict error rather than an
// access denial; this function owns the role rules and the status-dependent
// edit matrix. It must be invoked before every mutating operation.
func Decide(role Role, status Status, op Operation) Decision {
	switch role {
	case RoleAgent, RoleSupervisor, RoleAdmin:
	default:
		return deny("unknown role " + string(role))
	}

	switch op {
	case OpCreate, OpRegister, OpDelete, OpView:
		// Any authorized role.
		return allow()
	case OpEdit:
		if status == StatusCancelled {
			return deny("cancelled records cannot be edited")
		}
		if role == RoleAgent && status != StatusDraft {
			return deny("agents may edit records only while in draft")
		}
		return allow()
	case OpCancel:
		if role == RoleAgent {
			return deny("cancellation requires supervisor or admin role")
		}
		return allow()
	case OpConclude:
		if role == RoleAgent {
			return deny("conclusion requires supervisor or admin role")
		}
		return allow()
	default:
		return deny("unknown operation " + string(op))
	}
}
