package cms

import "fmt"

// Action is an operation the permission gate can authorize.
type Action string

const (
	ActionCreateDraft Action = "create-draft"
	ActionSaveDraft   Action = "save-draft"
	ActionSubmit      Action = "submit-for-review"
	ActionPublish     Action = "publish"
	ActionApprove     Action = "approve"
	ActionReject      Action = "reject"
	ActionTrash       Action = "trash"
	ActionRestore     Action = "restore"
	ActionPurge       Action = "purge"

	ActionReadWorking Action = "read-working"
	ActionReconcile   Action = "reconcile"
	ActionMigrate     Action = "migrate"
	ActionSweep       Action = "sweep"
	ActionManageTeam  Action = "manage-team"
	ActionAutomation  Action = "automation"
)

// ParseAction maps a name from the HTTP or CLI surface to a lifecycle action.
func ParseAction(raw string) (Action, error) {
	for _, a := range []Action{ActionCreateDraft, ActionSaveDraft, ActionSubmit, ActionPublish,
		ActionApprove, ActionReject, ActionTrash, ActionRestore, ActionPurge} {
		if string(a) == raw {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, raw)
}

// Subject describes the item an action targets, as far as the gate cares.
// Owner is empty for published files.
type Subject struct {
	Owner string
	Stage Stage
}

// Decision is the gate's verdict. Reason is for logs only and must never be
// returned to the caller.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Authorize evaluates u against action on subject. Administrators pass every
// check. Ownership compares normalized identities.
func Authorize(u *User, action Action, subject Subject) Decision {
	if u == nil || u.ID() == "" {
		return deny("no caller identity")
	}
	if u.IsAdmin() {
		return allow()
	}

	owns := subject.Owner != "" && NormalizeAuthor(subject.Owner) == u.ID()

	switch action {
	case ActionCreateDraft:
		return allow()
	case ActionReadWorking:
		// Drafts are private; the review queue is shared.
		if subject.Stage == StageDraft && !owns {
			return deny("%s cannot read another author's draft", u.ID())
		}
		return allow()
	case ActionSaveDraft, ActionSubmit:
		if !owns {
			return deny("%s is not the author of the item", u.ID())
		}
		return allow()
	case ActionPublish, ActionApprove, ActionRestore, ActionReconcile, ActionAutomation:
		if !u.CanEditPublished {
			return deny("%s lacks canEditPublished", u.ID())
		}
		return allow()
	case ActionReject:
		if u.CanDelete {
			return allow()
		}
		if owns && subject.Stage == StageDraft {
			return allow()
		}
		return deny("%s lacks canDelete and does not own a draft", u.ID())
	case ActionTrash, ActionPurge:
		if !u.CanDelete {
			return deny("%s lacks canDelete", u.ID())
		}
		return allow()
	case ActionMigrate, ActionSweep, ActionManageTeam:
		return deny("%s requires Administrator", action)
	default:
		return deny("unknown action %q", action)
	}
}
