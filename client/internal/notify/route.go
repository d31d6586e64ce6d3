package notify

// ActionKind names a consistency-engine call.
type ActionKind int

const (
	ActionInvalidateGoal ActionKind = iota
	ActionInvalidateUser
)

func (k ActionKind) String() string {
	switch k {
	case ActionInvalidateGoal:
		return "invalidate_goal"
	case ActionInvalidateUser:
		return "invalidate_user"
	default:
		return "unknown"
	}
}

// Action is one cache effect of an envelope. An empty ID on
// ActionInvalidateGoal means tags only.
type Action struct {
	Kind ActionKind
	ID   string
}

// IntentKind is a navigation target for the presentation layer.
type IntentKind string

const (
	IntentOpenGoalDetail     IntentKind = "open goal detail"
	IntentOpenFollowRequests IntentKind = "open follow requests"
	IntentOpenGoalInvitation IntentKind = "open goal invitation"
	IntentOpenHome           IntentKind = "open home"
)

// Intent asks the presentation layer to navigate.
type Intent struct {
	Kind       IntentKind
	Params     map[string]string
	EnvelopeID string
}

// Plan is the routing decision for one envelope.
type Plan struct {
	Envelope Envelope
	Actions  []Action
	Intent   Intent
}

// Invalidator is the subset of the consistency engine a Plan drives.
type Invalidator interface {
	InvalidateGoal(goalID string)
	InvalidateUser(userID string)
}

// Route maps a classified envelope to its plan. It has no side effects.
func Route(env Envelope) Plan {
	p := Plan{Envelope: env, Intent: Intent{Kind: IntentOpenHome, EnvelopeID: env.ID}}
	switch env.Type {
	case TypeStickerReceived:
		goalID := env.DataString(DataGoalID)
		p.Actions = []Action{{Kind: ActionInvalidateGoal, ID: goalID}}
		p.Intent.Kind = IntentOpenGoalDetail
		p.Intent.Params = params(DataGoalID, goalID)
	case TypeFollowRequest:
		userID := env.DataString(DataUserID)
		p.Actions = []Action{{Kind: ActionInvalidateUser, ID: userID}}
		p.Intent.Kind = IntentOpenFollowRequests
		p.Intent.Params = params(DataUserID, userID)
	case TypeGoalInvitation:
		goalID := env.DataString(DataGoalID)
		p.Actions = []Action{{Kind: ActionInvalidateGoal, ID: goalID}}
		p.Intent.Kind = IntentOpenGoalInvitation
		p.Intent.Params = params(DataGoalID, goalID)
	}
	return p
}

// Apply executes the plan's actions in order.
func (p Plan) Apply(inv Invalidator) {
	for _, a := range p.Actions {
		switch a.Kind {
		case ActionInvalidateGoal:
			inv.InvalidateGoal(a.ID)
		case ActionInvalidateUser:
			inv.InvalidateUser(a.ID)
		}
	}
}

func params(key, value string) map[string]string {
	if value == "" {
		return nil
	}
	return map[string]string{key: value}
}
