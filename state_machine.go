package bridge

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const textCodeInvalidTransition = "INVALID_SESSION_STATE_TRANSITION"

// ErrInvalidStateTransition is returned when a requested bridge state
// change is not allowed.
var ErrInvalidStateTransition = goerrors.New("invalid session state transition", goerrors.CategoryConflict).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeConflict)

// BridgeState is the published lifecycle state of the bridge, as observed
// through its snapshot.
type BridgeState string

const (
	// StateUninitialized holds from construction until the first bootstrap
	// resolves.
	StateUninitialized BridgeState = "uninitialized"
	// StateAnonymous means no principal is logged in.
	StateAnonymous BridgeState = "anonymous"
	// StatePendingConfirmation means an account was registered but the
	// backing session will not exist until the email is confirmed. The
	// published user stays nil in this state.
	StatePendingConfirmation BridgeState = "pending_confirmation"
	// StateAuthenticated means a principal is logged in.
	StateAuthenticated BridgeState = "authenticated"
)

// LifecycleMachine validates bridge state transitions. External change
// events can legitimately move an anonymous bridge straight to
// authenticated (a login in another client of the same store), so the
// graph is permissive in that direction; it only rejects changes that
// would re-enter bootstrap or skip sign-out.
type LifecycleMachine struct {
	transitions map[BridgeState]map[BridgeState]struct{}
	now         func() time.Time
}

// LifecycleOption customizes machine construction.
type LifecycleOption func(*LifecycleMachine)

// WithLifecycleClock injects a custom clock (useful for tests).
func WithLifecycleClock(clock func() time.Time) LifecycleOption {
	return func(m *LifecycleMachine) {
		if clock != nil {
			m.now = clock
		}
	}
}

// NewLifecycleMachine returns the default transition graph.
func NewLifecycleMachine(opts ...LifecycleOption) *LifecycleMachine {
	m := &LifecycleMachine{
		transitions: map[BridgeState]map[BridgeState]struct{}{
			StateUninitialized: {
				StateAnonymous:     {},
				StateAuthenticated: {},
			},
			StateAnonymous: {
				StateAuthenticated:       {},
				StatePendingConfirmation: {},
			},
			StatePendingConfirmation: {
				StateAuthenticated: {},
				StateAnonymous:     {},
			},
			StateAuthenticated: {
				StateAnonymous:     {},
				StateAuthenticated: {},
			},
		},
		now: time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// CanTransition reports whether from -> to is allowed. Self transitions
// are allowed everywhere except StateUninitialized: a refresh event while
// authenticated re-publishes the same state, and nothing may re-enter the
// uninitialized state.
func (m *LifecycleMachine) CanTransition(from, to BridgeState) bool {
	if from == to {
		return from != StateUninitialized
	}
	if allowed, ok := m.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// Transition validates and returns the target state.
func (m *LifecycleMachine) Transition(from, to BridgeState) (BridgeState, error) {
	if to == "" {
		return from, transitionError(map[string]any{
			"reason": "target state is empty",
			"from":   from,
		})
	}

	if !m.CanTransition(from, to) {
		return from, transitionError(map[string]any{
			"from": from,
			"to":   to,
			"at":   m.now(),
		})
	}

	return to, nil
}

// transitionError decorates a clone, never the shared sentinel.
func transitionError(meta map[string]any) error {
	clone := ErrInvalidStateTransition.Clone()
	if clone == nil {
		return ErrInvalidStateTransition
	}
	clone.Source = ErrInvalidStateTransition
	return clone.WithMetadata(meta)
}
