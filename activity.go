package bridge

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventBootstrapCompleted ActivityEventType = "bridge.bootstrap.completed"
	ActivityEventLoginSuccess       ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure       ActivityEventType = "auth.login.failure"
	ActivityEventLogoutSuccess      ActivityEventType = "auth.logout.success"
	ActivityEventLogoutFailure      ActivityEventType = "auth.logout.failure"
	ActivityEventRegisterSuccess    ActivityEventType = "auth.register.success"
	ActivityEventRegisterFailure    ActivityEventType = "auth.register.failure"
	ActivityEventPasswordResetSent  ActivityEventType = "auth.password.reset_requested"
	ActivityEventPasswordUpdated    ActivityEventType = "auth.password.updated"
	ActivityEventTokenSynced        ActivityEventType = "auth.token.synced"
)

// ActivityEvent captures audit-friendly information about an action.
// FromState/ToState record the lifecycle states around the action; they
// are equal when the action did not change who is logged in.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	FromState  BridgeState
	ToState    BridgeState
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
// Sinks run best-effort: errors are logged, never propagated.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
