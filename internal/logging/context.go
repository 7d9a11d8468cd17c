package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent names the subsystem emitting a line (mailbox, controlplane, ...).
	FieldComponent = "component"
	// FieldRole names the worker role of the emitting process.
	FieldRole = "role"
	// FieldPID is the operating system process ID a line refers to.
	FieldPID = "pid"
	// FieldSessionID ties every line of one supervisor run together across processes.
	FieldSessionID = "session_id"
	// FieldMailbox is the mailbox name.
	FieldMailbox = "mailbox"
	// FieldState is a supervisor lifecycle state.
	FieldState = "state"
	// FieldRemote is the peer address of a control-plane connection.
	FieldRemote = "remote"
	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint is the suggested next step for an operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	FieldError  = "error"
)

type sessionKey struct{}

// WithSessionID stores the run's session ID on the context.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionIDFromContext returns the session ID stored by WithSessionID.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(sessionKey{}).(string)
	return id, ok && id != ""
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if id, ok := SessionIDFromContext(ctx); ok {
		return logger.With(String(FieldSessionID, id))
	}
	return logger
}
