package requestctx

import (
	"context"
)

type contextKey string

const fiberLocalsKey = "requestctx"

// Key is the typed context key used for storing the Subject.
var Key contextKey = "insights-dashboard/subject"

type Method string

const (
	MethodAPIKey  Method = "api_key"
	MethodSession Method = "session"
)

// Subject is the authenticated caller of a request.
type Subject struct {
	ID     string
	Method Method
	// SessionID is the session jti; empty for API key callers.
	SessionID string
}

// WithSubject embeds the subject into the parent context.
func WithSubject(parent context.Context, s Subject) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, Key, s)
}

// FromContext retrieves the subject if present.
func FromContext(ctx context.Context) (Subject, bool) {
	if ctx == nil {
		return Subject{}, false
	}
	s, ok := ctx.Value(Key).(Subject)
	return s, ok
}

// FiberLocalsKey returns the key used in fiber.Locals for subject storage.
func FiberLocalsKey() string {
	return fiberLocalsKey
}
