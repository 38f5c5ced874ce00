// Package session provides request-scoped caller identity. The engine
// does not authenticate anyone; the host application resolves the user
// and attaches a Session to the context. Locks, version history
// actors and document-ignore markers are all scoped by it.
package session

import (
	"context"
)

// Session identifies the caller for the duration of one logical
// connection. SessionID distinguishes two windows of the same user, so
// their locks and ignore markers never interfere.
type Session struct {
	UserID    string
	SessionID string
}

type sessionKey struct{}

// WithSession adds Session to context.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the Session from context, or a zero Session.
func FromContext(ctx context.Context) Session {
	if s, ok := ctx.Value(sessionKey{}).(Session); ok {
		return s
	}
	return Session{}
}

// UserID returns the user from context or empty string.
func UserID(ctx context.Context) string {
	return FromContext(ctx).UserID
}

// SessionID returns the session from context or empty string.
func SessionID(ctx context.Context) string {
	return FromContext(ctx).SessionID
}
