// Package context carries request scoped observability values.
package context

import "context"

type requestIDKey struct{}
type actorKey struct{}
type clientKey struct{}

type actor struct {
	ID    string
	Roles string
}

type client struct {
	IPAddress string
	UserAgent string
}

// WithRequestID stores the request id in ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request id, or "" when unset.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithActor stores the authenticated actor id and its comma separated roles.
func WithActor(ctx context.Context, actorID, roles string) context.Context {
	if actorID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor{ID: actorID, Roles: roles})
}

// ActorFromContext returns the actor id and roles, or empty strings.
func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, ok := ctx.Value(actorKey{}).(actor)
	if !ok {
		return "", ""
	}
	return value.ID, value.Roles
}

// WithClient stores the caller address and user agent.
func WithClient(ctx context.Context, ipAddress, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey{}, client{IPAddress: ipAddress, UserAgent: userAgent})
}

// ClientFromContext returns the caller address and user agent.
func ClientFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, ok := ctx.Value(clientKey{}).(client)
	if !ok {
		return "", ""
	}
	return value.IPAddress, value.UserAgent
}
