// Package context carries correlation identifiers used by logs and traces.
package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type configIDKey struct{}
type executionIDKey struct{}
type actorKey struct{}

type actor struct {
	typ string
	id  string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey{})
}

// WithConfigID scopes the context to a billing configuration.
func WithConfigID(ctx context.Context, configID string) context.Context {
	configID = strings.TrimSpace(configID)
	if configID == "" {
		return ctx
	}
	return context.WithValue(ctx, configIDKey{}, configID)
}

func ConfigIDFromContext(ctx context.Context) string {
	return stringValue(ctx, configIDKey{})
}

func WithExecutionID(ctx context.Context, executionID string) context.Context {
	executionID = strings.TrimSpace(executionID)
	if executionID == "" {
		return ctx
	}
	return context.WithValue(ctx, executionIDKey{}, executionID)
}

func ExecutionIDFromContext(ctx context.Context) string {
	return stringValue(ctx, executionIDKey{})
}

// WithActor records who initiated the work, e.g. ("system", "scheduler").
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{
		typ: strings.TrimSpace(actorType),
		id:  strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	if a, ok := ctx.Value(actorKey{}).(actor); ok {
		return a.typ, a.id
	}
	return "", ""
}

func stringValue(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
