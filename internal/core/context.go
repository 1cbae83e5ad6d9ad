package core

import "context"

type contextKey string

const ctxKeyOrigin contextKey = "run_origin"

// Origin records who started a run. It is copied into the run record.
type Origin struct {
	Source    string `json:"source"` // "http" or "cli"
	Client    string `json:"client,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ContextWithOrigin attaches the run origin to ctx.
func ContextWithOrigin(ctx context.Context, o Origin) context.Context {
	return context.WithValue(ctx, ctxKeyOrigin, o)
}

// OriginFromContext returns the origin attached to ctx, or the zero Origin.
func OriginFromContext(ctx context.Context) Origin {
	if o, ok := ctx.Value(ctxKeyOrigin).(Origin); ok {
		return o
	}
	return Origin{}
}
