// Package logctx decorates slog records with per-attempt context so every
// log line emitted during an authentication exchange carries the session and
// mechanism it belongs to.
package logctx

import (
	"context"
	"log/slog"
)

type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if ad, ok := ctx.Value(attemptDataKey{}).(*AttemptData); ok {
		r.AddAttrs(slog.Group("attempt",
			slog.String("session_id", ad.SessionID),
			slog.String("mechanism", ad.Mechanism),
			slog.String("state", ad.State),
		))
	}
	return h.Handler.Handle(ctx, r)
}

type attemptDataKey struct{}

// AttemptData identifies one in-flight authentication attempt.
type AttemptData struct {
	SessionID string
	Mechanism string
	State     string
}

func WithAttemptData(ctx context.Context, data *AttemptData) context.Context {
	return context.WithValue(ctx, attemptDataKey{}, data)
}
