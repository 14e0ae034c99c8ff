package mechanism

import (
	"context"
	"log/slog"

	"github.com/saslkit/sasl-oidc-go/internal/logctx"
	"github.com/saslkit/sasl-oidc-go/internal/wire"
)

// xoauth2Session is the legacy single-round-trip exchange: the client sends
// one blob, the server answers success or a hard failure. There is no
// error-continuation step and no retry within the attempt.
type xoauth2Session struct {
	srv      *Server
	id       string
	state    sessionState
	identity string // client-asserted, for diagnostics only
}

func (s *xoauth2Session) ID() string           { return s.id }
func (s *xoauth2Session) Mechanism() Mechanism { return XOAUTH2() }

func (s *xoauth2Session) Step(ctx context.Context, in []byte) (*StepResult, error) {
	if s.state != stateStart {
		return nil, ErrSessionDone
	}
	ctx = logctx.WithAttemptData(ctx, &logctx.AttemptData{
		SessionID: s.id,
		Mechanism: NameXOAUTH2,
		State:     s.state.String(),
	})

	cf, err := wire.ParseXOAUTH2(in)
	if err != nil {
		s.state = stateDone
		s.srv.log.ErrorContext(ctx, "failed to parse client initial response",
			slog.String("error", err.Error()))
		return nil, err
	}
	defer wire.Zero(cf.Token)
	s.identity = cf.Identity

	dec := s.srv.authenticate(ctx, cf.Token)
	s.state = stateDone

	if !dec.Accepted() {
		s.srv.log.WarnContext(ctx, "authentication failed",
			slog.String("reason", string(dec.Reason())))
		return &StepResult{Outcome: OutcomeFailure, Reason: dec.Reason()}, nil
	}

	s.srv.log.InfoContext(ctx, "authentication succeeded",
		slog.String("identity", dec.Identity()))
	return &StepResult{Outcome: OutcomeSuccess, Identity: dec.Identity()}, nil
}

func (s *xoauth2Session) Close() error {
	s.state = stateDone
	return nil
}
