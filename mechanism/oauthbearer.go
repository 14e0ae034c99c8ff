package mechanism

import (
	"context"
	"log/slog"

	"github.com/saslkit/sasl-oidc-go/auth"
	"github.com/saslkit/sasl-oidc-go/internal/logctx"
	"github.com/saslkit/sasl-oidc-go/internal/wire"
)

// bearerSession is the standardized exchange. A rejected token does not fail
// the exchange immediately: the server answers with a JSON error document
// and the client acknowledges it with a dummy response before the attempt is
// reported failed. The acknowledgment never reopens validation.
type bearerSession struct {
	srv      *Server
	id       string
	state    sessionState
	identity string      // client-asserted authorization identity
	reason   auth.Reason // rejection awaiting acknowledgment
}

func (s *bearerSession) ID() string           { return s.id }
func (s *bearerSession) Mechanism() Mechanism { return OAuthBearer() }

func (s *bearerSession) Step(ctx context.Context, in []byte) (*StepResult, error) {
	ctx = logctx.WithAttemptData(ctx, &logctx.AttemptData{
		SessionID: s.id,
		Mechanism: NameOAuthBearer,
		State:     s.state.String(),
	})

	switch s.state {
	case stateStart:
		return s.stepStart(ctx, in)
	case stateAwaitingErrorAck:
		return s.stepErrorAck(ctx, in)
	default:
		return nil, ErrSessionDone
	}
}

func (s *bearerSession) stepStart(ctx context.Context, in []byte) (*StepResult, error) {
	cf, err := wire.ParseOAuthBearer(in)
	if err != nil {
		s.state = stateDone
		s.srv.log.ErrorContext(ctx, "failed to parse client initial response",
			slog.String("error", err.Error()))
		return nil, err
	}
	defer wire.Zero(cf.Token)
	s.identity = cf.Identity

	dec := s.srv.authenticate(ctx, cf.Token)
	if dec.Accepted() {
		s.state = stateDone
		s.srv.log.InfoContext(ctx, "authentication succeeded",
			slog.String("identity", dec.Identity()))
		return &StepResult{Outcome: OutcomeSuccess, Identity: dec.Identity()}, nil
	}

	// Hold the rejection and challenge the client; the exchange fails on the
	// next message.
	s.reason = dec.Reason()
	s.state = stateAwaitingErrorAck
	s.srv.log.WarnContext(ctx, "authentication failed, sending error challenge",
		slog.String("reason", string(s.reason)))

	challenge := wire.ErrorChallenge{
		Status: challengeStatus(s.reason),
		Scope:  s.srv.cfg.Scope,
	}
	if len(s.srv.cfg.DiscoveryEndpoints) > 0 {
		challenge.OpenIDConfiguration = s.srv.cfg.DiscoveryEndpoints[0]
	}
	return &StepResult{Outcome: OutcomeContinue, Challenge: challenge.Encode()}, nil
}

// stepErrorAck consumes the client's dummy response. Whatever the client
// sends, the attempt concludes with the rejection recorded at the start
// step; a second token is never examined within the same session.
func (s *bearerSession) stepErrorAck(ctx context.Context, _ []byte) (*StepResult, error) {
	s.state = stateDone
	s.srv.log.DebugContext(ctx, "error challenge acknowledged",
		slog.String("reason", string(s.reason)))
	return &StepResult{Outcome: OutcomeFailure, Reason: s.reason}, nil
}

func (s *bearerSession) Close() error {
	s.state = stateDone
	return nil
}

// challengeStatus maps a rejection reason onto the fixed status vocabulary
// of the error document.
func challengeStatus(r auth.Reason) string {
	switch r {
	case auth.ReasonInsufficientScope:
		return wire.StatusInsufficientScope
	case auth.ReasonProviderUnavailable:
		return wire.StatusInvalidRequest
	default:
		return wire.StatusInvalidToken
	}
}
