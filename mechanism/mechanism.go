// Package mechanism implements the server-side SASL state machines for the
// two bearer-token wire protocols: the legacy single-step XOAUTH2 exchange
// and the standardized OAUTHBEARER exchange with its error-continuation
// round trip.
//
// A Server is built once from a resolved configuration and a token verifier
// and shared across connections. Each authentication attempt gets a fresh
// Session from NewSession; sessions are single-use and terminal once their
// exchange concludes.
package mechanism

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/saslkit/sasl-oidc-go/auth"
	"github.com/saslkit/sasl-oidc-go/config"
	"github.com/saslkit/sasl-oidc-go/internal/jwtauth"
)

// Mechanism names as advertised to the host framework.
const (
	NameXOAUTH2     = "XOAUTH2"
	NameOAuthBearer = "OAUTHBEARER"
)

// Mechanism is the immutable metadata a variant advertises.
type Mechanism struct {
	Name  string
	Props auth.SecurityProps
}

// XOAUTH2 is the legacy single-step variant.
func XOAUTH2() Mechanism {
	return Mechanism{Name: NameXOAUTH2, Props: auth.BearerProps()}
}

// OAuthBearer is the standardized multi-step variant.
func OAuthBearer() Mechanism {
	return Mechanism{Name: NameOAuthBearer, Props: auth.BearerProps()}
}

// ErrSessionDone is returned by Step once a session has reached its terminal
// state. The session must be discarded; a retry needs a fresh one.
var ErrSessionDone = errors.New("mechanism: session is terminal")

// ErrUnknownMechanism is returned by NewSession for an unadvertised name.
var ErrUnknownMechanism = errors.New("mechanism: unknown mechanism")

// Outcome classifies a step result.
type Outcome int

const (
	// OutcomeContinue: the server emitted a challenge and expects one more
	// client message.
	OutcomeContinue Outcome = iota
	// OutcomeSuccess: authentication succeeded; Identity is set.
	OutcomeSuccess
	// OutcomeFailure: authentication failed; Reason is set.
	OutcomeFailure
)

// StepResult is what a session hands back to the framework after each step.
type StepResult struct {
	Outcome   Outcome
	Challenge []byte      // set when Outcome is OutcomeContinue
	Identity  string      // set when Outcome is OutcomeSuccess
	Reason    auth.Reason // set when Outcome is OutcomeFailure
}

// Session drives one authentication attempt on one connection. Sessions are
// owned by that attempt and must never be shared or reused.
type Session interface {
	ID() string
	Mechanism() Mechanism
	// Step consumes one client message. A non-nil error is a fatal protocol
	// or parse error for this attempt; authentication rejections come back
	// as an OutcomeFailure result instead.
	Step(ctx context.Context, in []byte) (*StepResult, error)
	// Close discards the session, wiping any secret material it still holds.
	// Safe to call at any point, including after a terminal Step.
	Close() error
}

type sessionState int

const (
	stateStart sessionState = iota
	stateAwaitingErrorAck
	stateDone
)

func (s sessionState) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateAwaitingErrorAck:
		return "awaiting_error_ack"
	default:
		return "done"
	}
}

// Server holds the per-process pieces shared by all sessions: the resolved
// configuration, the claim validator, and the discovery collaborator.
type Server struct {
	cfg       *config.Config
	validator *jwtauth.Validator
	verifier  jwtauth.Verifier
	log       *slog.Logger
}

// NewServer builds a Server. The configuration must already be resolved; the
// verifier is typically an oidcdisc.ProviderSet.
func NewServer(cfg *config.Config, verifier jwtauth.Verifier, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		validator: jwtauth.New(cfg),
		verifier:  verifier,
		log:       log,
	}
}

// Mechanisms lists the variants this server advertises.
func (s *Server) Mechanisms() []Mechanism {
	return []Mechanism{XOAUTH2(), OAuthBearer()}
}

// NewSession creates a fresh session for the named mechanism. Every attempt,
// including retries on the same connection, needs its own session.
func (s *Server) NewSession(name string) (Session, error) {
	switch name {
	case NameXOAUTH2:
		return &xoauth2Session{srv: s, id: uuid.NewString()}, nil
	case NameOAuthBearer:
		return &bearerSession{srv: s, id: uuid.NewString()}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMechanism, name)
	}
}

// authenticate runs the shared parse-free part of an attempt: collaborator
// verification followed by the ordered claim checks. The caller owns the
// token buffer and wipes it.
func (s *Server) authenticate(ctx context.Context, token []byte) auth.Decision {
	raw := string(token)
	ver := s.verifier.Verify(ctx, raw)
	return s.validator.Validate(ctx, raw, ver)
}
