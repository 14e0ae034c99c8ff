package auth

import (
	"errors"
	"fmt"
)

// ErrUnauthorized indicates authentication failed or no valid credentials were
// supplied. Every rejection produced by token validation unwraps to this.
var ErrUnauthorized = errors.New("unauthorized")

// ErrInsufficientScope indicates the caller authenticated but lacks required scope.
var ErrInsufficientScope = errors.New("insufficient scope")

// Reason identifies why a bearer token was rejected. Validation runs its
// checks in a fixed order and reports the first failure, so a given bad token
// always produces the same reason.
type Reason string

const (
	// ReasonMalformed: the token could not be split into three dot-separated
	// segments, or the header/payload segments are not base64url-encoded JSON.
	ReasonMalformed Reason = "malformed_token"
	// ReasonBadSignature: signature verification is enabled and the
	// discovery/crypto collaborator reported the signature invalid.
	ReasonBadSignature Reason = "bad_signature"
	// ReasonIssuerMismatch: the token's iss claim matched no accepted issuer.
	ReasonIssuerMismatch Reason = "issuer_mismatch"
	// ReasonAudienceMismatch: an audience restriction is configured and the
	// token's aud claim did not intersect it.
	ReasonAudienceMismatch Reason = "audience_mismatch"
	// ReasonExpired: the token's exp claim is not in the future.
	ReasonExpired Reason = "expired"
	// ReasonNotYetValid: the token's nbf claim is in the future.
	ReasonNotYetValid Reason = "not_yet_valid"
	// ReasonMissingExpiry: the token carries no exp claim at all.
	ReasonMissingExpiry Reason = "missing_expiry"
	// ReasonMissingIdentityClaim: the configured user claim is absent or not a
	// non-empty string.
	ReasonMissingIdentityClaim Reason = "missing_identity_claim"
	// ReasonInsufficientScope: the token is valid but lacks a required scope.
	ReasonInsufficientScope Reason = "insufficient_scope"
	// ReasonProviderUnavailable: the discovery/crypto collaborator failed
	// (network error, malformed JWKS) so the token could not be verified.
	ReasonProviderUnavailable Reason = "provider_unavailable"
)

// RejectionError carries a Reason through an error chain. It unwraps to
// ErrUnauthorized (or ErrInsufficientScope for scope rejections) so callers
// can branch with errors.Is without inspecting reasons.
type RejectionError struct {
	Reason Reason
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("auth: rejected (%s)", e.Reason)
	}
	return fmt.Sprintf("auth: rejected (%s): %s", e.Reason, e.Detail)
}

func (e *RejectionError) Unwrap() error {
	if e.Reason == ReasonInsufficientScope {
		return ErrInsufficientScope
	}
	return ErrUnauthorized
}

// Decision is the outcome of a single token validation. It is created once
// per attempt and consumed immediately by the mechanism session that
// requested it; it must not be retained past the attempt.
type Decision struct {
	identity  string
	reason    Reason
	detail    string
	accepted  bool
	challenge []byte
}

// Accept builds a successful decision carrying the authenticated identity.
func Accept(identity string) Decision {
	return Decision{accepted: true, identity: identity}
}

// Reject builds a failed decision with a deterministic reason.
func Reject(reason Reason, detail string) Decision {
	return Decision{reason: reason, detail: detail}
}

// Continue builds a decision asking the peer for more data before the
// attempt can conclude.
func Continue(challenge []byte) Decision {
	return Decision{challenge: challenge}
}

// Accepted reports whether the token was accepted.
func (d Decision) Accepted() bool { return d.accepted }

// Identity returns the extracted identity claim value. Empty unless Accepted.
func (d Decision) Identity() string { return d.identity }

// Reason returns the rejection reason. Empty when Accepted.
func (d Decision) Reason() Reason { return d.reason }

// Challenge returns the continuation payload, if any.
func (d Decision) Challenge() []byte { return d.challenge }

// Err materializes a rejected decision as an error, or nil when accepted.
func (d Decision) Err() error {
	if d.accepted {
		return nil
	}
	return &RejectionError{Reason: d.reason, Detail: d.detail}
}
