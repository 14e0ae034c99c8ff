// Package jwtauth decides whether a bearer token is acceptable under a
// resolved configuration. It owns the claim-semantics layer only: signature
// verification and JWKS retrieval happen at the discovery collaborator
// boundary, whose outcome is handed in as a Verification.
//
// Checks run in a fixed order and the first failure determines the rejection
// reason, so a given bad token always rejects the same way:
//
//	structure -> signature -> issuer -> audience -> exp/nbf -> identity claim
package jwtauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/saslkit/sasl-oidc-go/auth"
	"github.com/saslkit/sasl-oidc-go/config"
)

// Verification is the discovery/crypto collaborator's result for one token.
// The validator treats it as opaque: it does not reimplement HTTP or crypto.
type Verification struct {
	// SignatureValid reports whether the token signature verified against the
	// provider's published keys.
	SignatureValid bool
	// Claims is the decoded payload claim set, when the collaborator decoded
	// one. The validator falls back to its own structural decode otherwise.
	Claims map[string]any
	// Issuer is the issuer of the provider that handled the token, if any.
	Issuer string
	// KnownIssuers lists every issuer learned from discovery metadata. Used
	// for issuer matching when the configuration supplied only discovery
	// endpoints directly.
	KnownIssuers []string
	// Err carries a collaborator failure (network, malformed JWKS). It
	// surfaces as a provider_unavailable rejection for this attempt.
	Err error
}

// Verifier is the collaborator boundary: given a raw token it returns
// signature validity and decoded claims. Implementations may block on
// network calls; they are expected to honor the configured timeout.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) Verification
}

// Validator applies the ordered claim checks for one resolved configuration.
// It is stateless apart from the configuration and safe for concurrent use.
type Validator struct {
	cfg *config.Config
	now func() time.Time
}

// New builds a Validator for cfg.
func New(cfg *config.Config) *Validator {
	return &Validator{cfg: cfg, now: time.Now}
}

// Validate decides accept/reject for rawToken given the collaborator's
// verification result. The returned Decision is owned by the caller and must
// be consumed within the same attempt.
func (v *Validator) Validate(ctx context.Context, rawToken string, ver Verification) auth.Decision {
	claims, ok := decodeClaims(rawToken)
	if !ok {
		return auth.Reject(auth.ReasonMalformed, "token is not a three-segment JWT")
	}
	// Prefer the collaborator's decoded claim set when it produced one.
	if ver.Claims != nil {
		claims = ver.Claims
	}
	defer wipeClaims(claims)

	if v.cfg.VerifySignature {
		if ver.Err != nil {
			return auth.Reject(auth.ReasonProviderUnavailable, ver.Err.Error())
		}
		if !ver.SignatureValid {
			return auth.Reject(auth.ReasonBadSignature, "signature did not verify")
		}
	}

	if dec, rejected := v.checkIssuer(claims, ver); rejected {
		return dec
	}
	if dec, rejected := v.checkAudience(claims); rejected {
		return dec
	}
	if dec, rejected := v.checkTimes(claims); rejected {
		return dec
	}

	identity, ok := claims[v.cfg.UserClaim].(string)
	if !ok || identity == "" {
		return auth.Reject(auth.ReasonMissingIdentityClaim,
			"claim "+v.cfg.UserClaim+" absent or not a non-empty string")
	}
	return auth.Accept(identity)
}

// checkIssuer enforces the accepted issuer set. When the configuration
// carries issuers they are authoritative; when only discovery endpoints were
// configured, matching is delegated to the issuers the collaborator learned
// from discovery metadata. With neither available the token issuer is
// accepted implicitly.
func (v *Validator) checkIssuer(claims map[string]any, ver Verification) (auth.Decision, bool) {
	accepted := v.cfg.Issuers
	if len(accepted) == 0 {
		accepted = ver.KnownIssuers
	}
	if len(accepted) == 0 {
		return auth.Decision{}, false
	}
	iss, _ := claims["iss"].(string)
	for _, want := range accepted {
		if iss == want {
			return auth.Decision{}, false
		}
	}
	return auth.Reject(auth.ReasonIssuerMismatch, "issuer "+iss+" not accepted"), true
}

// checkAudience requires the aud claim (string or array) to intersect the
// configured audience set. An empty configured set disables the check; this
// permissive default is deliberate and documented.
func (v *Validator) checkAudience(claims map[string]any) (auth.Decision, bool) {
	if len(v.cfg.Audiences) == 0 {
		return auth.Decision{}, false
	}
	if audIntersects(claims["aud"], v.cfg.Audiences) {
		return auth.Decision{}, false
	}
	return auth.Reject(auth.ReasonAudienceMismatch, "no configured audience in aud claim"), true
}

func (v *Validator) checkTimes(claims map[string]any) (auth.Decision, bool) {
	now := v.now()
	exp, ok := numericClaim(claims, "exp")
	if !ok {
		return auth.Reject(auth.ReasonMissingExpiry, "exp claim absent"), true
	}
	if !exp.After(now) {
		return auth.Reject(auth.ReasonExpired, "token expired "+exp.UTC().Format(time.RFC3339)), true
	}
	if nbf, ok := numericClaim(claims, "nbf"); ok && nbf.After(now) {
		return auth.Reject(auth.ReasonNotYetValid, "token not valid before "+nbf.UTC().Format(time.RFC3339)), true
	}
	return auth.Decision{}, false
}

// decodeClaims splits the token into its three dot-separated segments and
// decodes header and payload as base64url JSON. It returns the payload claim
// set for use when the collaborator did not decode one.
func decodeClaims(rawToken string) (map[string]any, bool) {
	parts := strings.Split(rawToken, ".")
	if len(parts) != 3 {
		return nil, false
	}
	header, ok := decodeSegment(parts[0])
	if !ok || !json.Valid(header) {
		return nil, false
	}
	payload, ok := decodeSegment(parts[1])
	if !ok {
		return nil, false
	}
	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, false
	}
	return claims, true
}

func decodeSegment(seg string) ([]byte, bool) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(seg, "="))
	if err != nil {
		return nil, false
	}
	return b, true
}

func numericClaim(claims map[string]any, name string) (time.Time, bool) {
	switch v := claims[name].(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(n, 0), true
	case int64:
		return time.Unix(v, 0), true
	default:
		return time.Time{}, false
	}
}

func audIntersects(aud any, want []string) bool {
	contains := func(s string) bool {
		for _, w := range want {
			if s == w {
				return true
			}
		}
		return false
	}
	switch v := aud.(type) {
	case string:
		return contains(v)
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok && contains(s) {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if contains(s) {
				return true
			}
		}
	}
	return false
}

// wipeClaims drops every entry so derived claim values do not linger on the
// map after the attempt concludes.
func wipeClaims(claims map[string]any) {
	for k := range claims {
		delete(claims, k)
	}
}
