// Package mechanismtest provides canned verifiers for exercising mechanism
// sessions without a live OIDC provider.
package mechanismtest

import (
	"context"

	"github.com/saslkit/sasl-oidc-go/internal/jwtauth"
)

// StaticVerifier returns the same Verification for every token and counts
// how often it was consulted. Useful for asserting that the error-
// continuation step never revalidates.
type StaticVerifier struct {
	Result jwtauth.Verification
	Calls  int
}

func (v *StaticVerifier) Verify(_ context.Context, _ string) jwtauth.Verification {
	v.Calls++
	return v.Result
}

// Valid returns a verifier that reports every signature as valid and decodes
// nothing, leaving claim extraction to the validator's structural decode.
func Valid() *StaticVerifier {
	return &StaticVerifier{Result: jwtauth.Verification{SignatureValid: true}}
}
