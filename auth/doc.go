// Package auth defines the shared vocabulary for bearer-token authentication
// outcomes used across the library. It focuses on the claim-semantics layer:
// a validated token yields a Decision that either carries the authenticated
// identity or a deterministic rejection Reason.
//
// The surface intentionally stays small: mechanism sessions obtain a Decision
// from the token validator and map it onto their wire protocol (an immediate
// hard failure for XOAUTH2, a structured error challenge for OAUTHBEARER).
// Callers that only need a pass/fail signal can use the sentinel errors:
//
//	dec := validator.Validate(ctx, tok, ver)
//	if err := dec.Err(); errors.Is(err, auth.ErrUnauthorized) {
//		// reject the connection's authentication attempt
//	}
//
// SecurityProps describes what a mechanism advertises to the host framework;
// bearer mechanisms always report a zero security-layer strength.
package auth
