package jwtauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/saslkit/sasl-oidc-go/auth"
	"github.com/saslkit/sasl-oidc-go/config"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// makeToken builds a structurally valid JWT with an opaque signature
// segment. Signature validity is supplied through Verification, so no real
// crypto is needed here.
func makeToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	header, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	enc := base64.RawURLEncoding.EncodeToString
	return enc(header) + "." + enc(payload) + "." + enc([]byte("sig"))
}

func testConfig() *config.Config {
	return &config.Config{
		DiscoveryEndpoints: []string{"https://id.example.com/.well-known/openid-configuration"},
		Issuers:            []string{"https://id.example.com"},
		ClientID:           "c1",
		Audiences:          []string{"c1"},
		UserClaim:          "email",
		VerifySignature:    true,
		TimeoutSeconds:     10,
	}
}

func newValidator(cfg *config.Config) *Validator {
	v := New(cfg)
	v.now = func() time.Time { return testNow }
	return v
}

func goodClaims() map[string]any {
	return map[string]any{
		"iss":   "https://id.example.com",
		"aud":   []any{"c1"},
		"sub":   "user-123",
		"exp":   float64(testNow.Add(time.Hour).Unix()),
		"iat":   float64(testNow.Unix()),
		"email": "u@example.com",
	}
}

func validSig() Verification {
	return Verification{SignatureValid: true}
}

func TestValidate_Accepted(t *testing.T) {
	v := newValidator(testConfig())
	tok := makeToken(t, goodClaims())
	dec := v.Validate(context.Background(), tok, validSig())
	if !dec.Accepted() {
		t.Fatalf("rejected: %s", dec.Reason())
	}
	if dec.Identity() != "u@example.com" {
		t.Errorf("identity = %q", dec.Identity())
	}
}

func TestValidate_IdentityCasePreserved(t *testing.T) {
	v := newValidator(testConfig())
	claims := goodClaims()
	claims["email"] = "MixedCase@Example.COM"
	dec := v.Validate(context.Background(), makeToken(t, claims), validSig())
	if dec.Identity() != "MixedCase@Example.COM" {
		t.Errorf("identity = %q, want case preserved", dec.Identity())
	}
}

func TestValidate_Malformed(t *testing.T) {
	v := newValidator(testConfig())
	for name, tok := range map[string]string{
		"two segments":    "aaaa.bbbb",
		"four segments":   "a.b.c.d",
		"bad base64":      "!!.##.sig",
		"payload not json": base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`)) + "." +
			base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".sig",
		"empty": "",
	} {
		dec := v.Validate(context.Background(), tok, validSig())
		if dec.Accepted() || dec.Reason() != auth.ReasonMalformed {
			t.Errorf("%s: reason = %v, want malformed_token", name, dec.Reason())
		}
	}
}

func TestValidate_BadSignature(t *testing.T) {
	v := newValidator(testConfig())
	tok := makeToken(t, goodClaims())
	dec := v.Validate(context.Background(), tok, Verification{SignatureValid: false})
	if dec.Reason() != auth.ReasonBadSignature {
		t.Fatalf("reason = %v, want bad_signature", dec.Reason())
	}
}

func TestValidate_SignatureSkippedWhenDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.VerifySignature = false
	v := newValidator(cfg)
	tok := makeToken(t, goodClaims())
	dec := v.Validate(context.Background(), tok, Verification{SignatureValid: false})
	if !dec.Accepted() {
		t.Fatalf("rejected: %s", dec.Reason())
	}
}

func TestValidate_ProviderUnavailable(t *testing.T) {
	v := newValidator(testConfig())
	tok := makeToken(t, goodClaims())
	dec := v.Validate(context.Background(), tok, Verification{Err: context.DeadlineExceeded})
	if dec.Reason() != auth.ReasonProviderUnavailable {
		t.Fatalf("reason = %v, want provider_unavailable", dec.Reason())
	}
}

func TestValidate_IssuerMismatch(t *testing.T) {
	v := newValidator(testConfig())
	claims := goodClaims()
	claims["iss"] = "https://evil.example.com"
	dec := v.Validate(context.Background(), makeToken(t, claims), validSig())
	if dec.Reason() != auth.ReasonIssuerMismatch {
		t.Fatalf("reason = %v, want issuer_mismatch", dec.Reason())
	}
}

func TestValidate_IssuerDelegatedToDiscovery(t *testing.T) {
	// Only discovery endpoints configured directly: matching falls back to
	// the issuers the collaborator learned.
	cfg := testConfig()
	cfg.Issuers = nil
	v := newValidator(cfg)

	ver := validSig()
	ver.KnownIssuers = []string{"https://id.example.com"}
	dec := v.Validate(context.Background(), makeToken(t, goodClaims()), ver)
	if !dec.Accepted() {
		t.Fatalf("rejected: %s", dec.Reason())
	}

	claims := goodClaims()
	claims["iss"] = "https://stranger.example.com"
	dec = v.Validate(context.Background(), makeToken(t, claims), ver)
	if dec.Reason() != auth.ReasonIssuerMismatch {
		t.Fatalf("reason = %v, want issuer_mismatch", dec.Reason())
	}
}

func TestValidate_AudienceMismatch(t *testing.T) {
	v := newValidator(testConfig())
	claims := goodClaims()
	claims["aud"] = []any{"other"}
	dec := v.Validate(context.Background(), makeToken(t, claims), validSig())
	if dec.Reason() != auth.ReasonAudienceMismatch {
		t.Fatalf("reason = %v, want audience_mismatch", dec.Reason())
	}
}

func TestValidate_AudienceArrayOrderIrrelevant(t *testing.T) {
	v := newValidator(testConfig())
	for _, aud := range [][]any{
		{"c1", "x", "y"},
		{"x", "c1", "y"},
		{"x", "y", "c1"},
	} {
		claims := goodClaims()
		claims["aud"] = aud
		dec := v.Validate(context.Background(), makeToken(t, claims), validSig())
		if !dec.Accepted() {
			t.Errorf("aud %v rejected: %s", aud, dec.Reason())
		}
	}
}

func TestValidate_AudienceStringForm(t *testing.T) {
	v := newValidator(testConfig())
	claims := goodClaims()
	claims["aud"] = "c1"
	dec := v.Validate(context.Background(), makeToken(t, claims), validSig())
	if !dec.Accepted() {
		t.Fatalf("rejected: %s", dec.Reason())
	}
}

func TestValidate_EmptyAudienceSetDisablesCheck(t *testing.T) {
	cfg := testConfig()
	cfg.Audiences = nil
	v := newValidator(cfg)
	claims := goodClaims()
	claims["aud"] = "anything"
	dec := v.Validate(context.Background(), makeToken(t, claims), validSig())
	if !dec.Accepted() {
		t.Fatalf("rejected: %s", dec.Reason())
	}
}

func TestValidate_Expired(t *testing.T) {
	v := newValidator(testConfig())
	claims := goodClaims()
	claims["exp"] = float64(testNow.Add(-time.Minute).Unix())
	dec := v.Validate(context.Background(), makeToken(t, claims), validSig())
	if dec.Reason() != auth.ReasonExpired {
		t.Fatalf("reason = %v, want expired", dec.Reason())
	}

	// exp must be strictly in the future.
	claims["exp"] = float64(testNow.Unix())
	dec = v.Validate(context.Background(), makeToken(t, claims), validSig())
	if dec.Reason() != auth.ReasonExpired {
		t.Fatalf("exp == now: reason = %v, want expired", dec.Reason())
	}
}

func TestValidate_ExpiredEvenWithoutSignatureCheck(t *testing.T) {
	cfg := testConfig()
	cfg.VerifySignature = false
	v := newValidator(cfg)
	claims := goodClaims()
	claims["exp"] = float64(testNow.Add(-time.Hour).Unix())
	dec := v.Validate(context.Background(), makeToken(t, claims), Verification{})
	if dec.Reason() != auth.ReasonExpired {
		t.Fatalf("reason = %v, want expired", dec.Reason())
	}
}

func TestValidate_MissingExpiry(t *testing.T) {
	v := newValidator(testConfig())
	claims := goodClaims()
	delete(claims, "exp")
	dec := v.Validate(context.Background(), makeToken(t, claims), validSig())
	if dec.Reason() != auth.ReasonMissingExpiry {
		t.Fatalf("reason = %v, want missing_expiry", dec.Reason())
	}
}

func TestValidate_NotYetValid(t *testing.T) {
	v := newValidator(testConfig())
	claims := goodClaims()
	claims["nbf"] = float64(testNow.Add(time.Minute).Unix())
	dec := v.Validate(context.Background(), makeToken(t, claims), validSig())
	if dec.Reason() != auth.ReasonNotYetValid {
		t.Fatalf("reason = %v, want not_yet_valid", dec.Reason())
	}

	// nbf equal to now is acceptable.
	claims["nbf"] = float64(testNow.Unix())
	dec = v.Validate(context.Background(), makeToken(t, claims), validSig())
	if !dec.Accepted() {
		t.Fatalf("nbf == now rejected: %s", dec.Reason())
	}
}

func TestValidate_MissingIdentityClaim(t *testing.T) {
	v := newValidator(testConfig())

	claims := goodClaims()
	delete(claims, "email")
	dec := v.Validate(context.Background(), makeToken(t, claims), validSig())
	if dec.Reason() != auth.ReasonMissingIdentityClaim {
		t.Fatalf("absent claim: reason = %v", dec.Reason())
	}

	claims = goodClaims()
	claims["email"] = ""
	dec = v.Validate(context.Background(), makeToken(t, claims), validSig())
	if dec.Reason() != auth.ReasonMissingIdentityClaim {
		t.Fatalf("empty claim: reason = %v", dec.Reason())
	}

	claims = goodClaims()
	claims["email"] = 42
	dec = v.Validate(context.Background(), makeToken(t, claims), validSig())
	if dec.Reason() != auth.ReasonMissingIdentityClaim {
		t.Fatalf("non-string claim: reason = %v", dec.Reason())
	}
}

func TestValidate_CustomUserClaim(t *testing.T) {
	cfg := testConfig()
	cfg.UserClaim = "preferred_username"
	v := newValidator(cfg)
	claims := goodClaims()
	claims["preferred_username"] = "alice"
	dec := v.Validate(context.Background(), makeToken(t, claims), validSig())
	if dec.Identity() != "alice" {
		t.Fatalf("identity = %q, want alice", dec.Identity())
	}
}

// A token failing several checks must always report the first failure in
// check order, so rejection reasons stay deterministic.
func TestValidate_FirstFailureWins(t *testing.T) {
	v := newValidator(testConfig())

	// Bad signature beats expiry.
	claims := goodClaims()
	claims["exp"] = float64(testNow.Add(-time.Hour).Unix())
	dec := v.Validate(context.Background(), makeToken(t, claims), Verification{SignatureValid: false})
	if dec.Reason() != auth.ReasonBadSignature {
		t.Errorf("sig+exp: reason = %v, want bad_signature", dec.Reason())
	}

	// Audience beats expiry.
	claims = goodClaims()
	claims["aud"] = "other"
	claims["exp"] = float64(testNow.Add(-time.Hour).Unix())
	dec = v.Validate(context.Background(), makeToken(t, claims), validSig())
	if dec.Reason() != auth.ReasonAudienceMismatch {
		t.Errorf("aud+exp: reason = %v, want audience_mismatch", dec.Reason())
	}

	// Issuer beats audience.
	claims = goodClaims()
	claims["iss"] = "https://evil.example.com"
	claims["aud"] = "other"
	dec = v.Validate(context.Background(), makeToken(t, claims), validSig())
	if dec.Reason() != auth.ReasonIssuerMismatch {
		t.Errorf("iss+aud: reason = %v, want issuer_mismatch", dec.Reason())
	}
}

func TestValidate_PrefersCollaboratorClaims(t *testing.T) {
	v := newValidator(testConfig())
	// The embedded payload disagrees with what the collaborator decoded; the
	// verified claim set wins.
	embedded := goodClaims()
	embedded["email"] = "embedded@example.com"
	ver := validSig()
	ver.Claims = goodClaims()
	dec := v.Validate(context.Background(), makeToken(t, embedded), ver)
	if dec.Identity() != "u@example.com" {
		t.Fatalf("identity = %q, want collaborator claim", dec.Identity())
	}
}

func TestValidate_RejectionErrorUnwraps(t *testing.T) {
	v := newValidator(testConfig())
	claims := goodClaims()
	claims["aud"] = "other"
	dec := v.Validate(context.Background(), makeToken(t, claims), validSig())
	err := dec.Err()
	var rej *auth.RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("err %T does not expose RejectionError", err)
	}
	if !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatal("rejection does not unwrap to ErrUnauthorized")
	}
}
