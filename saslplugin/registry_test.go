package saslplugin

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/saslkit/sasl-oidc-go/config"
	"github.com/saslkit/sasl-oidc-go/internal/jwtauth"
	"github.com/saslkit/sasl-oidc-go/mechanism"
	"github.com/saslkit/sasl-oidc-go/mechanism/mechanismtest"
)

func testSource() config.MapSource {
	return config.MapSource{
		config.KeyIssuers:   "https://id.example.com",
		config.KeyClientID:  "c1",
		config.KeyAudiences: "c1",
	}
}

func testToken(t *testing.T) string {
	t.Helper()
	header, _ := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	payload, err := json.Marshal(map[string]any{
		"iss":   "https://id.example.com",
		"aud":   "c1",
		"exp":   float64(time.Now().Add(time.Hour).Unix()),
		"email": "u@example.com",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	enc := base64.RawURLEncoding.EncodeToString
	return enc(header) + "." + enc(payload) + "." + enc([]byte("sig"))
}

func TestNew_ConfigErrorRegistersNothing(t *testing.T) {
	src := config.MapSource{config.KeyIssuers: "https://id.example.com"}
	reg, err := New(src)
	if !errors.Is(err, config.ErrMissingClientID) {
		t.Fatalf("err = %v, want ErrMissingClientID", err)
	}
	if reg != nil {
		t.Fatal("registry returned despite config error")
	}
}

func TestNew_ConflictAbortsInitialization(t *testing.T) {
	src := testSource()
	src[config.KeyIssuer] = "https://other.example.com"
	_, err := New(src)
	var conflict *config.ConflictingOptionError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want ConflictingOptionError", err)
	}
}

func TestRegistry_AdvertisesBothMechanisms(t *testing.T) {
	reg, err := New(testSource(), WithVerifier(mechanismtest.Valid()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer reg.Close()

	names := map[string]bool{}
	for _, m := range reg.Mechanisms() {
		names[m.Name] = true
		if m.Props.MaxSSF != 0 || !m.Props.NoAnonymous {
			t.Errorf("%s props = %+v", m.Name, m.Props)
		}
	}
	if !names[mechanism.NameXOAUTH2] || !names[mechanism.NameOAuthBearer] {
		t.Errorf("mechanisms = %v", names)
	}
}

func TestRegistry_SessionLifecycle(t *testing.T) {
	reg, err := New(testSource(), WithVerifier(mechanismtest.Valid()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer reg.Close()

	sess, err := reg.NewSession(mechanism.NameXOAUTH2)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	blob, err := mechanism.ClientInitialResponse(mechanism.NameXOAUTH2, "u@example.com", testToken(t))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	res, err := sess.Step(context.Background(), blob)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if res.Outcome != mechanism.OutcomeSuccess || res.Identity != "u@example.com" {
		t.Fatalf("res = %+v", res)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRegistry_ConfigCopyIsIndependent(t *testing.T) {
	reg, err := New(testSource(), WithVerifier(&mechanismtest.StaticVerifier{
		Result: jwtauth.Verification{SignatureValid: true},
	}))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer reg.Close()

	cfg := reg.Config()
	cfg.Audiences[0] = "mutated"
	if reg.Config().Audiences[0] != "c1" {
		t.Error("Config() exposes internal state")
	}
}
