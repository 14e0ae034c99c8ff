// Package oidcdisc implements the discovery/crypto collaborator for the
// bearer-token mechanisms. For each configured discovery endpoint it fetches
// provider metadata (via OIDC discovery, with optional caching) and keeps an
// auto-refreshing JWKS, then answers signature-verification queries for
// incoming tokens.
//
// Providers are initialized lazily: a fetch failure surfaces as a
// provider_unavailable rejection for the attempt that needed it, and the
// next attempt retries. Claim semantics (issuer, audience, expiry, identity)
// stay with the validator; this package only reports what it could verify.
package oidcdisc

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"github.com/saslkit/sasl-oidc-go/config"
	"github.com/saslkit/sasl-oidc-go/internal/jwtauth"
	"github.com/saslkit/sasl-oidc-go/metacache"
)

// document is the slice of discovery metadata this package needs. It doubles
// as the cache representation.
type document struct {
	Issuer     string   `json:"issuer"`
	JWKSURI    string   `json:"jwks_uri"`
	Algorithms []string `json:"id_token_signing_alg_values_supported"`
}

type provider struct {
	issuer   string
	endpoint string
	algs     []string
	kf       keyfunc.Keyfunc
}

type endpointState struct {
	endpoint string
	mu       sync.Mutex
	provider *provider // nil until initialized
}

// ProviderSet resolves tokens against every configured provider. It is safe
// for concurrent use; one instance serves the whole plugin lifetime.
type ProviderSet struct {
	cfg        *config.Config
	log        *slog.Logger
	cache      metacache.Cache
	httpClient *http.Client
	lifetime   context.Context

	mu        sync.RWMutex
	endpoints []*endpointState
	byIssuer  map[string]*provider
}

var _ jwtauth.Verifier = (*ProviderSet)(nil)

// Option customizes a ProviderSet.
type Option func(*ProviderSet)

// WithCache supplies a discovery-document cache. Without one, metadata is
// refetched on every plugin initialization.
func WithCache(c metacache.Cache) Option {
	return func(ps *ProviderSet) { ps.cache = c }
}

// WithHTTPClient overrides the HTTP client used for discovery fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(ps *ProviderSet) { ps.httpClient = c }
}

// WithLogger overrides the logger.
func WithLogger(log *slog.Logger) Option {
	return func(ps *ProviderSet) { ps.log = log }
}

// New builds a ProviderSet for the resolved configuration. ctx bounds the
// lifetime of background JWKS refreshes; cancel it when the plugin shuts
// down. No network traffic happens until the first verification needs it.
func New(ctx context.Context, cfg *config.Config, opts ...Option) *ProviderSet {
	ps := &ProviderSet{
		cfg:      cfg,
		log:      slog.Default(),
		lifetime: ctx,
		byIssuer: make(map[string]*provider),
	}
	for _, opt := range opts {
		opt(ps)
	}
	if ps.httpClient == nil {
		transport := http.DefaultTransport
		if !cfg.SSLVerify {
			transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
		}
		ps.httpClient = &http.Client{Timeout: cfg.Timeout(), Transport: transport}
	}
	for _, ep := range cfg.DiscoveryEndpoints {
		ps.endpoints = append(ps.endpoints, &endpointState{endpoint: ep})
	}
	return ps
}

// Verify implements jwtauth.Verifier. It never fails hard: every problem is
// reported through the Verification so the validator can translate it into
// a deterministic rejection.
func (ps *ProviderSet) Verify(ctx context.Context, rawToken string) jwtauth.Verification {
	unverified := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, unverified); err != nil {
		// Structurally broken tokens are the validator's to reject.
		return jwtauth.Verification{}
	}

	if err := ps.ensureProviders(ctx); err != nil {
		return jwtauth.Verification{Err: err}
	}

	iss, _ := unverified.GetIssuer()
	ps.mu.RLock()
	p := ps.byIssuer[iss]
	known := make([]string, 0, len(ps.byIssuer))
	for issuer := range ps.byIssuer {
		known = append(known, issuer)
	}
	ps.mu.RUnlock()

	ver := jwtauth.Verification{
		Claims:       map[string]any(unverified),
		KnownIssuers: known,
	}
	if p == nil {
		ps.log.DebugContext(ctx, "token issuer matches no configured provider",
			slog.String("issuer", iss))
		return ver
	}
	ver.Issuer = p.issuer

	parser := jwt.NewParser(jwt.WithValidMethods(p.algs), jwt.WithoutClaimsValidation())
	parsed, err := parser.Parse(rawToken, p.kf.Keyfunc)
	if err != nil {
		ps.log.DebugContext(ctx, "token signature verification failed",
			slog.String("issuer", iss), slog.String("error", err.Error()))
		return ver
	}
	if claims, ok := parsed.Claims.(jwt.MapClaims); ok {
		ver.Claims = map[string]any(claims)
	}
	ver.SignatureValid = true
	return ver
}

// ensureProviders lazily initializes every endpoint that is not ready yet.
// It succeeds when at least one provider is usable; when none is, the first
// initialization error is returned.
func (ps *ProviderSet) ensureProviders(ctx context.Context) error {
	var firstErr error
	ready := 0
	for _, st := range ps.endpoints {
		if err := ps.initEndpoint(ctx, st); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		ready++
	}
	if ready == 0 {
		if firstErr == nil {
			firstErr = errors.New("oidcdisc: no discovery endpoints configured")
		}
		return firstErr
	}
	return nil
}

func (ps *ProviderSet) initEndpoint(ctx context.Context, st *endpointState) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.provider != nil {
		return nil
	}

	doc, err := ps.fetchDocument(ctx, st.endpoint)
	if err != nil {
		return err
	}
	if doc.JWKSURI == "" {
		return fmt.Errorf("oidcdisc: discovery document at %s has no jwks_uri", st.endpoint)
	}
	algs := doc.Algorithms
	if len(algs) == 0 {
		algs = []string{"RS256"}
	}

	// The keyfunc refreshes keys in the background for the plugin lifetime,
	// not just this attempt.
	kf, err := keyfunc.NewDefaultCtx(ps.lifetime, []string{doc.JWKSURI})
	if err != nil {
		return fmt.Errorf("oidcdisc: jwks init for %s: %w", doc.Issuer, err)
	}

	p := &provider{issuer: doc.Issuer, endpoint: st.endpoint, algs: algs, kf: kf}
	st.provider = p
	ps.mu.Lock()
	ps.byIssuer[p.issuer] = p
	ps.mu.Unlock()

	ps.log.Info("oidc provider initialized",
		slog.String("issuer", p.issuer), slog.String("endpoint", st.endpoint))
	return nil
}

// fetchDocument returns the discovery document for an endpoint, consulting
// the cache first. Fresh fetches go through go-oidc so issuer consistency is
// checked for us.
func (ps *ProviderSet) fetchDocument(ctx context.Context, endpoint string) (*document, error) {
	if ps.cache != nil {
		if raw, ok, err := ps.cache.Get(ctx, endpoint); err != nil {
			ps.log.Warn("discovery cache read failed",
				slog.String("endpoint", endpoint), slog.String("error", err.Error()))
		} else if ok {
			var doc document
			if err := json.Unmarshal(raw, &doc); err == nil && doc.Issuer != "" {
				return &doc, nil
			}
		}
	}

	issuer := strings.TrimSuffix(endpoint, config.DiscoveryPathSuffix)
	oidcCtx := oidc.ClientContext(ctx, ps.httpClient)
	op, err := oidc.NewProvider(oidcCtx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidcdisc: discovery for %s: %w", endpoint, err)
	}
	var doc document
	if err := op.Claims(&doc); err != nil {
		return nil, fmt.Errorf("oidcdisc: invalid discovery metadata at %s: %w", endpoint, err)
	}

	if ps.cache != nil {
		raw, err := json.Marshal(&doc)
		if err == nil {
			if err := ps.cache.Set(ctx, endpoint, raw, metacache.DefaultTTL); err != nil {
				ps.log.Warn("discovery cache write failed",
					slog.String("endpoint", endpoint), slog.String("error", err.Error()))
			}
		}
	}
	return &doc, nil
}

// Issuers returns the issuers learned so far, for diagnostics.
func (ps *ProviderSet) Issuers() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]string, 0, len(ps.byIssuer))
	for iss := range ps.byIssuer {
		out = append(out, iss)
	}
	return out
}
