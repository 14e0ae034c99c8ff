// Package saslplugin is the thin adapter between the host authentication
// framework and the core library. It resolves configuration once, wires the
// discovery collaborator, and exposes both bearer mechanisms through the
// framework's create-session / step / dispose-session contract.
//
// A configuration error aborts initialization entirely: no mechanism is
// registered and New returns the error. Parse and validation failures after
// that point only ever fail the attempt that triggered them.
package saslplugin

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/saslkit/sasl-oidc-go/config"
	"github.com/saslkit/sasl-oidc-go/internal/jwtauth"
	"github.com/saslkit/sasl-oidc-go/internal/logctx"
	"github.com/saslkit/sasl-oidc-go/mechanism"
	"github.com/saslkit/sasl-oidc-go/metacache"
	"github.com/saslkit/sasl-oidc-go/oidcdisc"
)

// Registry owns the process-lifetime state: the immutable configuration, the
// log level it selected, the discovery collaborator, and the mechanism
// server. One Registry serves all connections.
type Registry struct {
	cfg    *config.Config
	srv    *mechanism.Server
	log    *slog.Logger
	level  *slog.LevelVar
	cancel context.CancelFunc
}

// Option customizes a Registry.
type Option func(*options)

type options struct {
	logHandler slog.Handler
	cache      metacache.Cache
	httpClient *http.Client
	verifier   jwtauth.Verifier
}

// WithLogHandler replaces the base slog handler. The registry always wraps
// it with per-attempt context decoration and the configured level.
func WithLogHandler(h slog.Handler) Option {
	return func(o *options) { o.logHandler = h }
}

// WithCache enables discovery-document caching (e.g. metacache/redis).
func WithCache(c metacache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithHTTPClient overrides the HTTP client used for discovery.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithVerifier replaces the discovery collaborator. Primarily for tests.
func WithVerifier(v jwtauth.Verifier) Option {
	return func(o *options) { o.verifier = v }
}

// New resolves configuration from src and builds the registry. The debug
// option only adjusts log verbosity; it never changes validation behavior.
func New(src config.Source, opts ...Option) (*Registry, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	level := new(slog.LevelVar)
	base := o.logHandler
	if base == nil {
		base = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	log := slog.New(logctx.Handler{Handler: base})

	cfg, err := config.Resolve(src, log)
	if err != nil {
		return nil, err
	}
	level.Set(cfg.LogLevel())

	ctx, cancel := context.WithCancel(context.Background())
	verifier := o.verifier
	if verifier == nil {
		discOpts := []oidcdisc.Option{oidcdisc.WithLogger(log)}
		if o.cache != nil {
			discOpts = append(discOpts, oidcdisc.WithCache(o.cache))
		}
		if o.httpClient != nil {
			discOpts = append(discOpts, oidcdisc.WithHTTPClient(o.httpClient))
		}
		verifier = oidcdisc.New(ctx, cfg, discOpts...)
	}

	return &Registry{
		cfg:    cfg,
		srv:    mechanism.NewServer(cfg, verifier, log),
		log:    log,
		level:  level,
		cancel: cancel,
	}, nil
}

// Mechanisms returns the metadata (name and security flags) for every
// mechanism this registry advertises.
func (r *Registry) Mechanisms() []mechanism.Mechanism {
	return r.srv.Mechanisms()
}

// NewSession is the framework's create-session operation. Each attempt on
// each connection gets a fresh session; sessions are never reused.
func (r *Registry) NewSession(mechName string) (mechanism.Session, error) {
	return r.srv.NewSession(mechName)
}

// Config returns a copy of the resolved configuration.
func (r *Registry) Config() *config.Config {
	return r.cfg.Clone()
}

// Close shuts down background JWKS refreshes. Sessions already in flight are
// unaffected beyond losing key refresh.
func (r *Registry) Close() error {
	r.cancel()
	return nil
}
