// Package config resolves raw SASL-style option strings into the immutable
// configuration shared by the bearer-token mechanisms. Options live under the
// "oauth2" namespace of the host framework's key/value lookup; values are
// always strings and absence yields documented defaults.
//
// Resolution happens once per plugin lifetime. The resulting Config is
// treated as read-only afterward and is safe to share across connections
// without locking.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Option keys, as looked up in the host's "oauth2" configuration namespace.
const (
	KeyDiscoveryURL    = "oauth2_discovery_url"
	KeyDiscoveryURLs   = "oauth2_discovery_urls" // space-separated list
	KeyIssuer          = "oauth2_issuer"
	KeyIssuers         = "oauth2_issuers" // space-separated list
	KeyClientID        = "oauth2_client_id"
	KeyClientSecret    = "oauth2_client_secret"
	KeyAudience        = "oauth2_audience"
	KeyAudiences       = "oauth2_audiences" // space-separated list
	KeyScope           = "oauth2_scope"
	KeyUserClaim       = "oauth2_user_claim"
	KeyVerifySignature = "oauth2_verify_signature"
	KeySSLVerify       = "oauth2_ssl_verify"
	KeyTimeout         = "oauth2_timeout"
	KeyDebug           = "oauth2_debug"
)

// Defaults applied when an option is absent.
const (
	DefaultUserClaim       = "email"
	DefaultScope           = "openid email profile"
	DefaultTimeoutSeconds  = 10
	DefaultVerifySignature = true
	DefaultSSLVerify       = true
)

// DiscoveryPathSuffix is appended to a normalized issuer URL to derive its
// OIDC discovery endpoint.
const DiscoveryPathSuffix = "/.well-known/openid-configuration"

// Source is the host framework's option lookup. Lookup returns the raw string
// value for a key and whether the key was present at all.
type Source interface {
	Lookup(key string) (value string, ok bool)
}

// MapSource adapts a plain map to the Source interface.
type MapSource map[string]string

func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// ErrMissingProvider is returned when neither discovery endpoints nor issuers
// were configured.
var ErrMissingProvider = errors.New("config: either " + KeyDiscoveryURLs + "/" + KeyDiscoveryURL +
	" or " + KeyIssuers + "/" + KeyIssuer + " must be configured")

// ErrMissingClientID is returned when oauth2_client_id is absent or empty.
var ErrMissingClientID = errors.New("config: " + KeyClientID + " must be configured")

// ConflictingOptionError is returned when both the plural and singular form
// of the same option were supplied. The two forms are mutually exclusive and
// the conflict is never silently resolved.
type ConflictingOptionError struct {
	Plural   string
	Singular string
}

func (e *ConflictingOptionError) Error() string {
	return fmt.Sprintf("config: cannot configure both %s and %s; use only one form", e.Plural, e.Singular)
}

// Config is the resolved, immutable plugin configuration. Fields must not be
// mutated after Resolve returns; use Clone when a derived copy is needed.
type Config struct {
	// DiscoveryEndpoints is never empty after resolution. When only issuers
	// were configured it holds one derived endpoint per issuer, in order.
	DiscoveryEndpoints []string
	// Issuers is the accepted issuer set. Empty when only discovery endpoints
	// were configured directly; issuer matching is then delegated to the
	// discovery mapping.
	Issuers []string

	ClientID     string
	ClientSecret string

	// Audiences restricts the token aud claim. Empty disables the check.
	Audiences []string

	Scope           string
	UserClaim       string
	VerifySignature bool
	SSLVerify       bool
	TimeoutSeconds  int
	Debug           bool
}

// Timeout returns the limit on outbound collaborator calls as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LogLevel selects the verbosity the diagnostics boundary should use. Debug
// affects logging only; it never changes validation behavior.
func (c *Config) LogLevel() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	dup := *c
	dup.DiscoveryEndpoints = append([]string(nil), c.DiscoveryEndpoints...)
	dup.Issuers = append([]string(nil), c.Issuers...)
	dup.Audiences = append([]string(nil), c.Audiences...)
	return &dup
}

// Resolve reads every option from src and produces a validated Config.
// Unknown keys in the source are ignored. A nil logger falls back to
// slog.Default; the logger only receives non-fatal parse warnings.
func Resolve(src Source, log *slog.Logger) (*Config, error) {
	if log == nil {
		log = slog.Default()
	}

	endpointsRaw, endpointsOK := src.Lookup(KeyDiscoveryURLs)
	endpointRaw, endpointOK := src.Lookup(KeyDiscoveryURL)
	if endpointsOK && endpointOK {
		return nil, &ConflictingOptionError{Plural: KeyDiscoveryURLs, Singular: KeyDiscoveryURL}
	}

	issuersRaw, issuersOK := src.Lookup(KeyIssuers)
	issuerRaw, issuerOK := src.Lookup(KeyIssuer)
	if issuersOK && issuerOK {
		return nil, &ConflictingOptionError{Plural: KeyIssuers, Singular: KeyIssuer}
	}

	audiencesRaw, audiencesOK := src.Lookup(KeyAudiences)
	audienceRaw, audienceOK := src.Lookup(KeyAudience)
	if audiencesOK && audienceOK {
		return nil, &ConflictingOptionError{Plural: KeyAudiences, Singular: KeyAudience}
	}

	cfg := &Config{
		Scope:           getString(src, KeyScope, DefaultScope),
		UserClaim:       getString(src, KeyUserClaim, DefaultUserClaim),
		VerifySignature: getBool(src, KeyVerifySignature, DefaultVerifySignature),
		SSLVerify:       getBool(src, KeySSLVerify, DefaultSSLVerify),
		TimeoutSeconds:  getInt(src, KeyTimeout, DefaultTimeoutSeconds, log),
		Debug:           getBool(src, KeyDebug, false),
	}
	if cfg.TimeoutSeconds <= 0 {
		log.Warn("non-positive timeout, using default",
			slog.String("key", KeyTimeout), slog.Int("default", DefaultTimeoutSeconds))
		cfg.TimeoutSeconds = DefaultTimeoutSeconds
	}

	if endpointsOK {
		cfg.DiscoveryEndpoints = ParseStringList(endpointsRaw)
	} else if endpointOK {
		cfg.DiscoveryEndpoints = ParseStringList(endpointRaw)
	}
	if issuersOK {
		cfg.Issuers = ParseStringList(issuersRaw)
	} else if issuerOK {
		cfg.Issuers = ParseStringList(issuerRaw)
	}
	if cfg.DiscoveryEndpoints == nil && cfg.Issuers == nil {
		return nil, ErrMissingProvider
	}

	// Derive one discovery endpoint per issuer, preserving order, when no
	// endpoint was given directly.
	if cfg.DiscoveryEndpoints == nil {
		cfg.DiscoveryEndpoints = make([]string, len(cfg.Issuers))
		for i, iss := range cfg.Issuers {
			cfg.DiscoveryEndpoints[i] = strings.TrimSuffix(iss, "/") + DiscoveryPathSuffix
		}
	}

	cfg.ClientID = getString(src, KeyClientID, "")
	if cfg.ClientID == "" {
		return nil, ErrMissingClientID
	}
	cfg.ClientSecret = getString(src, KeyClientSecret, "")

	if audiencesOK {
		cfg.Audiences = ParseStringList(audiencesRaw)
	} else if audienceOK {
		cfg.Audiences = ParseStringList(audienceRaw)
	}

	log.Debug("oauth2 configuration resolved",
		slog.Int("providers", len(cfg.DiscoveryEndpoints)),
		slog.Int("audiences", len(cfg.Audiences)),
		slog.String("user_claim", cfg.UserClaim),
		slog.Bool("verify_signature", cfg.VerifySignature))

	return cfg, nil
}

// ParseStringList splits a whitespace-separated option value into its items.
// Empty or all-whitespace input yields nil (an absent list), which is
// distinct from an explicitly empty one.
func ParseStringList(s string) []string {
	items := strings.Fields(s)
	if len(items) == 0 {
		return nil
	}
	return items
}

func getString(src Source, key, def string) string {
	if v, ok := src.Lookup(key); ok && v != "" {
		return v
	}
	return def
}

// getInt parses the entire value as a base-10 signed 32-bit integer. Any
// parse failure or out-of-range value falls back to the default with a
// warning; integer options are never fatal.
func getInt(src Source, key string, def int, log *slog.Logger) int {
	v, ok := src.Lookup(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		log.Warn("invalid integer option, using default",
			slog.String("key", key), slog.String("value", v), slog.Int("default", def))
		return def
	}
	return int(n)
}

// getBool accepts yes/true/1 (case-insensitive) as true; anything else is false.
func getBool(src Source, key string, def bool) bool {
	v, ok := src.Lookup(key)
	if !ok || v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "yes", "true", "1":
		return true
	default:
		return false
	}
}
