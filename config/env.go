package config

import (
	"log/slog"

	"github.com/joeshaw/envdecode"
)

// Env mirrors the option namespace onto environment variables so deployments
// without a SASL config file can configure the plugin. Every field is
// optional at decode time; Resolve applies the usual validation afterward.
type Env struct {
	DiscoveryURLs   string `env:"SASL_OAUTH2_DISCOVERY_URLS"`
	DiscoveryURL    string `env:"SASL_OAUTH2_DISCOVERY_URL"`
	Issuers         string `env:"SASL_OAUTH2_ISSUERS"`
	Issuer          string `env:"SASL_OAUTH2_ISSUER"`
	ClientID        string `env:"SASL_OAUTH2_CLIENT_ID"`
	ClientSecret    string `env:"SASL_OAUTH2_CLIENT_SECRET"`
	Audiences       string `env:"SASL_OAUTH2_AUDIENCES"`
	Audience        string `env:"SASL_OAUTH2_AUDIENCE"`
	Scope           string `env:"SASL_OAUTH2_SCOPE"`
	UserClaim       string `env:"SASL_OAUTH2_USER_CLAIM"`
	VerifySignature string `env:"SASL_OAUTH2_VERIFY_SIGNATURE"`
	SSLVerify       string `env:"SASL_OAUTH2_SSL_VERIFY"`
	Timeout         string `env:"SASL_OAUTH2_TIMEOUT"`
	Debug           string `env:"SASL_OAUTH2_DEBUG"`
}

// FromEnv resolves configuration from SASL_OAUTH2_* environment variables.
// Variables that are unset or empty behave exactly like absent options.
func FromEnv(log *slog.Logger) (*Config, error) {
	return Resolve(EnvSource(), log)
}

// EnvSource reads the SASL_OAUTH2_* environment variables into an option
// source without resolving it.
func EnvSource() MapSource {
	var e Env
	// All fields are optional, so decode can only fail when nothing is set;
	// Resolve reports the missing-provider case either way.
	_ = envdecode.Decode(&e)

	src := MapSource{}
	put := func(key, val string) {
		if val != "" {
			src[key] = val
		}
	}
	put(KeyDiscoveryURLs, e.DiscoveryURLs)
	put(KeyDiscoveryURL, e.DiscoveryURL)
	put(KeyIssuers, e.Issuers)
	put(KeyIssuer, e.Issuer)
	put(KeyClientID, e.ClientID)
	put(KeyClientSecret, e.ClientSecret)
	put(KeyAudiences, e.Audiences)
	put(KeyAudience, e.Audience)
	put(KeyScope, e.Scope)
	put(KeyUserClaim, e.UserClaim)
	put(KeyVerifySignature, e.VerifySignature)
	put(KeySSLVerify, e.SSLVerify)
	put(KeyTimeout, e.Timeout)
	put(KeyDebug, e.Debug)

	return src
}
