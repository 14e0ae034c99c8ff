package auth

// SecurityProps describes the security characteristics a SASL mechanism
// advertises to the host framework. Bearer-token mechanisms negotiate no
// security layer of their own, require a non-anonymous identity, and expect
// any outer-layer credentials to be passed through untouched.
type SecurityProps struct {
	// MaxSSF is the maximum security-layer strength factor. Zero for bearer
	// mechanisms: confidentiality and integrity come from the outer transport.
	MaxSSF uint32
	// NoAnonymous indicates the mechanism never yields an anonymous identity.
	NoAnonymous bool
	// PassCredentials indicates outer-layer credentials are forwarded to the
	// framework rather than consumed by the mechanism.
	PassCredentials bool
	// ClientFirst indicates the client sends the first message of the exchange.
	ClientFirst bool
	// AllowsProxy indicates the mechanism supports an authorization identity
	// distinct from the authentication identity.
	AllowsProxy bool
}

// BearerProps returns the properties both bearer mechanisms advertise.
func BearerProps() SecurityProps {
	return SecurityProps{
		MaxSSF:          0,
		NoAnonymous:     true,
		PassCredentials: true,
		ClientFirst:     true,
		AllowsProxy:     true,
	}
}
