package mechanism

import (
	"fmt"

	"github.com/saslkit/sasl-oidc-go/internal/wire"
)

// ClientInitialResponse builds the first (and normally only) message a
// client sends for the named mechanism. The token is the raw bearer token;
// the "Bearer " prefix and field separators are added here.
func ClientInitialResponse(name, identity, token string) ([]byte, error) {
	switch name {
	case NameXOAUTH2:
		return wire.BuildXOAUTH2(identity, token), nil
	case NameOAuthBearer:
		return wire.BuildOAuthBearer(identity, token), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMechanism, name)
	}
}

// ClientErrorAck returns the dummy response an OAUTHBEARER client sends
// after receiving an error challenge, concluding the exchange.
func ClientErrorAck() []byte {
	return append([]byte(nil), wire.ErrorAck...)
}
