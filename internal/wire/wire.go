// Package wire implements the client-first blobs exchanged by the XOAUTH2
// and OAUTHBEARER mechanisms, and the OAUTHBEARER JSON error challenge.
//
// Both mechanisms carry key/value pairs separated by the ^A control character
// and terminated by ^A^A:
//
//	XOAUTH2:     user=<identity>^Aauth=Bearer <token>^A^A
//	OAUTHBEARER: n,a=<identity>,^Aauth=Bearer <token>^A^A
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Sep is the control character separating key/value segments.
const Sep = '\x01'

const (
	userPrefix   = "user="
	bearerPrefix = "auth=Bearer "
	gs2Prefix    = "n,"
	authzPrefix  = "a="
)

// ErrMalformed indicates a client blob that does not follow the documented
// format. It is a fatal per-attempt parse error, never a protocol
// continuation.
var ErrMalformed = errors.New("wire: malformed initial response")

// ClientFirst is the parsed content of a client's initial response.
type ClientFirst struct {
	// Identity is the client-asserted authorization identity. It may be empty
	// for OAUTHBEARER; the authenticated identity always comes from the token.
	Identity string
	// Token is the raw bearer token. The caller owns the slice and must Zero
	// it when the attempt concludes.
	Token []byte
}

// ParseXOAUTH2 parses the legacy single-step blob.
func ParseXOAUTH2(in []byte) (ClientFirst, error) {
	var cf ClientFirst
	if len(in) == 0 {
		return cf, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	rest, ok := bytes.CutPrefix(in, []byte(userPrefix))
	if !ok {
		return cf, fmt.Errorf("%w: missing %q prefix", ErrMalformed, userPrefix)
	}
	identity, rest, ok := bytes.Cut(rest, []byte{Sep})
	if !ok {
		return cf, fmt.Errorf("%w: no separator after identity", ErrMalformed)
	}
	token, err := parseBearerSegment(rest)
	if err != nil {
		return cf, err
	}
	cf.Identity = string(identity)
	cf.Token = token
	return cf, nil
}

// ParseOAuthBearer parses the standard initial blob: a GS2 header with an
// optional authorization identity, then the same bearer key/value segment
// used by XOAUTH2.
func ParseOAuthBearer(in []byte) (ClientFirst, error) {
	var cf ClientFirst
	if len(in) == 0 {
		return cf, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	rest, ok := bytes.CutPrefix(in, []byte(gs2Prefix))
	if !ok {
		return cf, fmt.Errorf("%w: missing %q GS2 header", ErrMalformed, gs2Prefix)
	}
	if after, hasAuthz := bytes.CutPrefix(rest, []byte(authzPrefix)); hasAuthz {
		identity, after, found := bytes.Cut(after, []byte{','})
		if !found {
			return cf, fmt.Errorf("%w: unterminated authorization identity", ErrMalformed)
		}
		cf.Identity = string(identity)
		rest = after
	}
	_, rest, ok = bytes.Cut(rest, []byte{Sep})
	if !ok {
		return cf, fmt.Errorf("%w: no separator after GS2 header", ErrMalformed)
	}
	token, err := parseBearerSegment(rest)
	if err != nil {
		return cf, err
	}
	cf.Token = token
	return cf, nil
}

func parseBearerSegment(rest []byte) ([]byte, error) {
	rest, ok := bytes.CutPrefix(rest, []byte(bearerPrefix))
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrMalformed, bearerPrefix)
	}
	token, _, ok := bytes.Cut(rest, []byte{Sep})
	if !ok {
		return nil, fmt.Errorf("%w: no separator after token", ErrMalformed)
	}
	if len(token) == 0 {
		return nil, fmt.Errorf("%w: empty token", ErrMalformed)
	}
	// Copy so callers can wipe their buffer independently of the input.
	return append([]byte(nil), token...), nil
}

// BuildXOAUTH2 encodes an initial response for the legacy mechanism.
func BuildXOAUTH2(identity, token string) []byte {
	var b bytes.Buffer
	b.WriteString(userPrefix)
	b.WriteString(identity)
	b.WriteByte(Sep)
	b.WriteString(bearerPrefix)
	b.WriteString(token)
	b.WriteByte(Sep)
	b.WriteByte(Sep)
	return b.Bytes()
}

// BuildOAuthBearer encodes an initial response for the standard mechanism.
func BuildOAuthBearer(identity, token string) []byte {
	var b bytes.Buffer
	b.WriteString(gs2Prefix)
	b.WriteString(authzPrefix)
	b.WriteString(identity)
	b.WriteByte(',')
	b.WriteByte(Sep)
	b.WriteString(bearerPrefix)
	b.WriteString(token)
	b.WriteByte(Sep)
	b.WriteByte(Sep)
	return b.Bytes()
}

// ErrorAck is the dummy response an OAUTHBEARER client sends to acknowledge
// an error challenge before the exchange concludes.
var ErrorAck = []byte{Sep}

// Challenge statuses sent in the OAUTHBEARER error document.
const (
	StatusInvalidToken      = "invalid_token"
	StatusInsufficientScope = "insufficient_scope"
	StatusInvalidRequest    = "invalid_request"
)

// ErrorChallenge is the JSON document an OAUTHBEARER server returns when the
// token was rejected. Scope and OpenIDConfiguration are advisory hints.
type ErrorChallenge struct {
	Status              string `json:"status"`
	Scope               string `json:"scope,omitempty"`
	OpenIDConfiguration string `json:"openid-configuration,omitempty"`
}

// Encode marshals the challenge for transmission.
func (c ErrorChallenge) Encode() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Zero overwrites b so secret material does not outlive the attempt that
// owned it.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
