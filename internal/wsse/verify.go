package wsse

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrMalformedHeader = errors.New("malformed wsse header")
	ErrDigestMismatch  = errors.New("wsse password digest mismatch")
	ErrStaleToken      = errors.New("wsse token created outside allowed window")
)

const usernameTokenPrefix = "UsernameToken "

// Parse reads a header produced by Token.HeaderValue. Attribute order is not
// significant; all four attributes are required.
func Parse(header string) (Token, error) {
	value := strings.TrimSpace(header)
	if !strings.HasPrefix(value, usernameTokenPrefix) {
		return Token{}, ErrMalformedHeader
	}
	attrs := map[string]string{}
	for _, part := range strings.Split(strings.TrimPrefix(value, usernameTokenPrefix), ",") {
		key, raw, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return Token{}, fmt.Errorf("%w: attribute %q", ErrMalformedHeader, part)
		}
		raw = strings.TrimSpace(raw)
		if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
			return Token{}, fmt.Errorf("%w: unquoted %s", ErrMalformedHeader, key)
		}
		attrs[strings.TrimSpace(key)] = raw[1 : len(raw)-1]
	}
	token := Token{
		Username:       attrs["Username"],
		PasswordDigest: attrs["PasswordDigest"],
		Nonce:          attrs["Nonce"],
		Created:        attrs["Created"],
	}
	if token.Username == "" || token.PasswordDigest == "" || token.Nonce == "" || token.Created == "" {
		return Token{}, fmt.Errorf("%w: missing attribute", ErrMalformedHeader)
	}
	return token, nil
}

// Verify checks the digest against secret and, when maxSkew is positive,
// that Created lies within maxSkew of now.
func Verify(token Token, secret string, now time.Time, maxSkew time.Duration) error {
	want := Digest(token.Nonce, token.Created, secret)
	if subtle.ConstantTimeCompare([]byte(want), []byte(token.PasswordDigest)) != 1 {
		return ErrDigestMismatch
	}
	if maxSkew <= 0 {
		return nil
	}
	created, err := time.Parse(CreatedLayout, token.Created)
	if err != nil {
		return fmt.Errorf("%w: created %q", ErrMalformedHeader, token.Created)
	}
	skew := now.UTC().Sub(created)
	if skew < 0 {
		skew = -skew
	}
	if skew > maxSkew {
		return ErrStaleToken
	}
	return nil
}
