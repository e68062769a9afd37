// Package wsse builds and checks WSSE UsernameToken headers used by the
// analytics API. A token is computed fresh for every outbound request.
package wsse

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	HeaderName    = "X-WSSE"
	CreatedLayout = "2006-01-02T15:04:05Z"
)

type Token struct {
	Username       string
	PasswordDigest string
	Nonce          string
	Created        string
}

// HeaderValue renders the token in the form expected in the X-WSSE header.
func (t Token) HeaderValue() string {
	return fmt.Sprintf(`UsernameToken Username="%s", PasswordDigest="%s", Nonce="%s", Created="%s"`,
		t.Username, t.PasswordDigest, t.Nonce, t.Created)
}

// Signer produces tokens. The zero value uses the wall clock and a random
// nonce source; both can be replaced for deterministic output.
type Signer struct {
	Now   func() time.Time
	Nonce func() string
}

func (s Signer) Sign(username string, secret string) Token {
	nonce := s.nextNonce()
	created := s.now().UTC().Format(CreatedLayout)
	return Token{
		Username:       username,
		PasswordDigest: Digest(nonce, created, secret),
		Nonce:          nonce,
		Created:        created,
	}
}

func (s Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Signer) nextNonce() string {
	if s.Nonce != nil {
		return s.Nonce()
	}
	return RandomNonce()
}

// RandomNonce returns 32 lowercase hex characters derived from a fresh v4 UUID.
func RandomNonce() string {
	id := uuid.New()
	sum := md5.Sum(id[:])
	return hex.EncodeToString(sum[:])
}

// Digest is base64(hex(sha1(nonce + created + secret))). The API expects the
// hex text of the hash to be encoded, not the raw hash bytes.
func Digest(nonce string, created string, secret string) string {
	var b strings.Builder
	b.Grow(len(nonce) + len(created) + len(secret))
	b.WriteString(nonce)
	b.WriteString(created)
	b.WriteString(secret)
	sum := sha1.Sum([]byte(b.String()))
	return base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(sum[:])))
}
