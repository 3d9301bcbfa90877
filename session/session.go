// Package session models the authorized credential used to submit
// transactions on a user's behalf. Key generation and policy signing happen
// in an external wallet service; this package only reads claims and persists
// the opaque token between runs.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the opaque handle the transaction capability consumes.
type Session interface {
	Address() string
	Username() string
	ExpiresAt() time.Time
	IsRevoked() bool
}

type claims struct {
	jwt.RegisteredClaims
	Address  string `json:"addr"`
	Username string `json:"username"`
	Revoked  bool   `json:"revoked"`
}

// Credential is a parsed session token plus its extracted claims. It
// satisfies Session.
type Credential struct {
	Token     string    `json:"token"`
	Addr      string    `json:"address"`
	User      string    `json:"username"`
	Expires   time.Time `json:"expiresAt"`
	Revoked   bool      `json:"revoked"`
}

// FromToken extracts session claims from a signed token. The signature is the
// remote signer's concern; the client holds the token only to hand it back,
// so claims are read without verification.
func FromToken(token string) (*Credential, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, fmt.Errorf("session: token required")
	}
	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(trimmed, &c); err != nil {
		return nil, fmt.Errorf("session: parse token: %w", err)
	}
	if c.Address == "" {
		return nil, fmt.Errorf("session: token missing address claim")
	}
	if c.ExpiresAt == nil {
		return nil, fmt.Errorf("session: token missing expiry claim")
	}
	return &Credential{
		Token:   trimmed,
		Addr:    c.Address,
		User:    c.Username,
		Expires: c.ExpiresAt.Time,
		Revoked: c.Revoked,
	}, nil
}

// Address returns the account the session acts for.
func (c *Credential) Address() string { return c.Addr }

// Username returns the resolved display name, if any.
func (c *Credential) Username() string { return c.User }

// ExpiresAt returns the session expiry.
func (c *Credential) ExpiresAt() time.Time { return c.Expires }

// IsRevoked reports whether the credential has been revoked upstream.
func (c *Credential) IsRevoked() bool { return c.Revoked }

// Valid reports whether the credential can still be used at the given time.
func (c *Credential) Valid(now time.Time) bool {
	return !c.Revoked && now.Before(c.Expires)
}
