// Package auth issues, verifies and revokes bearer credentials for supply-chain
// stakeholders and keeps a short-lived profile cache in front of the ledger.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/pharmatrace/internal/model"
)

// TokenType distinguishes access from refresh credentials. Each kind is signed
// with its own secret.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the payload of every credential. Subject holds the stakeholder
// address; Role and Verified are snapshots taken at issuance.
type Claims struct {
	jwt.RegisteredClaims
	Role      model.Role `json:"role,omitempty"`
	Verified  bool       `json:"verified,omitempty"`
	Name      string     `json:"name,omitempty"`
	TokenType TokenType  `json:"token_type"`
}

// Address returns the stakeholder address the token was issued to.
func (c *Claims) Address() string { return c.Subject }

// RemainingTTL returns the time until expiry, or zero once expired.
func (c *Claims) RemainingTTL(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	if d := c.ExpiresAt.Time.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Subject is the identity a credential is issued for.
type Subject struct {
	Address  string
	Role     model.Role
	Verified bool
	Name     string
}

// TokenPair is returned on login and refresh.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	TokenType        string    `json:"tokenType"`
}
