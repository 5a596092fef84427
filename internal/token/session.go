package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/VaibhavPrasad23/PayRs/internal/model"
)

var ErrInvalidSession = errors.New("invalid session token")

// SessionClaims is the payload of a bearer session. A pending session
// authenticates only the second-factor endpoints until the challenge is
// completed.
type SessionClaims struct {
	Pending2FA bool                  `json:"pending_2fa"`
	Method     model.TwoFactorMethod `json:"two_factor,omitempty"`
	jwt.RegisteredClaims
}

// MentorID returns the account the session belongs to.
func (c *SessionClaims) MentorID() string {
	return c.Subject
}

// SessionCodec issues, validates and refreshes bearer sessions.
type SessionCodec struct {
	key              []byte
	validity         time.Duration
	refreshThreshold time.Duration
}

func NewSessionCodec(key string, validity, refreshThreshold time.Duration) *SessionCodec {
	if validity <= 0 {
		validity = 24 * time.Hour
	}
	if refreshThreshold <= 0 || refreshThreshold > validity {
		refreshThreshold = validity / 2
	}
	return &SessionCodec{
		key:              []byte(key),
		validity:         validity,
		refreshThreshold: refreshThreshold,
	}
}

func (c *SessionCodec) Issue(mentorID string, pending bool, method model.TwoFactorMethod) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		Pending2FA: pending,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   mentorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.validity)),
		},
	}
	if method != "" && method != model.TwoFactorNone {
		claims.Method = method
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

func (c *SessionCodec) Decode(signed string) (*SessionClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	claims := &SessionClaims{}
	parsed, err := parser.ParseWithClaims(signed, claims, func(t *jwt.Token) (interface{}, error) {
		return c.key, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// Refresh returns a fresh token when the session is close enough to
// expiry and the original token otherwise. Refresh never widens scope:
// pending state and method carry over unchanged. The boolean reports
// whether a new token was issued.
func (c *SessionCodec) Refresh(signed string) (string, bool, error) {
	claims, err := c.Decode(signed)
	if err != nil {
		return "", false, err
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining >= c.refreshThreshold {
		return signed, false, nil
	}

	fresh, err := c.Issue(claims.Subject, claims.Pending2FA, claims.Method)
	if err != nil {
		return "", false, err
	}
	return fresh, true, nil
}
