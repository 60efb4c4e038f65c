// Package token implements the signed bearer token codec.
//
// Tokens are self-contained HMAC-SHA256 signed JWTs carrying the
// subject's user ID and email. They are not individually revocable;
// callers that need revocation use the session store instead.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Lifetime is the fixed validity window of an issued token.
const Lifetime = 7 * 24 * time.Hour

var (
	// ErrMalformed is returned when a token cannot be parsed.
	ErrMalformed = errors.New("token: malformed")
	// ErrBadSignature is returned when a token's signature does not verify.
	ErrBadSignature = errors.New("token: bad signature")
	// ErrExpired is returned when a token's exp claim has passed.
	ErrExpired = errors.New("token: expired")
	// ErrWrongIssuer is returned when a token's iss claim does not match.
	ErrWrongIssuer = errors.New("token: wrong issuer")
)

// Config holds the codec's signing parameters.
type Config struct {
	SigningSecret string
	Issuer        string
}

// Codec issues and verifies bearer tokens.
type Codec struct {
	cfg Config
}

// New creates a Codec from the given configuration.
func New(cfg Config) *Codec {
	return &Codec{cfg: cfg}
}

// Claims is the payload carried by a bearer token.
//
// UserID unmarshals from either "userId" (written by this codec) or
// the legacy "user_id" key, so tokens issued by an older deployment
// remain valid across the rename.
type Claims struct {
	UserID uuid.UUID
	Email  string
	jwt.RegisteredClaims
}

type claimsWire struct {
	UserID   string `json:"userId,omitempty"`
	UserIDLg string `json:"user_id,omitempty"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// MarshalJSON writes the userId claim only; user_id is read-only legacy input.
func (c Claims) MarshalJSON() ([]byte, error) {
	return json.Marshal(claimsWire{
		UserID:           c.UserID.String(),
		Email:            c.Email,
		RegisteredClaims: c.RegisteredClaims,
	})
}

// UnmarshalJSON accepts either userId or user_id.
func (c *Claims) UnmarshalJSON(data []byte) error {
	var w claimsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id := w.UserID
	if id == "" {
		id = w.UserIDLg
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("token: invalid userId claim: %w", err)
	}
	c.UserID = uid
	c.Email = w.Email
	c.RegisteredClaims = w.RegisteredClaims
	return nil
}

// Issue signs a new token for the given user ID and email.
func (c *Codec) Issue(userID uuid.UUID, email string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(Lifetime)
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    c.cfg.Issuer,
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(c.cfg.SigningSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	return signed, exp, nil
}

// Verify parses and validates a bearer token, returning its claims.
func (c *Codec) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrBadSignature
		}
		return []byte(c.cfg.SigningSecret), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if !parsed.Valid {
		return nil, ErrMalformed
	}
	if c.cfg.Issuer != "" && claims.Issuer != c.cfg.Issuer {
		return nil, ErrWrongIssuer
	}
	return claims, nil
}

// Refresh issues a new token carrying the same subject, extending the
// expiry by a full Lifetime from now.
func (c *Codec) Refresh(raw string) (string, time.Time, error) {
	claims, err := c.Verify(raw)
	if err != nil {
		return "", time.Time{}, err
	}
	return c.Issue(claims.UserID, claims.Email)
}
