package session

import (
	"crypto/sha256"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"

	"github.com/drinkorder/order-gateway/credentials"
)

const signingKeyInfo = "order-gateway session signing key"

// Claims is the session state carried in the browser cookie. The token
// pair travels with the session (there is no server-side session table),
// so the cookie is signed and its integrity checked on every request.
type Claims struct {
	jwt.RegisteredClaims
	Username       string `json:"username,omitempty"`
	Name           string `json:"name,omitempty"`
	Email          string `json:"email,omitempty"`
	AccessToken    string `json:"accessToken,omitempty"`
	RefreshToken   string `json:"refreshToken,omitempty"`
	InstanceURL    string `json:"instanceUrl,omitempty"`
	TenantID       string `json:"tenantId,omitempty"`
	TokenExpiresAt int64  `json:"tokenExpiresAt,omitempty"` // unix seconds
	SessionError   string `json:"error,omitempty"`
}

// Record converts cookie claims back into a session record.
func (c *Claims) Record() Record {
	return Record{
		UserID:   c.Subject,
		Username: c.Username,
		Name:     c.Name,
		Email:    c.Email,
		TokenPair: credentials.TokenPair{
			AccessToken:  c.AccessToken,
			RefreshToken: c.RefreshToken,
			ExpiresAt:    time.Unix(c.TokenExpiresAt, 0).UTC(),
		},
		InstanceURL: c.InstanceURL,
		TenantID:    c.TenantID,
		Error:       c.SessionError,
	}
}

// Codec signs and verifies session cookies. The HS256 signing key is
// derived from the configured session secret with HKDF, so the raw
// secret never signs anything directly.
type Codec struct {
	key     []byte
	maxAge  time.Duration
	nowTime func() time.Time
}

// CodecOption modifies a Codec.
type CodecOption func(*Codec)

// WithCodecNowTime sets the now time function (primarily for testing).
func WithCodecNowTime(nowFunc func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowTime = nowFunc
	}
}

// NewCodec creates a cookie codec. maxAge bounds the session lifetime
// independently of the access token's expiry.
func NewCodec(secret string, maxAge time.Duration, options ...CodecOption) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("[NewCodec] session secret is required")
	}
	if maxAge <= 0 {
		return nil, errors.New("[NewCodec] session max age must be positive")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(signingKeyInfo)), key); err != nil {
		return nil, errors.Wrap(err, "[NewCodec] deriving signing key")
	}

	c := &Codec{
		key:     key,
		maxAge:  maxAge,
		nowTime: time.Now,
	}

	for _, opt := range options {
		opt(c)
	}

	return c, nil
}

// Encode serializes a record into a signed session token.
func (c *Codec) Encode(rec Record) (string, error) {
	now := c.nowTime()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   rec.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.maxAge)),
		},
		Username:       rec.Username,
		Name:           rec.Name,
		Email:          rec.Email,
		AccessToken:    rec.TokenPair.AccessToken,
		RefreshToken:   rec.TokenPair.RefreshToken,
		InstanceURL:    rec.InstanceURL,
		TenantID:       rec.TenantID,
		TokenExpiresAt: rec.TokenPair.ExpiresAt.Unix(),
		SessionError:   rec.Error,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", errors.Wrap(err, "[Codec.Encode] signing session token")
	}
	return token, nil
}

// Decode verifies a session token and returns its claims. Expired or
// tampered tokens fail.
func (c *Codec) Decode(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) { return c.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.nowTime),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[Codec.Decode] parsing session token")
	}
	return claims, nil
}
