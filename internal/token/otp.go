package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/VaibhavPrasad23/PayRs/internal/hashing"
	"github.com/VaibhavPrasad23/PayRs/internal/util"
)

var (
	ErrInvalidOTPToken = errors.New("invalid otp or token")
	ErrInvalidToken    = errors.New("invalid token")
)

// OTPClaims carries the argon2 digest of a one-time code plus the
// caller-supplied binding data. A token without a digest is a plain
// data token and never passes OTP verification.
type OTPClaims struct {
	Data    map[string]string `json:"data,omitempty"`
	OTPHash string            `json:"otp_hash,omitempty"`
	OTPSalt string            `json:"otp_salt,omitempty"`
	jwt.RegisteredClaims
}

// AcceptFunc decides whether the binding data of a token is acceptable
// for the operation at hand. Verification fails closed when it returns
// false.
type AcceptFunc func(data map[string]string) bool

// OTPCodec mints and verifies one-time codes. The code itself is never
// stored server side; its digest rides inside the signed token, so any
// instance holding the key can verify.
type OTPCodec struct {
	key    []byte
	hasher *hashing.Hasher
	digits int
	ttl    time.Duration
}

func NewOTPCodec(key string, hasher *hashing.Hasher, digits int, ttl time.Duration) *OTPCodec {
	if digits <= 0 {
		digits = 6
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &OTPCodec{
		key:    []byte(key),
		hasher: hasher,
		digits: digits,
		ttl:    ttl,
	}
}

// Mint generates a fresh numeric code and a signed token binding it to
// data. The code is returned once for dispatch and cannot be recovered
// from the token. A zero ttl falls back to the codec default.
func (c *OTPCodec) Mint(data map[string]string, ttl time.Duration) (otp, signed string, err error) {
	if ttl == 0 {
		ttl = c.ttl
	}

	otp, err = util.RandomDigits(c.digits)
	if err != nil {
		return "", "", err
	}

	digest, err := c.hasher.Hash(otp)
	if err != nil {
		return "", "", err
	}

	now := time.Now()
	claims := &OTPClaims{
		Data:    data,
		OTPHash: digest.Hash,
		OTPSalt: digest.Salt,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", "", err
	}
	return otp, signed, nil
}

// Verify checks the token signature and expiry, the binding data via
// accept, and the code against the embedded digest. It returns the
// binding data on success and ErrInvalidOTPToken on any failure.
func (c *OTPCodec) Verify(otp, signed string, accept AcceptFunc) (map[string]string, error) {
	claims, err := c.parse(signed)
	if err != nil {
		return nil, ErrInvalidOTPToken
	}
	if claims.OTPHash == "" || claims.OTPSalt == "" {
		return nil, ErrInvalidOTPToken
	}
	if accept != nil && !accept(claims.Data) {
		return nil, ErrInvalidOTPToken
	}

	ok, err := c.hasher.Verify(otp, &hashing.HashResult{
		Hash: claims.OTPHash,
		Salt: claims.OTPSalt,
	})
	if err != nil || !ok {
		return nil, ErrInvalidOTPToken
	}
	return claims.Data, nil
}

// Sign issues a plain data token with no code attached, used for reset
// and enrollment handoffs. A zero ttl falls back to the codec default.
func (c *OTPCodec) Sign(data map[string]string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = c.ttl
	}

	now := time.Now()
	claims := &OTPClaims{
		Data: data,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

// Decode validates a plain data token and returns its binding data.
func (c *OTPCodec) Decode(signed string, accept AcceptFunc) (map[string]string, error) {
	claims, err := c.parse(signed)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if accept != nil && !accept(claims.Data) {
		return nil, ErrInvalidToken
	}
	return claims.Data, nil
}

func (c *OTPCodec) parse(signed string) (*OTPClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	claims := &OTPClaims{}
	parsed, err := parser.ParseWithClaims(signed, claims, func(t *jwt.Token) (interface{}, error) {
		return c.key, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Signature returns the signature segment of a signed token, usable as
// a compact single-use key.
func Signature(signed string) string {
	i := strings.LastIndexByte(signed, '.')
	if i < 0 || i == len(signed)-1 {
		return signed
	}
	return signed[i+1:]
}
