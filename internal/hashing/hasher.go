package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/VaibhavPrasad23/PayRs/internal/config"
)

var ErrInvalidHash = errors.New("invalid hash format")

const algorithm = "argon2id-v1"

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher derives argon2id digests for passwords and one-time codes.
// The salt travels with the digest, so any instance can verify a value
// hashed by another one.
type Hasher struct {
	params Argon2Params
}

type HashResult struct {
	Hash      string `json:"hash"`
	Salt      string `json:"salt"`
	Algorithm string `json:"algorithm"`
}

func NewHasher(cfg *config.Config) *Hasher {
	return &Hasher{
		params: Argon2Params{
			Memory:      uint32(cfg.Hashing.Argon2MemoryCost),
			Iterations:  uint32(cfg.Hashing.Argon2TimeCost),
			Parallelism: uint8(cfg.Hashing.Argon2Parallelism),
			SaltLength:  16,
			KeyLength:   32,
		},
	}
}

func (h *Hasher) Hash(secret string) (*HashResult, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey(
		[]byte(secret),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return &HashResult{
		Hash:      base64.RawURLEncoding.EncodeToString(hash),
		Salt:      base64.RawURLEncoding.EncodeToString(salt),
		Algorithm: algorithm,
	}, nil
}

func (h *Hasher) Verify(secret string, result *HashResult) (bool, error) {
	if result == nil {
		return false, ErrInvalidHash
	}

	salt, err := base64.RawURLEncoding.DecodeString(result.Salt)
	if err != nil {
		return false, ErrInvalidHash
	}

	expected, err := base64.RawURLEncoding.DecodeString(result.Hash)
	if err != nil {
		return false, ErrInvalidHash
	}

	computed := argon2.IDKey(
		[]byte(secret),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		uint32(len(expected)),
	)

	// Constant time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// Encode packs the result into a single storable string.
func (r *HashResult) Encode() string {
	return fmt.Sprintf("%s$%s$%s", r.Algorithm, r.Salt, r.Hash)
}

// ParseEncoded reverses Encode.
func ParseEncoded(encoded string) (*HashResult, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != algorithm {
		return nil, ErrInvalidHash
	}
	return &HashResult{
		Algorithm: parts[0],
		Salt:      parts[1],
		Hash:      parts[2],
	}, nil
}
