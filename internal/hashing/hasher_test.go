package hashing

import (
	"testing"

	"github.com/VaibhavPrasad23/PayRs/internal/config"
)

func testHasher() *Hasher {
	cfg := &config.Config{}
	cfg.Hashing.Argon2MemoryCost = 8 * 1024
	cfg.Hashing.Argon2TimeCost = 1
	cfg.Hashing.Argon2Parallelism = 1
	return NewHasher(cfg)
}

func TestHashAndVerify(t *testing.T) {
	h := testHasher()

	result, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	ok, err := h.Verify("correct horse battery staple", result)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Error("expected matching secret to verify")
	}

	ok, err = h.Verify("wrong password", result)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Error("expected mismatched secret to fail")
	}
}

func TestHashProducesUniqueSalts(t *testing.T) {
	h := testHasher()

	a, err := h.Hash("123456")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	b, err := h.Hash("123456")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	if a.Salt == b.Salt {
		t.Error("expected distinct salts for repeated hashing")
	}
	if a.Hash == b.Hash {
		t.Error("expected distinct digests for repeated hashing")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	h := testHasher()

	result, err := h.Hash("secret")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	parsed, err := ParseEncoded(result.Encode())
	if err != nil {
		t.Fatalf("ParseEncoded: %v", err)
	}

	ok, err := h.Verify("secret", parsed)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Error("expected parsed result to verify")
	}
}

func TestParseEncodedRejectsGarbage(t *testing.T) {
	for _, encoded := range []string{"", "plain", "md5$abc$def", "argon2id-v1$onlytwo"} {
		if _, err := ParseEncoded(encoded); err == nil {
			t.Errorf("ParseEncoded(%q): expected error", encoded)
		}
	}
}
