package ir

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// DomainState prefixes SHA-256 state hashes.
// Version suffix enables future algorithm migration.
const DomainState = "docreduce/state/v1"

// Hash algorithm names accepted by HasherFor and stored in config.
const (
	AlgorithmSHA1Base64 = "sha1-base64"
	AlgorithmSHA256Hex  = "sha256-hex"
)

// Hasher turns canonical state bytes into the hash stored on an operation.
type Hasher interface {
	Algorithm() string
	Sum(data []byte) string
}

// SHA1Base64 is the default hasher: base64(sha1(canonical state)).
// It keeps hashes comparable with logs produced by earlier tooling.
type SHA1Base64 struct{}

func (SHA1Base64) Algorithm() string { return AlgorithmSHA1Base64 }

func (SHA1Base64) Sum(data []byte) string {
	sum := sha1.Sum(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// SHA256Hex hashes with domain separation: SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
type SHA256Hex struct{}

func (SHA256Hex) Algorithm() string { return AlgorithmSHA256Hex }

func (SHA256Hex) Sum(data []byte) string {
	h := sha256.New()
	h.Write([]byte(DomainState))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HasherFor resolves an algorithm name. An empty name selects the default.
func HasherFor(name string) (Hasher, error) {
	switch name {
	case "", AlgorithmSHA1Base64:
		return SHA1Base64{}, nil
	case AlgorithmSHA256Hex:
		return SHA256Hex{}, nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", name)
	}
}

// HashState hashes the canonical serialization of a scope state.
// Two states with equal content hash equally regardless of key order.
func HashState(h Hasher, state Value) (string, error) {
	if h == nil {
		h = SHA1Base64{}
	}
	canonical, err := MarshalCanonical(state)
	if err != nil {
		return "", fmt.Errorf("HashState: failed to marshal: %w", err)
	}
	return h.Sum(canonical), nil
}

// MustHashState is like HashState but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustHashState(h Hasher, state Value) string {
	hash, err := HashState(h, state)
	if err != nil {
		panic(err)
	}
	return hash
}
