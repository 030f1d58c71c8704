package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Algorithm names a digest function. Digests are rendered "<algorithm>:<hex>".
type Algorithm string

const (
	SHA256     Algorithm = "sha256"
	BLAKE2b256 Algorithm = "blake2b-256"
)

// ParseAlgorithm maps a configured name to an Algorithm. Empty means SHA256.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(name))) {
	case "", SHA256:
		return SHA256, nil
	case BLAKE2b256, "blake2b":
		return BLAKE2b256, nil
	default:
		return "", fmt.Errorf("canonicalize: unsupported digest algorithm %q", name)
	}
}

// Sum hashes data with alg and returns the prefixed digest string.
func Sum(alg Algorithm, data []byte) (string, error) {
	switch alg {
	case SHA256, "":
		h := sha256.Sum256(data)
		return string(SHA256) + ":" + hex.EncodeToString(h[:]), nil
	case BLAKE2b256:
		h := blake2b.Sum256(data)
		return string(BLAKE2b256) + ":" + hex.EncodeToString(h[:]), nil
	default:
		return "", fmt.Errorf("canonicalize: unsupported digest algorithm %q", alg)
	}
}

// Digest canonicalizes v and hashes the result with alg.
func Digest(alg Algorithm, v any) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return Sum(alg, b)
}

// SplitDigest separates a prefixed digest into algorithm and hex value.
func SplitDigest(d string) (Algorithm, string, error) {
	alg, hexValue, ok := strings.Cut(d, ":")
	if !ok || hexValue == "" {
		return "", "", fmt.Errorf("canonicalize: malformed digest %q", d)
	}
	a, err := ParseAlgorithm(alg)
	if err != nil {
		return "", "", err
	}
	return a, hexValue, nil
}
