package hasher

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// HashAlgorithms is a list of supported hashing algorithms.
var HashAlgorithms = []string{"md5", "sha1", "sha256", "sha512"}

// IsValidHashAlgo checks if the provided algorithm string is supported.
func IsValidHashAlgo(algo string) bool {
	_, err := newHash(algo)
	return err == nil
}

// Checksum is an expected digest such as "sha256=ab12...".
type Checksum struct {
	Algo string
	Hex  string
}

// ParseChecksum parses "algo=hexdigest".
func ParseChecksum(s string) (Checksum, error) {
	algo, digest, ok := strings.Cut(strings.TrimSpace(s), "=")
	if !ok || digest == "" {
		return Checksum{}, fmt.Errorf("checksum must look like algo=hex, got %q", s)
	}
	algo = strings.ToLower(algo)
	if !IsValidHashAlgo(algo) {
		return Checksum{}, fmt.Errorf("unsupported hash algorithm: %s", algo)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return Checksum{}, fmt.Errorf("checksum is not hex: %w", err)
	}
	return Checksum{Algo: algo, Hex: strings.ToLower(digest)}, nil
}

// GenerateHash calculates the hash of a file using the specified algorithm.
func GenerateHash(filePath, algo string) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks the file at filePath against want.
func Verify(filePath string, want Checksum) error {
	got, err := GenerateHash(filePath, want.Algo)
	if err != nil {
		return err
	}
	if got != want.Hex {
		return fmt.Errorf("%s mismatch: expected %s, got %s", want.Algo, want.Hex, got)
	}
	return nil
}

func newHash(algo string) (hash.Hash, error) {
	switch strings.ToLower(algo) {
	case "md5":
		return md5.New(), nil
	case "sha1":
		return sha1.New(), nil
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algo)
	}
}
