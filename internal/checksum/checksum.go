// Package checksum computes and verifies file digests.
//
// Files are streamed in fixed 64 KiB chunks so memory use is independent of file size.
// Digests are lower-case hex; comparisons are case-insensitive.
package checksum

import (
	"crypto/sha1" //nolint:gosec // sha1 is the digest published for Chromium GCS artifacts
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"

	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
)

// ChunkSize is the read size used while hashing.
const ChunkSize = 64 * 1024

// Algorithm names a supported digest function.
type Algorithm string

const (
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
	BLAKE3 Algorithm = "blake3"
)

// Algorithms lists every supported algorithm.
var Algorithms = []Algorithm{SHA1, SHA256, SHA512, BLAKE3}

// ParseAlgorithm resolves a case-insensitive algorithm name.
func ParseAlgorithm(raw string) (Algorithm, error) {
	a := Algorithm(strings.ToLower(strings.TrimSpace(raw)))
	switch a {
	case SHA1, SHA256, SHA512, BLAKE3:
		return a, nil
	}
	return "", ferrors.Configuration("unsupported digest algorithm").
		WithContext("algorithm", raw).
		Build()
}

// New returns a fresh hash for a.
func (a Algorithm) New() (hash.Hash, error) {
	switch a {
	case SHA1:
		return sha1.New(), nil //nolint:gosec // see import
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	}
	return nil, ferrors.Configuration("unsupported digest algorithm").
		WithContext("algorithm", string(a)).
		Build()
}

// HexLen is the length of a hex digest produced by a.
func (a Algorithm) HexLen() int {
	switch a {
	case SHA1:
		return 40
	case SHA256, BLAKE3:
		return 64
	case SHA512:
		return 128
	}
	return 0
}

// Digest returns the lower-case hex digest of the file at path.
func Digest(path string, alg Algorithm) (string, error) {
	h, err := alg.New()
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to open file for hashing").
			WithContext("path", path).
			Build()
	}
	defer f.Close()

	buf := make([]byte, ChunkSize)
	if _, err := io.CopyBuffer(h, onlyReader{f}, buf); err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to read file for hashing").
			WithContext("path", path).
			Build()
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestReader hashes everything read from r.
func DigestReader(r io.Reader, alg Algorithm) (string, error) {
	h, err := alg.New()
	if err != nil {
		return "", err
	}
	if _, err := io.CopyBuffer(h, onlyReader{r}, make([]byte, ChunkSize)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether the file at path hashes to expected. A mismatch is not an error.
func Verify(path, expected string, alg Algorithm) (bool, error) {
	actual, err := Digest(path, alg)
	if err != nil {
		return false, err
	}
	return Equal(actual, expected), nil
}

// Equal compares two hex digests ignoring case and surrounding whitespace.
func Equal(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Expected is a digest value paired with the algorithm that produced it.
type Expected struct {
	Algorithm Algorithm
	Hex       string
}

// IsZero reports whether no digest is declared.
func (e Expected) IsZero() bool {
	return e.Hex == ""
}

func (e Expected) String() string {
	if e.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s:%s", e.Algorithm, e.Hex)
}

// ParseDigest splits an optional "alg:" prefix from raw. Without a prefix def is used.
// The hex part must have the length the algorithm produces.
func ParseDigest(raw string, def Algorithm) (Expected, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Expected{}, nil
	}
	alg := def
	value := raw
	if prefix, rest, ok := strings.Cut(raw, ":"); ok {
		parsed, err := ParseAlgorithm(prefix)
		if err != nil {
			return Expected{}, err
		}
		alg, value = parsed, rest
	}
	value = strings.ToLower(strings.TrimSpace(value))
	if _, err := hex.DecodeString(value); err != nil || len(value) != alg.HexLen() {
		return Expected{}, ferrors.Configuration("malformed digest").
			WithContext("digest", raw).
			WithContext("algorithm", string(alg)).
			Build()
	}
	return Expected{Algorithm: alg, Hex: value}, nil
}

// onlyReader hides WriterTo/ReaderFrom so io.CopyBuffer uses the fixed-size buffer.
type onlyReader struct {
	io.Reader
}
