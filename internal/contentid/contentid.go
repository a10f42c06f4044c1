// Package contentid computes content identities (SHA-256 digest plus byte size)
// used as the deduplication key of the fingerprint cache.
package contentid

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrIO is returned when a file cannot be opened or read completely.
var ErrIO = errors.New("io error")

// DigestSize is the length of a digest in bytes.
const DigestSize = sha256.Size

// Digest is a SHA-256 content digest.
type Digest [DigestSize]byte

// String returns the digest as lowercase hex.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest is unset.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// MarshalText implements encoding.TextMarshaler.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDigest parses a hex encoded digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("decoding digest: %w", err)
	}
	if len(b) != DigestSize {
		return d, fmt.Errorf("digest has %d bytes, want %d", len(b), DigestSize)
	}
	copy(d[:], b)
	return d, nil
}

// DigestFromBytes converts a stored digest column back into a Digest.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != DigestSize {
		return d, fmt.Errorf("digest has %d bytes, want %d", len(b), DigestSize)
	}
	copy(d[:], b)
	return d, nil
}

// Identity identifies file content independently of its path.
type Identity struct {
	Digest Digest
	Size   int64
}

// Compute reads r to EOF and returns its identity.
func Compute(r io.Reader) (Identity, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrIO, err)
	}
	var id Identity
	copy(id.Digest[:], h.Sum(nil))
	id.Size = n
	return id, nil
}

// FromFile streams the file at path through SHA-256.
func FromFile(path string) (Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: opening %s: %w", ErrIO, path, err)
	}
	defer f.Close()

	id, err := Compute(f)
	if err != nil {
		return Identity{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return id, nil
}
