// Package blob stores file bytes addressed by their SHA-256 checksum.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
)

// ErrNotFound is returned by Get for an unknown key.
var ErrNotFound = errors.New("blob not found")

// Store is a content-addressed byte store. Put is idempotent for a given
// key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Get(ctx context.Context, key string, w io.Writer) error
}

// Checksum returns the hex SHA-256 of data, the key files are stored under.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func validKey(key string) bool {
	if key == "" || len(key) > 256 {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return key != "." && key != ".."
}
