// Package storage defines the object store the audit archive writes to. Backends live in
// subpackages and register themselves by name in init; a binary links only the backends
// it imports.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ObjectStore writes immutable objects. Archive objects are never read back or
// overwritten by the server, so the interface is write-only.
type ObjectStore interface {
	// Put stores data under key
	Put(ctx context.Context, key string, data []byte, contentType string) (*PutResult, error)
	// Close releases client resources
	Close() error
}

// PutResult describes a stored object
type PutResult struct {
	Key        string
	Size       int64
	Checksum   string // SHA256 hex
	UploadedAt time.Time
}

// Checksum returns the SHA256 hex digest of data
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
