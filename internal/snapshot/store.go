// Package snapshot persists compressed zone images across a tiered set of
// backends: process memory for tests, the local filesystem for
// development, badger for the warm tier, and S3-compatible object storage
// for the cold tier.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/AgenticGames/miningspice/pkg/domain"
)

// Driver identifies a concrete snapshot backend implementation.
type Driver string

const (
	// DriverMemory is the in-memory implementation, used in tests.
	DriverMemory Driver = "memory"
	// DriverFilesystem is the local filesystem implementation.
	DriverFilesystem Driver = "fs"
	// DriverBadger is the embedded key-value warm tier.
	DriverBadger Driver = "badger"
	// DriverS3 is the S3 / MinIO compatible cold tier.
	DriverS3 Driver = "s3"
)

// Meta travels with a snapshot payload and is required to restore it:
// the codec it was packed under and the zone it came from.
type Meta struct {
	// Codec names the compression codec of the payload.
	Codec string `json:"codec"`
	// Kind is the zone kind the region belongs to.
	Kind string `json:"kind,omitempty"`
	// Zone is the packed zone identifier.
	Zone domain.ZoneID `json:"zone"`
	// RawSize is the uncompressed payload size in bytes.
	RawSize int64 `json:"raw_size"`
	// SchemaVersion is the zone kind's schema version at capture time.
	SchemaVersion uint32 `json:"schema_version,omitempty"`
}

// Info describes a stored snapshot.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ETag         string    `json:"etag,omitempty"`
	Meta         Meta      `json:"meta"`
	LastModified time.Time `json:"last_modified"`
}

// Store is the backend contract. Semantics mirror a minimal subset of S3
// so the object-storage adapter is nearly 1:1 while the filesystem and
// badger adapters emulate them. Unlike general blob storage, Put
// overwrites: re-hibernating a zone replaces its previous image.
type Store interface {
	// Put stores or replaces the snapshot at key.
	Put(ctx context.Context, key string, r io.Reader, meta Meta) (Info, error)
	// Get retrieves the snapshot contents and metadata.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// Head returns metadata only.
	Head(ctx context.Context, key string) (Info, error)
	// Delete removes a snapshot. Returns (false, nil) if not found.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns snapshots whose key has the provided prefix, ordered
	// by key ascending.
	List(ctx context.Context, prefix string) ([]Info, error)
	// Driver returns the configured backend driver.
	Driver() Driver
	// Close releases backend resources.
	Close() error
}

// ErrNotFound is returned when a key holds no snapshot.
var ErrNotFound = errors.New("snapshot: not found")

// ZoneKey builds the canonical object key for a zone snapshot.
func ZoneKey(kind string, zone domain.ZoneID) string {
	if kind == "" {
		kind = "default"
	}
	c := zone.Coord()
	return fmt.Sprintf("zones/%s/%d.%d.%d.snap", kind, c.X, c.Y, c.Z)
}

// KindPrefix is the key prefix covering every snapshot of a zone kind.
func KindPrefix(kind string) string {
	if kind == "" {
		kind = "default"
	}
	return "zones/" + kind + "/"
}

// sanitizeKey forbids traversal and absolute paths so filesystem-backed
// stores cannot escape their root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key contains '..'")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key")
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid key traversal")
	}
	return clean, nil
}
