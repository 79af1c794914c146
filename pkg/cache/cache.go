// Package cache provides byte caches for rendered artifacts and loaded
// documents, with file, Redis and null backends.
//
// The pipeline hashes its inputs into keys via a [Keyer] and stores
// rendered SVG/PNG artifacts so unchanged documents render once. Caching
// is best effort: a miss or a failed Set only costs a recompute.
package cache

import (
	"context"
	"time"
)

// Default TTLs per entry class.
const (
	// TTLDocument bounds how long a parsed document snapshot stays cached.
	TTLDocument = 24 * time.Hour
	// TTLArtifact bounds how long rendered artifacts stay cached.
	TTLArtifact = 7 * 24 * time.Hour
)

// Cache is a byte store with per-entry TTLs.
type Cache interface {
	// Get returns the cached bytes and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores bytes under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Keyer builds cache keys from pipeline inputs.
type Keyer interface {
	// DocumentKey identifies a loaded document revision.
	DocumentKey(name string, version int) string

	// ArtifactKey identifies one rendered artifact of a graph state.
	ArtifactKey(graphHash string, opts ArtifactKeyOpts) string
}

// ArtifactKeyOpts are the render options that change artifact bytes.
type ArtifactKeyOpts struct {
	Format   string `json:"format"`
	Detailed bool   `json:"detailed"`
}

// DefaultKeyer hashes inputs into prefixed SHA-256 keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the standard keyer.
func NewDefaultKeyer() Keyer {
	return &DefaultKeyer{}
}

// DocumentKey generates a key for document caching.
func (k *DefaultKeyer) DocumentKey(name string, version int) string {
	return hashKey("document", name, version)
}

// ArtifactKey generates a key for artifact caching.
func (k *DefaultKeyer) ArtifactKey(graphHash string, opts ArtifactKeyOpts) string {
	return hashKey("artifact", graphHash, opts)
}
