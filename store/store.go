// Package store persists IG package archives keyed by (package id, version).
package store

import (
	"context"
	"encoding/json"
	"time"
)

// Record is one cached package.
type Record struct {
	PackageID      string
	PackageVersion string
	Meta           json.RawMessage
	Content        []byte
	Dependencies   []string
	CreatedAt      time.Time
}

// Store is the persistent package cache.
//
// Absent rows are reported as *core.NotFoundError. Every failure of the
// underlying storage is reported as *core.PersistenceError.
type Store interface {
	// Exists reports whether (id, version) is cached.
	Exists(ctx context.Context, id, version string) (bool, error)

	// ExistsAny reports whether any version of id is cached.
	ExistsAny(ctx context.Context, id string) (bool, error)

	// Get returns the cached record for (id, version).
	Get(ctx context.Context, id, version string) (*Record, error)

	// Dependencies returns the declared dependencies of (id, version)
	// without loading the archive bytes.
	Dependencies(ctx context.Context, id, version string) ([]string, error)

	// Upsert inserts rec or replaces meta, content and dependencies of the
	// existing row. CreatedAt of an existing row never changes.
	Upsert(ctx context.Context, rec *Record) error

	// LatestVersion returns the version of the most recently inserted row
	// for id. This is insertion order, not semantic version order.
	LatestVersion(ctx context.Context, id string) (string, error)

	// Remove deletes (id, version). Removing an absent row is not an error.
	Remove(ctx context.Context, id, version string) error

	// Clear deletes every row.
	Clear(ctx context.Context) error
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)
