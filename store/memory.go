package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/git-pkgs/igcache/internal/core"
)

type memKey struct {
	id      string
	version string
}

type memRow struct {
	rec Record
	seq uint64
}

// Memory is an in-process Store. Rows are ordered by an insertion counter
// so LatestVersion matches the Postgres created_at ordering even when two
// inserts share a timestamp.
type Memory struct {
	mu   sync.RWMutex
	rows map[memKey]*memRow
	seq  uint64
	now  func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		rows: make(map[memKey]*memRow),
		now:  time.Now,
	}
}

func (m *Memory) Exists(ctx context.Context, id, version string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &core.PersistenceError{Op: "exists", Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rows[memKey{id, version}]
	return ok, nil
}

func (m *Memory) ExistsAny(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &core.PersistenceError{Op: "exists", Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k := range m.rows {
		if k.id == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) Get(ctx context.Context, id, version string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, &core.PersistenceError{Op: "get", Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[memKey{id, version}]
	if !ok {
		return nil, &core.NotFoundError{Name: id, Version: version}
	}
	rec := cloneRecord(&row.rec)
	return &rec, nil
}

func (m *Memory) Dependencies(ctx context.Context, id, version string) ([]string, error) {
	rec, err := m.Get(ctx, id, version)
	if err != nil {
		return nil, err
	}
	return rec.Dependencies, nil
}

func (m *Memory) Upsert(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return &core.PersistenceError{Op: "upsert", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memKey{rec.PackageID, rec.PackageVersion}
	stored := cloneRecord(rec)
	if row, ok := m.rows[key]; ok {
		stored.CreatedAt = row.rec.CreatedAt
		row.rec = stored
		return nil
	}

	m.seq++
	stored.CreatedAt = m.now()
	m.rows[key] = &memRow{rec: stored, seq: m.seq}
	return nil
}

func (m *Memory) LatestVersion(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &core.PersistenceError{Op: "latest version", Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *memRow
	for k, row := range m.rows {
		if k.id != id {
			continue
		}
		if latest == nil || row.seq > latest.seq {
			latest = row
		}
	}
	if latest == nil {
		return "", &core.NotFoundError{Name: id, Version: core.VersionLatest}
	}
	return latest.rec.PackageVersion, nil
}

func (m *Memory) Remove(ctx context.Context, id, version string) error {
	if err := ctx.Err(); err != nil {
		return &core.PersistenceError{Op: "remove", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, memKey{id, version})
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &core.PersistenceError{Op: "clear", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.rows)
	return nil
}

// Len returns the number of cached rows.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

func cloneRecord(r *Record) Record {
	c := *r
	c.Meta = slices.Clone(r.Meta)
	c.Content = slices.Clone(r.Content)
	c.Dependencies = slices.Clone(r.Dependencies)
	return c
}
