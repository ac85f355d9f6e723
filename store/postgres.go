package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/git-pkgs/igcache/internal/core"
)

// Schema creates the cache table. Production databases are migrated
// externally; this is for development and tests.
const Schema = `
CREATE TABLE IF NOT EXISTS fhir_implementation_guides (
	ig_package_id      TEXT        NOT NULL,
	ig_package_version TEXT        NOT NULL,
	ig_package_meta    JSONB,
	content_raw        BYTEA,
	dependencies       TEXT[],
	created_at         TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
	PRIMARY KEY (ig_package_id, ig_package_version)
)`

const (
	sqlExists = `SELECT EXISTS (SELECT 1 FROM fhir_implementation_guides
		WHERE ig_package_id = $1 AND ig_package_version = $2)`

	sqlExistsAny = `SELECT EXISTS (SELECT 1 FROM fhir_implementation_guides
		WHERE ig_package_id = $1)`

	sqlGet = `SELECT ig_package_id, ig_package_version, ig_package_meta, content_raw, dependencies, created_at
		FROM fhir_implementation_guides
		WHERE ig_package_id = $1 AND ig_package_version = $2`

	sqlDependencies = `SELECT dependencies FROM fhir_implementation_guides
		WHERE ig_package_id = $1 AND ig_package_version = $2`

	sqlUpsert = `INSERT INTO fhir_implementation_guides
		(ig_package_id, ig_package_version, ig_package_meta, content_raw, dependencies, created_at)
		VALUES ($1, $2, $3::jsonb, $4, $5, clock_timestamp())
		ON CONFLICT (ig_package_id, ig_package_version) DO UPDATE SET
			ig_package_meta = EXCLUDED.ig_package_meta,
			content_raw     = EXCLUDED.content_raw,
			dependencies    = EXCLUDED.dependencies`

	sqlLatest = `SELECT ig_package_version FROM fhir_implementation_guides
		WHERE ig_package_id = $1
		ORDER BY created_at DESC LIMIT 1`

	sqlRemove = `DELETE FROM fhir_implementation_guides
		WHERE ig_package_id = $1 AND ig_package_version = $2`

	sqlClear = `DELETE FROM fhir_implementation_guides`
)

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// PostgresOption configures a Postgres store.
type PostgresOption func(*Postgres)

// WithLogger sets the logger for persistence failures.
func WithLogger(l *zap.Logger) PostgresOption {
	return func(p *Postgres) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPostgres wraps an existing pool. The caller owns the pool.
func NewPostgres(pool *pgxpool.Pool, opts ...PostgresOption) *Postgres {
	p := &Postgres{pool: pool, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OpenPostgres connects to dsn and checks the connection. maxConns <= 0
// keeps the pgxpool default.
func OpenPostgres(ctx context.Context, dsn string, maxConns int32, opts ...PostgresOption) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, &core.PersistenceError{Op: "parse dsn", Err: err}
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, &core.PersistenceError{Op: "connect", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &core.PersistenceError{Op: "ping", Err: err}
	}
	return NewPostgres(pool, opts...), nil
}

// CreateSchema runs Schema.
func (p *Postgres) CreateSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return p.fail("create schema", err)
	}
	return nil
}

// Close closes the underlying pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Exists(ctx context.Context, id, version string) (bool, error) {
	var ok bool
	if err := p.pool.QueryRow(ctx, sqlExists, id, version).Scan(&ok); err != nil {
		return false, p.fail("exists", err)
	}
	return ok, nil
}

func (p *Postgres) ExistsAny(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := p.pool.QueryRow(ctx, sqlExistsAny, id).Scan(&ok); err != nil {
		return false, p.fail("exists", err)
	}
	return ok, nil
}

func (p *Postgres) Get(ctx context.Context, id, version string) (*Record, error) {
	var rec Record
	var meta []byte
	err := p.pool.QueryRow(ctx, sqlGet, id, version).Scan(
		&rec.PackageID, &rec.PackageVersion, &meta, &rec.Content, &rec.Dependencies, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &core.NotFoundError{Name: id, Version: version}
	}
	if err != nil {
		return nil, p.fail("get", err)
	}
	rec.Meta = meta
	return &rec, nil
}

func (p *Postgres) Dependencies(ctx context.Context, id, version string) ([]string, error) {
	var deps []string
	err := p.pool.QueryRow(ctx, sqlDependencies, id, version).Scan(&deps)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &core.NotFoundError{Name: id, Version: version}
	}
	if err != nil {
		return nil, p.fail("dependencies", err)
	}
	return deps, nil
}

func (p *Postgres) Upsert(ctx context.Context, rec *Record) error {
	deps := rec.Dependencies
	if deps == nil {
		deps = []string{}
	}
	var meta any
	if len(rec.Meta) > 0 {
		meta = string(rec.Meta)
	}

	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, sqlUpsert, rec.PackageID, rec.PackageVersion, meta, rec.Content, deps)
		return err
	})
	if err != nil {
		return p.fail("upsert", err)
	}
	return nil
}

func (p *Postgres) LatestVersion(ctx context.Context, id string) (string, error) {
	var version string
	err := p.pool.QueryRow(ctx, sqlLatest, id).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", &core.NotFoundError{Name: id, Version: core.VersionLatest}
	}
	if err != nil {
		return "", p.fail("latest version", err)
	}
	return version, nil
}

func (p *Postgres) Remove(ctx context.Context, id, version string) error {
	if _, err := p.pool.Exec(ctx, sqlRemove, id, version); err != nil {
		return p.fail("remove", err)
	}
	return nil
}

func (p *Postgres) Clear(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, sqlClear); err != nil {
		return p.fail("clear", err)
	}
	return nil
}

func (p *Postgres) fail(op string, err error) error {
	p.logger.Error("cache store failure", zap.String("op", op), zap.Error(err))
	return &core.PersistenceError{Op: op, Err: fmt.Errorf("postgres: %w", err)}
}
