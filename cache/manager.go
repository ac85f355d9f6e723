// Package cache decides when a package is served from the store and when it
// is fetched from the registries, and resolves dependency graphs.
package cache

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/git-pkgs/igcache/internal/archive"
	"github.com/git-pkgs/igcache/internal/core"
	"github.com/git-pkgs/igcache/store"
)

// Registries is the network side of the cache. *registry.Multi satisfies it.
// A false result means no registry could answer.
type Registries interface {
	Download(ctx context.Context, id, version string) ([]byte, bool)
	LatestVersion(ctx context.Context, id string) (string, bool)
}

// LoadOptions controls LoadPackage.
type LoadOptions struct {
	// CacheOnly forbids every registry call.
	CacheOnly bool

	// LoadDependencies resolves the dependency graph of a package fetched
	// from a registry. Cached packages are returned as they are.
	LoadDependencies bool
}

// Manager is the package cache.
type Manager struct {
	store      store.Store
	registries Registries
	parser     *archive.Parser
	logger     *zap.Logger
	resolver   *Resolver
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithParser sets the archive parser and its worker bound.
func WithParser(p *archive.Parser) Option {
	return func(m *Manager) {
		if p != nil {
			m.parser = p
		}
	}
}

// NewManager creates a cache over s. registries may be nil, in which case
// every miss is final.
func NewManager(s store.Store, registries Registries, opts ...Option) *Manager {
	m := &Manager{
		store:      s,
		registries: registries,
		parser:     archive.NewParser(0),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.resolver = &Resolver{manager: m, logger: m.logger}
	return m
}

// Store returns the underlying store.
func (m *Manager) Store() store.Store {
	return m.store
}

// ResolveName turns ref into a concrete name. A pinned version is used as
// is. Otherwise the most recently cached version wins, then, unless
// cacheOnly is set, the version reported by the first registry to answer.
func (m *Manager) ResolveName(ctx context.Context, ref core.Reference, cacheOnly bool) (core.ResolvedName, error) {
	if ref.Name == "" {
		return core.ResolvedName{}, &core.ValidationError{Reason: "package name is empty"}
	}
	if name, ok := ref.Resolved(); ok {
		return name, nil
	}

	version, err := m.store.LatestVersion(ctx, ref.Name)
	switch {
	case err == nil:
		return core.ResolvedName{Name: ref.Name, Version: version}, nil
	case !errors.Is(err, core.ErrNotFound):
		return core.ResolvedName{}, err
	}

	if !cacheOnly && m.registries != nil {
		version, ok := m.registries.LatestVersion(ctx, ref.Name)
		if ok {
			name, err := core.NewResolvedName(ref.Name, version)
			if err == nil {
				return name, nil
			}
			m.logger.Warn("registry reported an unusable latest version",
				zap.String("package", ref.Name), zap.String("version", version))
		} else if err := ctx.Err(); err != nil {
			return core.ResolvedName{}, err
		}
	}
	return core.ResolvedName{}, &core.NotFoundError{Name: ref.Name, Version: core.VersionLatest}
}

// LoadPackage returns the archive for ref. A miss returns *core.NotFoundError
// when opts.CacheOnly is set; no registry is contacted on that path.
func (m *Manager) LoadPackage(ctx context.Context, ref core.Reference, opts LoadOptions) (*core.Archive, error) {
	name, err := m.ResolveName(ctx, ref, opts.CacheOnly)
	if err != nil {
		return nil, err
	}

	a, err := m.loadCached(ctx, name)
	if err == nil || !errors.Is(err, core.ErrNotFound) {
		return a, err
	}
	if opts.CacheOnly {
		return nil, err
	}

	if opts.LoadDependencies {
		return m.FetchWithDependencies(ctx, name)
	}
	return m.FetchAndStore(ctx, name)
}

func (m *Manager) loadCached(ctx context.Context, name core.ResolvedName) (*core.Archive, error) {
	rec, err := m.store.Get(ctx, name.Name, name.Version)
	if err != nil {
		return nil, err
	}
	return m.parser.Parse(ctx, rec.Content)
}

// FetchAndStore downloads name from the registries, parses it and upserts
// it. It never reads the cache first. When ctx ends before any registry
// answers, ctx.Err() is returned instead of *core.NotFoundError.
func (m *Manager) FetchAndStore(ctx context.Context, name core.ResolvedName) (*core.Archive, error) {
	if m.registries == nil {
		return nil, &core.NotFoundError{Name: name.Name, Version: name.Version}
	}

	raw, ok := m.registries.Download(ctx, name.Name, name.Version)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, &core.NotFoundError{Name: name.Name, Version: name.Version}
	}

	a, err := m.parser.Parse(ctx, raw)
	if err != nil {
		return nil, err
	}
	if got := a.ResolvedName(); got != name {
		m.logger.Warn("registry served a different package than requested",
			zap.Stringer("requested", name), zap.Stringer("received", got))
	}

	if err := m.persist(ctx, a, raw); err != nil {
		return nil, err
	}
	m.logger.Info("package fetched", zap.Stringer("package", a.ResolvedName()), zap.Int("bytes", len(raw)))
	return a, nil
}

// AddArchive parses raw and upserts it. A parse failure is returned as
// *core.ValidationError and nothing is stored.
func (m *Manager) AddArchive(ctx context.Context, raw []byte) (*core.Archive, error) {
	a, err := m.parser.Parse(ctx, raw)
	if err != nil {
		return nil, err
	}
	if err := m.persist(ctx, a, raw); err != nil {
		return nil, err
	}
	m.logger.Info("package added", zap.Stringer("package", a.ResolvedName()), zap.Int("bytes", len(raw)))
	return a, nil
}

func (m *Manager) persist(ctx context.Context, a *core.Archive, raw []byte) error {
	meta, err := archive.MarshalMeta(a)
	if err != nil {
		return &core.ValidationError{Reason: "encoding metadata", Err: err}
	}
	return m.store.Upsert(ctx, &store.Record{
		PackageID:      a.Name,
		PackageVersion: a.Version,
		Meta:           meta,
		Content:        raw,
		Dependencies:   a.Dependencies,
	})
}

// FetchWithDependencies fetches root from the registries and then its
// transitive dependencies. Dependency failures are logged, never returned.
func (m *Manager) FetchWithDependencies(ctx context.Context, root core.ResolvedName) (*core.Archive, error) {
	visited := NewVisitedSet(root.Name)
	a, err := m.resolver.FetchWithDependencies(ctx, root, visited)
	if err != nil {
		visited.Set(root.Name, FailedIgnored)
		return nil, err
	}
	visited.Set(root.Name, Fetched)
	m.logResolution(root, visited)
	return a, nil
}

// ResolveDependencies fetches the missing dependencies of an archive that is
// already stored, such as an uploaded one.
func (m *Manager) ResolveDependencies(ctx context.Context, a *core.Archive) *VisitedSet {
	visited := NewVisitedSet(a.Name)
	m.resolver.ResolveDependencies(ctx, a, visited)
	visited.Set(a.Name, CachedHit)
	m.logResolution(a.ResolvedName(), visited)
	return visited
}

func (m *Manager) logResolution(root core.ResolvedName, visited *VisitedSet) {
	counts := visited.Counts()
	m.logger.Info("dependency resolution finished",
		zap.Stringer("package", root),
		zap.Int("visited", visited.Len()),
		zap.Int("cached", counts[CachedHit]),
		zap.Int("fetched", counts[Fetched]),
		zap.Int("failed", counts[FailedIgnored]),
	)
}

// LoadWithDependencies returns the cached archive for ref followed by every
// direct non-core dependency that is also cached. Missing dependencies are
// left out. The registries are never contacted.
func (m *Manager) LoadWithDependencies(ctx context.Context, ref core.Reference) ([]*core.Archive, error) {
	root, err := m.LoadPackage(ctx, ref, LoadOptions{CacheOnly: true})
	if err != nil {
		return nil, err
	}

	archives := []*core.Archive{root}
	for _, dep := range root.Dependencies {
		depRef := core.ParseReference(dep)
		if depRef.Name == "" || core.IsCorePackage(depRef.Name) {
			continue
		}
		a, err := m.LoadPackage(ctx, depRef, LoadOptions{CacheOnly: true})
		if errors.Is(err, core.ErrNotFound) {
			m.logger.Debug("dependency not cached", zap.Stringer("package", root.ResolvedName()), zap.String("dependency", dep))
			continue
		}
		if err != nil {
			return nil, err
		}
		archives = append(archives, a)
	}
	return archives, nil
}
