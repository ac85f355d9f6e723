// Package igcache caches FHIR Implementation Guide packages.
//
// Packages are looked up in a persistent store first and fetched from a set
// of IG registries on a miss, racing every registry and keeping the first
// answer. Dependencies are resolved recursively into the same store.
//
// Basic usage:
//
//	f := fetch.NewFetcher()
//	defer f.Close()
//
//	svc := igcache.New(store.NewMemory(), fetch.NewCircuitBreakerFetcher(f, 0), registry.DefaultRegistries)
//	ig, err := svc.RegisterIG(ctx, "hl7.fhir.us.core", "6.1.0", true)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(ig.Name, ig.Version, ig.Dependencies)
//
// Validation paths that must never block on the network load cache-only:
//
//	ig, err := svc.LoadIGPackage(ctx, "hl7.fhir.us.core", "6.1.0")
//	if errors.Is(err, igcache.ErrNotFound) {
//		// not registered yet
//	}
package igcache

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/git-pkgs/igcache/cache"
	"github.com/git-pkgs/igcache/fetch"
	"github.com/git-pkgs/igcache/internal/archive"
	"github.com/git-pkgs/igcache/internal/core"
	"github.com/git-pkgs/igcache/registry"
	"github.com/git-pkgs/igcache/store"
)

// Re-export types from internal/core
type (
	// Archive is a parsed IG package.
	Archive = core.Archive

	// Reference is a loose package reference such as "name#latest".
	Reference = core.Reference

	// ResolvedName is a package identity with a concrete version.
	ResolvedName = core.ResolvedName

	// NotFoundError reports a package that is neither cached nor reachable.
	NotFoundError = core.NotFoundError

	// ValidationError reports archive bytes or input that cannot be accepted.
	ValidationError = core.ValidationError

	// PersistenceError reports a failure of the cache store.
	PersistenceError = core.PersistenceError
)

// ErrNotFound matches every absent result via errors.Is.
var ErrNotFound = core.ErrNotFound

// VersionLatest asks for the newest known version.
const VersionLatest = core.VersionLatest

// ParseReference splits "name#version" on the first '#'.
func ParseReference(text string) Reference {
	return core.ParseReference(text)
}

// IsCorePackage reports whether name is a bundled FHIR core package.
func IsCorePackage(name string) bool {
	return core.IsCorePackage(name)
}

// DependencyGraph is the single-level dependency list of a cached package.
type DependencyGraph struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Dependencies []string `json:"dependencies"`
}

// ConformanceResource names one resource file of a package.
type ConformanceResource struct {
	Resource string `json:"resource"`
}

// ConformanceReport lists the conformance resources of a cached package.
type ConformanceReport struct {
	Name        string                `json:"name"`
	Version     string                `json:"version"`
	Resources   []ConformanceResource `json:"resources"`
	Conformance string                `json:"conformance"`
}

// Service is the entry point for registering, loading and inspecting IG
// packages. Construct one per process.
type Service struct {
	manager *cache.Manager
	multi   *registry.Multi
	fetcher fetch.FetcherInterface
	logger  *zap.Logger
	workers int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger passed to every component.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithParseWorkers bounds concurrent archive parsing. n <= 0 means one per CPU.
func WithParseWorkers(n int) Option {
	return func(s *Service) {
		s.workers = n
	}
}

// New creates a Service over st. f carries every registry request and
// registryURLs is the initial registry list, which may be empty.
func New(st store.Store, f fetch.FetcherInterface, registryURLs []string, opts ...Option) *Service {
	s := &Service{
		fetcher: f,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.multi = registry.NewMulti(f, registryURLs, registry.WithLogger(s.logger.Named("registry")))
	s.manager = cache.NewManager(st, s.multi,
		cache.WithLogger(s.logger.Named("cache")),
		cache.WithParser(archive.NewParser(s.workers)),
	)
	return s
}

// RegisterIG loads name@version, fetching it from the registries on a miss.
// An empty version or "latest" resolves to the newest cached version, then to
// the newest version the first registry reports. With loadDependencies the
// dependency graph of a fetched package is resolved as well.
func (s *Service) RegisterIG(ctx context.Context, name, version string, loadDependencies bool) (*Archive, error) {
	a, err := s.manager.LoadPackage(ctx, Reference{Name: name, Version: version}, cache.LoadOptions{
		LoadDependencies: loadDependencies,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("IG registered", zap.Stringer("package", a.ResolvedName()))
	return a, nil
}

// RegisterArchive stores raw archive bytes. With loadDependencies every
// missing non-core dependency is fetched. Dependency failures are logged and
// do not fail the registration.
func (s *Service) RegisterArchive(ctx context.Context, raw []byte, loadDependencies bool) (*Archive, error) {
	a, err := s.manager.AddArchive(ctx, raw)
	if err != nil {
		return nil, err
	}
	if loadDependencies {
		s.manager.ResolveDependencies(ctx, a)
	}
	s.logger.Info("IG archive registered", zap.Stringer("package", a.ResolvedName()))
	return a, nil
}

// RegisterFromURL downloads an archive from url and registers it.
func (s *Service) RegisterFromURL(ctx context.Context, url string, loadDependencies bool) (*Archive, error) {
	raw, err := fetch.FetchBytes(ctx, s.fetcher, url, "")
	if errors.Is(err, fetch.ErrNotFound) {
		return nil, &NotFoundError{Name: url}
	}
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", url, err)
	}
	return s.RegisterArchive(ctx, raw, loadDependencies)
}

// LoadIGPackage returns a cached package. It never contacts a registry.
func (s *Service) LoadIGPackage(ctx context.Context, name, version string) (*Archive, error) {
	return s.manager.LoadPackage(ctx, Reference{Name: name, Version: version}, cache.LoadOptions{CacheOnly: true})
}

// LoadIGPackageWithDependencies returns a cached package followed by its
// cached direct dependencies. It never contacts a registry.
func (s *Service) LoadIGPackageWithDependencies(ctx context.Context, name, version string) ([]*Archive, error) {
	return s.manager.LoadWithDependencies(ctx, Reference{Name: name, Version: version})
}

// DependencyGraph returns the stored dependency list of name@version
// verbatim. A package that is not cached has an empty list.
func (s *Service) DependencyGraph(ctx context.Context, name, version string) (*DependencyGraph, error) {
	graph := &DependencyGraph{Name: name, Version: version, Dependencies: []string{}}

	resolved, err := s.manager.ResolveName(ctx, Reference{Name: name, Version: version}, true)
	if errors.Is(err, ErrNotFound) {
		return graph, nil
	}
	if err != nil {
		return nil, err
	}
	graph.Version = resolved.Version

	deps, err := s.manager.Store().Dependencies(ctx, resolved.Name, resolved.Version)
	if errors.Is(err, ErrNotFound) {
		return graph, nil
	}
	if err != nil {
		return nil, err
	}
	if deps != nil {
		graph.Dependencies = deps
	}
	return graph, nil
}

// ConformanceReport lists the resource files of a cached package.
func (s *Service) ConformanceReport(ctx context.Context, name, version string) (*ConformanceReport, error) {
	a, err := s.LoadIGPackage(ctx, name, version)
	if err != nil {
		return nil, err
	}

	files := a.Resources()
	report := &ConformanceReport{
		Name:        a.Name,
		Version:     a.Version,
		Resources:   make([]ConformanceResource, len(files)),
		Conformance: "basic",
	}
	for i, f := range files {
		report.Resources[i] = ConformanceResource{Resource: f}
	}
	return report, nil
}

// PackageExists reports whether name@version is cached. An empty version or
// "latest" matches any cached version.
func (s *Service) PackageExists(ctx context.Context, name, version string) (bool, error) {
	if (Reference{Name: name, Version: version}).IsLatest() {
		return s.manager.Store().ExistsAny(ctx, name)
	}
	return s.manager.Store().Exists(ctx, name, version)
}

// ResolveLatestVersion returns the most recently cached version of name.
func (s *Service) ResolveLatestVersion(ctx context.Context, name string) (string, error) {
	return s.manager.Store().LatestVersion(ctx, name)
}

// RemovePackage deletes name@version from the cache. Removing an absent
// package is not an error.
func (s *Service) RemovePackage(ctx context.Context, name, version string) error {
	return s.manager.Store().Remove(ctx, name, version)
}

// ClearCache deletes every cached package.
func (s *Service) ClearCache(ctx context.Context) error {
	return s.manager.Store().Clear(ctx)
}

// AddRegistry appends a registry. It reports false for an empty or already
// configured URL.
func (s *Service) AddRegistry(baseURL string) bool {
	return s.multi.Add(baseURL)
}

// Registries returns the configured registry URLs.
func (s *Service) Registries() []string {
	return s.multi.Registries()
}

// PackageURL returns the URL of ref on the first registry that serves it.
func (s *Service) PackageURL(ctx context.Context, ref string) (string, bool) {
	return s.multi.Verify(ctx, ParseReference(ref))
}

// PackageID returns the id of the package published under canonical.
func (s *Service) PackageID(ctx context.Context, canonical string) (string, bool) {
	return s.multi.SearchPackageID(ctx, canonical)
}

// RegistryHealth returns the circuit breaker state of every registry host
// contacted so far, when the fetcher tracks them.
func (s *Service) RegistryHealth() map[string]string {
	if cb, ok := s.fetcher.(interface{ GetBreakerState() map[string]string }); ok {
		return cb.GetBreakerState()
	}
	return map[string]string{}
}
