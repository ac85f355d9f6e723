package registry

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/git-pkgs/igcache/client"
	"github.com/git-pkgs/igcache/fetch"
	"github.com/git-pkgs/igcache/internal/core"
)

// DefaultRegistries are used when no registry is configured.
var DefaultRegistries = []string{
	"https://packages.fhir.org",
	"https://packages2.fhir.org",
}

// Multi fans each operation out to all configured registries and keeps the
// first success. The endpoint list only grows.
type Multi struct {
	fetcher fetch.FetcherInterface
	logger  *zap.Logger

	mu         sync.RWMutex
	registries []*Registry
}

// Option configures a Multi.
type Option func(*Multi)

// WithLogger sets the logger used for per-registry failures.
func WithLogger(l *zap.Logger) Option {
	return func(m *Multi) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMulti creates a fetcher over baseURLs. Duplicates are dropped.
func NewMulti(fetcher fetch.FetcherInterface, baseURLs []string, opts ...Option) *Multi {
	m := &Multi{
		fetcher: fetcher,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, u := range baseURLs {
		m.Add(u)
	}
	return m
}

// Add appends baseURL to the endpoint list. It reports false when the URL
// is empty or already configured.
func (m *Multi) Add(baseURL string) bool {
	baseURL = client.NormalizeBaseURL(baseURL)
	if baseURL == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.registries {
		if r.BaseURL() == baseURL {
			return false
		}
	}
	m.registries = append(m.registries, New(baseURL, m.fetcher))
	m.logger.Info("registry added", zap.String("registry", baseURL))
	return true
}

// Registries returns the configured base URLs in insertion order.
func (m *Multi) Registries() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	urls := make([]string, len(m.registries))
	for i, r := range m.registries {
		urls[i] = r.BaseURL()
	}
	return urls
}

func (m *Multi) snapshot() []*Registry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.registries)
}

// Verify returns the URL of the first registry that answers 2xx for ref.
// A latest reference probes the package document instead of a version.
func (m *Multi) Verify(ctx context.Context, ref core.Reference) (string, bool) {
	version := ref.Version
	if ref.IsLatest() {
		version = ""
	}
	return firstSuccess(ctx, m.logger, "verify", m.snapshot(), func(ctx context.Context, r *Registry) (string, error) {
		return r.Verify(ctx, ref.Name, version)
	})
}

// SearchPackageID returns the package id published under canonical.
func (m *Multi) SearchPackageID(ctx context.Context, canonical string) (string, bool) {
	return firstSuccess(ctx, m.logger, "catalog", m.snapshot(), func(ctx context.Context, r *Registry) (string, error) {
		return r.SearchPackageID(ctx, canonical)
	})
}

// LatestVersion returns the maximum version reported by whichever registry
// answers first. Listings from different registries are never merged.
func (m *Multi) LatestVersion(ctx context.Context, id string) (string, bool) {
	return firstSuccess(ctx, m.logger, "versions", m.snapshot(), func(ctx context.Context, r *Registry) (string, error) {
		return r.LatestVersion(ctx, id)
	})
}

// Download returns the archive bytes of id@version from the first registry
// that serves them.
func (m *Multi) Download(ctx context.Context, id, version string) ([]byte, bool) {
	return firstSuccess(ctx, m.logger, "download", m.snapshot(), func(ctx context.Context, r *Registry) ([]byte, error) {
		return r.Download(ctx, id, version)
	})
}
