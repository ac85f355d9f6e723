// Package registry talks to FHIR IG package registries. A Registry wraps one
// endpoint; Multi races an operation across every configured endpoint and
// keeps the first success.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/git-pkgs/igcache/client"
	"github.com/git-pkgs/igcache/fetch"
	"github.com/git-pkgs/igcache/internal/core"
)

const acceptJSON = "application/json"

// Registry is a client for a single registry endpoint.
type Registry struct {
	fetcher fetch.FetcherInterface
	urls    *client.URLs
}

// New creates a client for baseURL using fetcher for transport.
func New(baseURL string, fetcher fetch.FetcherInterface) *Registry {
	return &Registry{
		fetcher: fetcher,
		urls:    client.NewURLs(baseURL),
	}
}

// BaseURL returns the normalized endpoint URL.
func (r *Registry) BaseURL() string {
	return r.urls.BaseURL()
}

// Verify probes {base}/{id}[/{version}] and returns the URL if it answers 2xx.
// An empty version probes the package document.
func (r *Registry) Verify(ctx context.Context, id, version string) (string, error) {
	url := r.urls.Download(id, version)
	artifact, err := r.fetcher.Fetch(ctx, url, "")
	if err != nil {
		return "", r.wrap(err, id, version)
	}
	_ = artifact.Body.Close()
	return url, nil
}

type catalogEntry struct {
	Name      string `json:"name"`
	NameUpper string `json:"Name"`
}

// SearchPackageID looks up the package id published under canonical.
func (r *Registry) SearchPackageID(ctx context.Context, canonical string) (string, error) {
	body, err := fetch.FetchBytes(ctx, r.fetcher, r.urls.Catalog(canonical), acceptJSON)
	if err != nil {
		return "", r.wrap(err, canonical, "")
	}

	var entries []catalogEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return "", fmt.Errorf("decoding catalog from %s: %w", r.BaseURL(), err)
	}
	for _, e := range entries {
		if e.Name != "" {
			return e.Name, nil
		}
		if e.NameUpper != "" {
			return e.NameUpper, nil
		}
	}
	return "", &core.NotFoundError{Name: canonical}
}

type versionsResponse struct {
	Versions map[string]json.RawMessage `json:"versions"`
}

// LatestVersion returns the greatest version this registry lists for id.
// Only this registry's listing is considered.
func (r *Registry) LatestVersion(ctx context.Context, id string) (string, error) {
	body, err := fetch.FetchBytes(ctx, r.fetcher, r.urls.Versions(id), acceptJSON)
	if err != nil {
		return "", r.wrap(err, id, core.VersionLatest)
	}

	var resp versionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding versions of %s from %s: %w", id, r.BaseURL(), err)
	}

	versions := make([]string, 0, len(resp.Versions))
	for v := range resp.Versions {
		versions = append(versions, v)
	}
	latest := core.MaxVersion(versions)
	if latest == "" {
		return "", &core.NotFoundError{Name: id, Version: core.VersionLatest}
	}
	return latest, nil
}

// Download fetches the archive bytes of id@version. An empty body counts
// as a failure.
func (r *Registry) Download(ctx context.Context, id, version string) ([]byte, error) {
	body, err := fetch.FetchBytes(ctx, r.fetcher, r.urls.Download(id, version), "")
	if err != nil {
		return nil, r.wrap(err, id, version)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty archive for %s#%s from %s", id, version, r.BaseURL())
	}
	return body, nil
}

// wrap turns "not on this registry" answers into a NotFoundError and leaves
// transport failures as they are.
func (r *Registry) wrap(err error, name, version string) error {
	var statusErr *fetch.StatusError
	if errors.Is(err, fetch.ErrNotFound) || errors.As(err, &statusErr) {
		return &core.NotFoundError{Name: name, Version: version}
	}
	return fmt.Errorf("registry %s: %w", r.BaseURL(), err)
}
