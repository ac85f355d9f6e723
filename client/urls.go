// Package client builds the URLs of the IG registry wire protocol.
package client

import (
	"net/url"
	"strings"

	"github.com/git-pkgs/igcache/internal/core"
)

// URLBuilder constructs URLs for a registry.
type URLBuilder interface {
	// Download returns {base}/{name}/{version}.
	Download(name, version string) string

	// Versions returns {base}/{name}, the version listing document.
	Versions(name string) string

	// Catalog returns {base}/catalog?pkgcanonical={canonical}.
	Catalog(canonical string) string

	// PURL returns the Package URL of name@version.
	PURL(name, version string) string
}

// URLs is the URLBuilder for a registry following the FHIR package
// registry layout.
type URLs struct {
	baseURL string
}

// NewURLs creates a URL builder for baseURL. Trailing slashes are ignored.
func NewURLs(baseURL string) *URLs {
	return &URLs{baseURL: NormalizeBaseURL(baseURL)}
}

// BaseURL returns the normalized base URL.
func (u *URLs) BaseURL() string {
	return u.baseURL
}

func (u *URLs) Download(name, version string) string {
	return pathURL(u.baseURL, name, version)
}

func (u *URLs) Versions(name string) string {
	return pathURL(u.baseURL, name)
}

func (u *URLs) Catalog(canonical string) string {
	return pathURL(u.baseURL, "catalog") + "?pkgcanonical=" + url.QueryEscape(canonical)
}

func (u *URLs) PURL(name, version string) string {
	return core.ResolvedName{Name: name, Version: version}.PURL()
}

// NormalizeBaseURL trims whitespace and trailing slashes so equivalent
// registry URLs compare equal.
func NormalizeBaseURL(baseURL string) string {
	return strings.TrimRight(strings.TrimSpace(baseURL), "/")
}

// BuildURLs returns a map of all non-empty URLs for a package.
// Keys are "download", "versions" and "purl".
func BuildURLs(urls URLBuilder, name, version string) map[string]string {
	result := make(map[string]string)
	if v := urls.Download(name, version); v != "" {
		result["download"] = v
	}
	if v := urls.Versions(name); v != "" {
		result["versions"] = v
	}
	if v := urls.PURL(name, version); v != "" {
		result["purl"] = v
	}
	return result
}

// pathURL joins segments onto base with exactly one slash between each and
// path-escapes every segment.
func pathURL(base string, segments ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}
