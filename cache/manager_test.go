package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-pkgs/igcache/internal/core"
	"github.com/git-pkgs/igcache/internal/testutil"
	"github.com/git-pkgs/igcache/store"
)

// fakeRegistries serves archives from memory and counts every call.
type fakeRegistries struct {
	mu        sync.Mutex
	archives  map[string][]byte
	latest    map[string]string
	downloads map[string]int
	listings  int
}

func newFakeRegistries() *fakeRegistries {
	return &fakeRegistries{
		archives:  make(map[string][]byte),
		latest:    make(map[string]string),
		downloads: make(map[string]int),
	}
}

func (f *fakeRegistries) add(t *testing.T, p testutil.Package) []byte {
	t.Helper()
	raw := testutil.BuildArchive(t, p)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archives[p.Name+"#"+p.Version] = raw
	return raw
}

func (f *fakeRegistries) Download(_ context.Context, id, version string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := id + "#" + version
	f.downloads[key]++
	raw, ok := f.archives[key]
	return raw, ok
}

func (f *fakeRegistries) LatestVersion(_ context.Context, id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listings++
	v, ok := f.latest[id]
	return v, ok
}

func (f *fakeRegistries) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.listings
	for _, c := range f.downloads {
		n += c
	}
	return n
}

func (f *fakeRegistries) downloadsOf(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads[key]
}

func TestLoadPackageCacheOnlyMissMakesNoCalls(t *testing.T) {
	regs := newFakeRegistries()
	regs.add(t, testutil.Package{Name: "acme.ig", Version: "1.0.0"})
	regs.latest["acme.ig"] = "1.0.0"
	m := NewManager(store.NewMemory(), regs)

	for _, ref := range []string{"acme.ig#1.0.0", "acme.ig", "acme.ig#latest"} {
		_, err := m.LoadPackage(context.Background(), core.ParseReference(ref), LoadOptions{CacheOnly: true, LoadDependencies: true})
		assert.True(t, errors.Is(err, core.ErrNotFound), "%s: err = %v", ref, err)
	}
	assert.Equal(t, 0, regs.calls())
}

func TestAddArchiveRoundTrip(t *testing.T) {
	m := NewManager(store.NewMemory(), nil)
	raw := testutil.BuildArchive(t, testutil.Package{
		Name:         "acme.ig",
		Version:      "1.0.0",
		Canonical:    "http://acme.org/fhir",
		FHIRVersions: []string{"4.0.1"},
		Dependencies: map[string]string{"acme.lib": "2.0.0", "hl7.fhir.r4.core": "4.0.1"},
	})

	added, err := m.AddArchive(context.Background(), raw)
	require.NoError(t, err)

	loaded, err := m.LoadPackage(context.Background(), core.ParseReference("acme.ig#1.0.0"), LoadOptions{CacheOnly: true})
	require.NoError(t, err)
	assert.Equal(t, added.Name, loaded.Name)
	assert.Equal(t, added.Version, loaded.Version)
	assert.Equal(t, added.Dependencies, loaded.Dependencies)
	assert.Equal(t, []string{"acme.lib#2.0.0", "hl7.fhir.r4.core#4.0.1"}, loaded.Dependencies)

	rec, err := m.Store().Get(context.Background(), "acme.ig", "1.0.0")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"1.0.0","canonical":"http://acme.org/fhir","name":"acme.ig","url":"http://acme.org/fhir","fhirVersion":"4.0.1","fhirVersions":["4.0.1"]}`, string(rec.Meta))
}

func TestAddArchiveIdempotent(t *testing.T) {
	s := store.NewMemory()
	m := NewManager(s, nil)
	raw := testutil.BuildArchive(t, testutil.Package{Name: "acme.ig", Version: "1.0.0"})

	_, err := m.AddArchive(context.Background(), raw)
	require.NoError(t, err)
	_, err = m.AddArchive(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, 1, s.Len())
}

func TestAddArchiveInvalid(t *testing.T) {
	s := store.NewMemory()
	m := NewManager(s, nil)

	_, err := m.AddArchive(context.Background(), []byte("not an archive"))
	require.Error(t, err)
	assert.True(t, core.IsValidation(err), "err = %v", err)
	assert.False(t, errors.Is(err, core.ErrNotFound))
	assert.Equal(t, 0, s.Len())
}

func TestLoadPackageFetchesOnMiss(t *testing.T) {
	regs := newFakeRegistries()
	regs.add(t, testutil.Package{Name: "acme.ig", Version: "1.0.0"})
	s := store.NewMemory()
	m := NewManager(s, regs)

	a, err := m.LoadPackage(context.Background(), core.ParseReference("acme.ig#1.0.0"), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "acme.ig", a.Name)
	assert.Equal(t, 1, regs.downloadsOf("acme.ig#1.0.0"))

	// Second load is a cache hit.
	_, err = m.LoadPackage(context.Background(), core.ParseReference("acme.ig#1.0.0"), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, regs.downloadsOf("acme.ig#1.0.0"))
	assert.Equal(t, 1, s.Len())
}

func TestLoadPackageTotalFetchFailure(t *testing.T) {
	m := NewManager(store.NewMemory(), newFakeRegistries())

	_, err := m.LoadPackage(context.Background(), core.ParseReference("acme.ig#1.0.0"), LoadOptions{})
	assert.True(t, errors.Is(err, core.ErrNotFound), "err = %v", err)
}

func TestResolveName(t *testing.T) {
	ctx := context.Background()
	regs := newFakeRegistries()
	regs.latest["acme.remote"] = "3.1.0"
	regs.latest["acme.unusable"] = core.VersionLatest
	s := store.NewMemory()
	m := NewManager(s, regs)

	for _, v := range []string{"1.0.0", "2.0.0", "1.5.0"} {
		_, err := m.AddArchive(ctx, testutil.BuildArchive(t, testutil.Package{Name: "acme.ig", Version: v}))
		require.NoError(t, err)
	}

	tests := []struct {
		ref       string
		cacheOnly bool
		want      string
		wantErr   error
	}{
		{"acme.ig#2.0.0", true, "2.0.0", nil},
		{"acme.ig", true, "1.5.0", nil},
		{"acme.ig#latest", false, "1.5.0", nil},
		{"acme.remote", false, "3.1.0", nil},
		{"acme.remote", true, "", core.ErrNotFound},
		{"acme.none", false, "", core.ErrNotFound},
		{"acme.unusable", false, "", core.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := m.ResolveName(ctx, core.ParseReference(tt.ref), tt.cacheOnly)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Version)
		})
	}

	_, err := m.ResolveName(ctx, core.ParseReference("#1.0.0"), false)
	assert.True(t, core.IsValidation(err), "err = %v", err)
}

func TestLoadWithDependencies(t *testing.T) {
	ctx := context.Background()
	regs := newFakeRegistries()
	m := NewManager(store.NewMemory(), regs)

	_, err := m.AddArchive(ctx, testutil.BuildArchive(t, testutil.Package{
		Name:    "acme.ig",
		Version: "1.0.0",
		Dependencies: map[string]string{
			"acme.lib":         "2.0.0",
			"acme.missing":     "1.0.0",
			"hl7.fhir.r4.core": "4.0.1",
		},
	}))
	require.NoError(t, err)
	_, err = m.AddArchive(ctx, testutil.BuildArchive(t, testutil.Package{Name: "acme.lib", Version: "2.0.0"}))
	require.NoError(t, err)

	archives, err := m.LoadWithDependencies(ctx, core.ParseReference("acme.ig#1.0.0"))
	require.NoError(t, err)
	require.Len(t, archives, 2)
	assert.Equal(t, "acme.ig", archives[0].Name)
	assert.Equal(t, "acme.lib", archives[1].Name)
	assert.Equal(t, 0, regs.calls())
}

func TestFetchAndStoreReportsCallerDeadline(t *testing.T) {
	m := NewManager(store.NewMemory(), newFakeRegistries())
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := m.FetchAndStore(ctx, core.ResolvedName{Name: "acme.ig", Version: "1.0.0"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, core.ErrNotFound), "err = %v", err)
}
