package cache

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/git-pkgs/igcache/internal/core"
)

// State is the progress of one package within a dependency resolution.
type State int

const (
	Resolving State = iota + 1
	CachedHit
	Fetched
	FailedIgnored
)

func (s State) String() string {
	switch s {
	case Resolving:
		return "resolving"
	case CachedHit:
		return "cached"
	case Fetched:
		return "fetched"
	case FailedIgnored:
		return "failed"
	}
	return "unvisited"
}

// VisitedSet records the package names seen by one top-level resolution.
// It is safe for concurrent use and must not be shared between resolutions.
type VisitedSet struct {
	mu     sync.Mutex
	states map[string]State
}

// NewVisitedSet creates a set containing names, each Resolving.
func NewVisitedSet(names ...string) *VisitedSet {
	v := &VisitedSet{states: make(map[string]State, len(names))}
	for _, n := range names {
		v.states[n] = Resolving
	}
	return v
}

// Add marks name as Resolving. It reports false if name was already present.
func (v *VisitedSet) Add(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.states[name]; ok {
		return false
	}
	v.states[name] = Resolving
	return true
}

// Contains reports whether name has been visited.
func (v *VisitedSet) Contains(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.states[name]
	return ok
}

// Set records the state of name.
func (v *VisitedSet) Set(name string, s State) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.states[name] = s
}

// State returns the state of name.
func (v *VisitedSet) State(name string) (State, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.states[name]
	return s, ok
}

// Len returns the number of visited names.
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.states)
}

// Snapshot returns a copy of every state.
func (v *VisitedSet) Snapshot() map[string]State {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]State, len(v.states))
	for k, s := range v.states {
		out[k] = s
	}
	return out
}

// Counts returns the number of names in each state.
func (v *VisitedSet) Counts() map[State]int {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[State]int)
	for _, s := range v.states {
		out[s]++
	}
	return out
}

// Resolver walks dependency graphs on behalf of a Manager.
type Resolver struct {
	manager *Manager
	logger  *zap.Logger
}

// FetchWithDependencies fetches root from the registries and resolves its
// dependencies into the cache. Only a failure to fetch root is returned.
func (r *Resolver) FetchWithDependencies(ctx context.Context, root core.ResolvedName, visited *VisitedSet) (*core.Archive, error) {
	a, err := r.manager.FetchAndStore(ctx, root)
	if err != nil {
		return nil, err
	}
	r.ResolveDependencies(ctx, a, visited)
	return a, nil
}

// ResolveDependencies checks every direct dependency of a against the store
// and fetches the missing ones, recursively. Core packages and names already
// in visited are skipped.
//
// All existence checks of a's dependencies settle before any of the fetches
// they trigger is awaited. Cancelling ctx does not stop the resolution; each
// registry request is still bounded by the fetcher's timeout.
func (r *Resolver) ResolveDependencies(ctx context.Context, a *core.Archive, visited *VisitedSet) {
	ctx = context.WithoutCancel(ctx)
	parent := a.ResolvedName()

	var checks errgroup.Group
	var fetches sync.WaitGroup

	for _, dep := range a.Dependencies {
		ref := core.ParseReference(dep)
		if ref.Name == "" || core.IsCorePackage(ref.Name) {
			continue
		}
		if !visited.Add(ref.Name) {
			continue
		}
		checks.Go(func() error {
			r.check(ctx, parent, ref, visited, &fetches)
			return nil
		})
	}

	_ = checks.Wait()
	fetches.Wait()
}

// check resolves one dependency and, when it is not cached, starts its fetch
// on fetches.
func (r *Resolver) check(ctx context.Context, parent core.ResolvedName, ref core.Reference, visited *VisitedSet, fetches *sync.WaitGroup) {
	name, err := r.manager.ResolveName(ctx, ref, false)
	if err != nil {
		r.fail(parent, ref.String(), visited, ref.Name, err)
		return
	}

	cached, err := r.manager.store.Exists(ctx, name.Name, name.Version)
	if err != nil {
		r.fail(parent, name.String(), visited, ref.Name, err)
		return
	}
	if cached {
		visited.Set(ref.Name, CachedHit)
		return
	}

	fetches.Add(1)
	go func() {
		defer fetches.Done()
		a, err := r.FetchWithDependencies(ctx, name, visited)
		if err == nil && a.ResolvedName() != name {
			err = fmt.Errorf("registry served %s instead", a.ResolvedName())
		}
		if err != nil {
			r.fail(parent, name.String(), visited, ref.Name, err)
			return
		}
		visited.Set(ref.Name, Fetched)
	}()
}

func (r *Resolver) fail(parent core.ResolvedName, dep string, visited *VisitedSet, name string, err error) {
	visited.Set(name, FailedIgnored)
	fields := []zap.Field{
		zap.Stringer("package", parent),
		zap.String("dependency", dep),
		zap.Error(err),
	}
	if core.IsPersistence(err) {
		r.logger.Error("dependency could not be stored", fields...)
		return
	}
	r.logger.Warn("dependency resolution failed", fields...)
}
