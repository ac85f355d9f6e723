package archive

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"

	"github.com/git-pkgs/igcache/internal/core"
)

// Parser runs archive decompression on a bounded number of goroutines so
// large packages cannot starve network and database work.
type Parser struct {
	sem     *semaphore.Weighted
	workers int
}

// NewParser creates a parser allowing at most workers concurrent parses.
// If workers <= 0, it defaults to runtime.NumCPU().
func NewParser(workers int) *Parser {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Parser{
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: workers,
	}
}

// Workers returns the concurrency bound.
func (p *Parser) Workers() int {
	return p.workers
}

// Parse waits for a free slot and parses raw.
func (p *Parser) Parse(ctx context.Context, raw []byte) (*core.Archive, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)
	return Parse(raw)
}
