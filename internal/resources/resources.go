// Package resources is a bounded compute pool for parallel fragment
// rollup work, plus the shared prometheus metrics the rest of
// the core's lazy-load path reports into.
package resources

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

var fragmentLoads = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fragcore",
		Subsystem: "resources",
		Name:      "fragment_loads_total",
		Help:      "Number of FragmentMetadata section loads, by section and outcome.",
	},
	[]string{"section", "outcome"},
)

// Collector exposes the package's counters for registration with a
// prometheus.Registerer.
func Collector() prometheus.Collector { return fragmentLoads }

// RecordLoad increments the fragment_loads_total counter for section/outcome.
func RecordLoad(section, outcome string) {
	fragmentLoads.WithLabelValues(section, outcome).Inc()
}

// Pool is a bounded worker pool backed by golang.org/x/sync/errgroup,
// used by FragmentMetadata.ComputeFragmentRollup to run its per-field
// reduction concurrently instead of sequentially. RTree.BuildTree does
// not use it.
type Pool struct {
	workers int
}

// New returns a Pool that runs at most workers goroutines concurrently.
// workers <= 0 means unbounded (one goroutine per submitted task).
func New(workers int) *Pool {
	return &Pool{workers: workers}
}

// Go runs fns concurrently, bounded by the pool's worker count, and
// returns the first error encountered (if any); ctx is cancelled for
// every in-flight fn as soon as one returns an error.
func (p *Pool) Go(ctx context.Context, fns ...func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if p.workers > 0 {
		g.SetLimit(p.workers)
	}
	for _, fn := range fns {
		fn := fn
		g.Go(func() error { return fn(gctx) })
	}
	return g.Wait()
}
