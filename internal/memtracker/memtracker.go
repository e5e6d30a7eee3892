// Package memtracker accounts for the memory consumed by lazily-loaded
// fragment metadata sections against a fixed budget, with
// TakeMemory/ReleaseMemory as the accounting pair callers bracket a
// load with.
package memtracker

import (
	"sync/atomic"

	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/shared"
	"github.com/prometheus/client_golang/prometheus"
)

var memoryGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "fragcore",
		Subsystem: "memtracker",
		Name:      "bytes_used",
		Help:      "Bytes currently charged against the fragment metadata memory budget, by section type.",
	},
	[]string{"memory_type"},
)

// Collector exposes the tracker's gauges for registration with a
// prometheus.Registerer; callers that don't want metrics simply never
// register it.
func Collector() prometheus.Collector { return memoryGauge }

// Tracker enforces a fixed byte budget shared across every
// MemoryType, with per-type counters for observability.
type Tracker struct {
	budget int64
	used   int64
	perType [8]int64 // indexed by shared.MemoryType
}

// New returns a Tracker with the given total byte budget. A budget of
// 0 means unbounded.
func New(budget int64) *Tracker {
	return &Tracker{budget: budget}
}

// TakeMemory reserves n bytes against the budget for mt, returning
// errs.OutOfBudget if the reservation would exceed it. Reservation is
// atomic: either all n bytes are charged or none are.
func (t *Tracker) TakeMemory(n int64, mt shared.MemoryType) error {
	if n < 0 {
		return errs.New(errs.UsageError, "memtracker: negative size %d", n)
	}
	if t.budget > 0 {
		for {
			cur := atomic.LoadInt64(&t.used)
			next := cur + n
			if next > t.budget {
				return errs.New(errs.OutOfBudget, "memtracker: budget %d exceeded by %d bytes (type %s)", t.budget, next-t.budget, mt)
			}
			if atomic.CompareAndSwapInt64(&t.used, cur, next) {
				break
			}
		}
	} else {
		atomic.AddInt64(&t.used, n)
	}
	atomic.AddInt64(&t.perType[mt], n)
	memoryGauge.WithLabelValues(mt.String()).Add(float64(n))
	return nil
}

// ReleaseMemory gives back n bytes previously reserved for mt.
func (t *Tracker) ReleaseMemory(n int64, mt shared.MemoryType) {
	atomic.AddInt64(&t.used, -n)
	atomic.AddInt64(&t.perType[mt], -n)
	memoryGauge.WithLabelValues(mt.String()).Add(-float64(n))
}

// Used returns the total number of bytes currently reserved.
func (t *Tracker) Used() int64 { return atomic.LoadInt64(&t.used) }

// UsedFor returns the number of bytes currently reserved against mt.
func (t *Tracker) UsedFor(mt shared.MemoryType) int64 { return atomic.LoadInt64(&t.perType[mt]) }

// Budget returns the tracker's total byte budget (0 means unbounded).
func (t *Tracker) Budget() int64 { return t.budget }
