// Package clock provides the time source a ResponseHandler samples MIDP
// from. Production workers use System; tests use Mock so midpoint and
// delegation-window behavior can be driven deterministically.
package clock

import (
	"sync/atomic"
	"time"
)

// Source returns the current time as seconds since the Unix epoch (RFC
// 4.1.4: non-leap seconds since 1970-01-01T00:00:00Z). Implementations must
// be safe for concurrent use; workers treat it as shared read-only state
// (spec.md §5).
type Source interface {
	EpochSeconds() uint64
}

// System is the production clock, backed by the OS wall clock.
type System struct{}

// EpochSeconds implements Source.
func (System) EpochSeconds() uint64 {
	secs := time.Now().Unix()
	if secs < 0 {
		panic("clock: system time before the Unix epoch")
	}
	return uint64(secs)
}

// FixedOffset wraps System with a constant, possibly negative, offset. It
// exists for tests that want a deterministic skew without fully decoupling
// from wall-clock time.
type FixedOffset struct {
	OffsetSeconds int64
}

// EpochSeconds implements Source.
func (f FixedOffset) EpochSeconds() uint64 {
	base := int64(System{}.EpochSeconds())
	return uint64(base + f.OffsetSeconds)
}

// Mock is an atomic-backed clock for tests and benchmarks. Its zero value is
// not useful; construct with NewMock. Mock is a pointer type: copies share
// the same underlying counter, matching the Arc<AtomicU64> sharing model a
// ClockSource passed to multiple workers relies on.
type Mock struct {
	now atomic.Uint64
}

// NewMock returns a Mock initialized to now (seconds since the Unix epoch).
func NewMock(now uint64) *Mock {
	m := &Mock{}
	m.now.Store(now)
	return m
}

// EpochSeconds implements Source.
func (m *Mock) EpochSeconds() uint64 {
	return m.now.Load()
}

// Set overrides the mock's current time.
func (m *Mock) Set(now uint64) {
	m.now.Store(now)
}

// Advance moves the mock's clock forward by delta.
func (m *Mock) Advance(delta time.Duration) {
	m.now.Add(uint64(delta.Seconds()))
}

// Decrease moves the mock's clock backward by delta. Panics if it would
// underflow past the epoch, since that's always a test-setup bug.
func (m *Mock) Decrease(delta time.Duration) {
	d := uint64(delta.Seconds())
	for {
		cur := m.now.Load()
		if d > cur {
			panic("clock: Decrease would underflow before the Unix epoch")
		}
		if m.now.CompareAndSwap(cur, cur-d) {
			return
		}
	}
}
