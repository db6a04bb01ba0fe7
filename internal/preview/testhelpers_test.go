package preview_test

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-billing/internal/preview"
	"github.com/noah-isme/backend-billing/internal/pricing"
)

// manualScheduler fires callbacks only when the test advances its clock.
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
	// leaky timers keep firing after Stop, mimicking a lost race with time.AfterFunc
	leaky bool
}

type manualTimer struct {
	s       *manualScheduler
	due     time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	if t.s.leaky {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) preview.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, due: s.now + d, fn: f}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the clock forward and runs every timer that became due.
func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	var due []*manualTimer
	for _, t := range s.timers {
		if !t.fired && !t.stopped && t.due <= s.now {
			t.fired = true
			due = append(due, t)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].due < due[j].due })
	s.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func item(desc, qty, rate string) pricing.LineItem {
	return pricing.LineItem{Description: desc, Quantity: dec(qty), Rate: dec(rate)}
}

type stateRecorder struct {
	mu     sync.Mutex
	states []preview.State
}

func (r *stateRecorder) record(st preview.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st)
}

func (r *stateRecorder) snapshot() []preview.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]preview.State(nil), r.states...)
}
