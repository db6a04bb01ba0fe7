package preview

import (
	"sync"
	"time"
)

// DefaultDelay is the quiet period used when none is configured.
const DefaultDelay = 300 * time.Millisecond

// Timer is a scheduled callback that can be cancelled before it runs.
type Timer interface {
	Stop() bool
}

// Scheduler schedules callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler schedules callbacks on the runtime timer heap.
type RealScheduler struct{}

// AfterFunc implements Scheduler using time.AfterFunc.
func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Debouncer runs at most one callback per burst of triggers, once the trigger
// stream has been quiet for Delay.
type Debouncer struct {
	Delay     time.Duration
	Scheduler Scheduler

	mu    sync.Mutex
	timer Timer
	gen   uint64
}

// NewDebouncer constructs a debouncer using the runtime scheduler when sched is nil.
func NewDebouncer(delay time.Duration, sched Scheduler) *Debouncer {
	return &Debouncer{Delay: delay, Scheduler: sched}
}

// Trigger (re)starts the quiet period; fn runs when it elapses unless another
// Trigger or Stop arrives first.
func (d *Debouncer) Trigger(fn func()) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.scheduler().AfterFunc(d.delay(), func() {
		d.mu.Lock()
		// a replaced timer may still fire if Stop lost the race
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Stop cancels any pending callback.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether a callback is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *Debouncer) delay() time.Duration {
	if d.Delay <= 0 {
		return DefaultDelay
	}
	return d.Delay
}

func (d *Debouncer) scheduler() Scheduler {
	if d.Scheduler == nil {
		return RealScheduler{}
	}
	return d.Scheduler
}
