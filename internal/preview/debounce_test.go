package preview_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/preview"
)

func TestDebouncerCoalescesBurst(t *testing.T) {
	sched := &manualScheduler{}
	d := preview.NewDebouncer(300*time.Millisecond, sched)

	calls := 0
	last := 0
	for i := 1; i <= 5; i++ {
		v := i
		d.Trigger(func() {
			calls++
			last = v
		})
		sched.Advance(100 * time.Millisecond)
	}
	require.Equal(t, 0, calls)
	require.True(t, d.Pending())

	sched.Advance(200 * time.Millisecond)
	require.Equal(t, 1, calls)
	require.Equal(t, 5, last)
	require.False(t, d.Pending())

	sched.Advance(time.Second)
	require.Equal(t, 1, calls)
}

func TestDebouncerStopCancelsPending(t *testing.T) {
	sched := &manualScheduler{}
	d := preview.NewDebouncer(300*time.Millisecond, sched)

	fired := false
	d.Trigger(func() { fired = true })
	d.Stop()
	sched.Advance(time.Second)
	require.False(t, fired)
	require.False(t, d.Pending())
}

func TestDebouncerIgnoresTimerThatLostStopRace(t *testing.T) {
	sched := &manualScheduler{leaky: true}
	d := preview.NewDebouncer(300*time.Millisecond, sched)

	var got []string
	d.Trigger(func() { got = append(got, "first") })
	sched.Advance(100 * time.Millisecond)
	d.Trigger(func() { got = append(got, "second") })

	// the first timer is still armed in the scheduler but belongs to an old generation
	sched.Advance(200 * time.Millisecond)
	require.Empty(t, got)

	sched.Advance(100 * time.Millisecond)
	require.Equal(t, []string{"second"}, got)
}

func TestDebouncerDefaultsDelay(t *testing.T) {
	sched := &manualScheduler{}
	d := preview.NewDebouncer(0, sched)

	fired := false
	d.Trigger(func() { fired = true })
	sched.Advance(preview.DefaultDelay - time.Millisecond)
	require.False(t, fired)
	sched.Advance(time.Millisecond)
	require.True(t, fired)
}

func TestDebouncerRealScheduler(t *testing.T) {
	d := preview.NewDebouncer(10*time.Millisecond, nil)
	done := make(chan struct{})
	d.Trigger(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced callback did not run")
	}
}
