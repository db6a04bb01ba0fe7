package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/obs"
)

// TypeGSTRefresh recomputes one month of GST liability and rewrites its cache entry.
const TypeGSTRefresh = "gst:refresh"

// DefaultQueue is the queue GST refreshes are enqueued on.
const DefaultQueue = "reports"

// GSTRefreshPayload selects the month to refresh. Current means the month
// containing the processing time, which is what the scheduler enqueues.
type GSTRefreshPayload struct {
	Year    int  `json:"year,omitempty"`
	Month   int  `json:"month,omitempty"`
	Current bool `json:"current,omitempty"`
}

// NewGSTRefreshTask builds a refresh task.
func NewGSTRefreshTask(p GSTRefreshPayload, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	opts = append([]asynq.Option{asynq.MaxRetry(5), asynq.Timeout(time.Minute)}, opts...)
	return asynq.NewTask(TypeGSTRefresh, data, opts...), nil
}

// TaskEnqueuer is the subset of *asynq.Client used here.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer turns bill events into refresh tasks for the affected month.
type Enqueuer struct {
	Client TaskEnqueuer
	Queue  string
	// Delay coalesces bursts of edits to the same month into one refresh.
	Delay  time.Duration
	Logger zerolog.Logger
}

var _ events.Notifier = Enqueuer{}

// Notify implements events.Notifier. Only bill events move GST, so
// payment events are ignored.
func (e Enqueuer) Notify(ctx context.Context, ev events.Event) error {
	if !events.IsBillTopic(ev.Topic) {
		return nil
	}
	var payload billing.BillEvent
	if err := ev.Decode(&payload); err != nil {
		return fmt.Errorf("tasks: decode %s: %w", ev.Topic, err)
	}
	date, err := time.Parse("2006-01-02", payload.BillDate)
	if err != nil {
		return fmt.Errorf("tasks: bill date %q: %w", payload.BillDate, err)
	}
	return e.EnqueueRefresh(ctx, date.Year(), int(date.Month()))
}

// EnqueueRefresh schedules a refresh of the given month. A refresh already
// waiting for the same month counts as success.
func (e Enqueuer) EnqueueRefresh(ctx context.Context, year, month int) error {
	if e.Client == nil {
		return errors.New("tasks: enqueuer client not configured")
	}
	queue := e.Queue
	if queue == "" {
		queue = DefaultQueue
	}
	opts := []asynq.Option{asynq.Queue(queue)}
	if e.Delay > 0 {
		opts = append(opts, asynq.ProcessIn(e.Delay), asynq.Unique(e.Delay))
	}
	task, err := NewGSTRefreshTask(GSTRefreshPayload{Year: year, Month: month}, opts...)
	if err != nil {
		return err
	}
	info, err := e.Client.EnqueueContext(ctx, task)
	switch {
	case errors.Is(err, asynq.ErrDuplicateTask), errors.Is(err, asynq.ErrTaskIDConflict):
		e.Logger.Debug().Int("year", year).Int("month", month).Msg("gst_refresh_already_queued")
		return nil
	case err != nil:
		return fmt.Errorf("tasks: enqueue %s: %w", TypeGSTRefresh, err)
	}
	e.Logger.Debug().Str("task_id", info.ID).Int("year", year).Int("month", month).Msg("gst_refresh_enqueued")
	return nil
}

// Refresher recomputes a liability period bypassing cached reads.
type Refresher interface {
	RefreshGSTLiability(ctx context.Context, period billing.Period) (billing.GSTLiability, error)
}

// Locker serialises refreshes of the same period across workers.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// GSTRefreshHandler processes TypeGSTRefresh tasks.
type GSTRefreshHandler struct {
	Refresher Refresher
	Locker    Locker
	LockTTL   time.Duration
	Logger    zerolog.Logger
	Now       func() time.Time
}

// ProcessTask implements asynq.Handler.
func (h *GSTRefreshHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p GSTRefreshPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("tasks: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.Current || p.Year == 0 {
		now := h.now()
		p.Year, p.Month = now.Year(), int(now.Month())
	}
	period, err := billing.MonthPeriod(p.Year, p.Month)
	if err != nil {
		return fmt.Errorf("tasks: %v: %w", err, asynq.SkipRetry)
	}

	refresh := func(ctx context.Context) error {
		start := time.Now()
		out, err := h.Refresher.RefreshGSTLiability(ctx, period)
		if obs.GSTRefreshDuration != nil {
			obs.GSTRefreshDuration.Observe(float64(time.Since(start).Milliseconds()))
		}
		if err != nil {
			return err
		}
		h.Logger.Info().
			Str("period", out.Period).
			Str("net_gst", out.NetGST.StringFixed(2)).
			Str("status", string(out.Status)).
			Msg("gst_liability_refreshed")
		return nil
	}
	if h.Locker == nil {
		return refresh(ctx)
	}
	ttl := h.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return h.Locker.WithLock(ctx, "gst:"+period.Label, ttl, refresh)
}

func (h *GSTRefreshHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}
