package preview

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-billing/internal/pricing"
)

// State is a snapshot of the live preview. A nil Preview means no preview is
// available, which is distinct from a zero-valued one.
type State struct {
	Preview     *pricing.Result
	Calculating bool
	Seq         uint64
}

// Config wires a Session.
type Config struct {
	Engine    Engine
	Delay     time.Duration
	Scheduler Scheduler
	// Timeout bounds a single engine call; zero means no limit.
	Timeout  time.Duration
	Logger   zerolog.Logger
	OnChange func(State)
}

// Session tracks an in-progress bill edit and keeps an advisory preview of its
// totals up to date. Previews are display-only; failures never propagate.
type Session struct {
	engine   Engine
	debounce *Debouncer
	timeout  time.Duration
	logger   zerolog.Logger
	onChange func(State)
	metrics  *sessionMetrics

	mu             sync.Mutex
	items          []pricing.LineItem
	transportation decimal.Decimal
	preview        *pricing.Result
	calculating    bool
	seq            uint64
	cancelInflight context.CancelFunc
	closed         bool
}

// NewSession constructs a session. Engine defaults to the local 18% engine.
func NewSession(cfg Config) *Session {
	engine := cfg.Engine
	if engine == nil {
		engine = LocalEngine{Engine: pricing.NewEngine(pricing.DefaultTaxBps)}
	}
	return &Session{
		engine:   engine,
		debounce: NewDebouncer(cfg.Delay, cfg.Scheduler),
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
		onChange: cfg.OnChange,
		metrics:  newSessionMetrics(),
	}
}

// SetItems replaces the whole item list.
func (s *Session) SetItems(items []pricing.LineItem) {
	s.edit(func() {
		s.items = append(s.items[:0:0], items...)
	})
}

// SetItem replaces the item at index i, appending when i equals the current length.
func (s *Session) SetItem(i int, item pricing.LineItem) {
	s.edit(func() {
		switch {
		case i < 0:
			return
		case i < len(s.items):
			s.items[i] = item
		default:
			for len(s.items) < i {
				s.items = append(s.items, pricing.LineItem{})
			}
			s.items = append(s.items, item)
		}
	})
}

// RemoveItem drops the item at index i.
func (s *Session) RemoveItem(i int) {
	s.edit(func() {
		if i < 0 || i >= len(s.items) {
			return
		}
		s.items = append(s.items[:i], s.items[i+1:]...)
	})
}

// SetTransportation updates the transportation surcharge.
func (s *Session) SetTransportation(v decimal.Decimal) {
	s.edit(func() {
		s.transportation = v
	})
}

// Items returns a copy of the current item list.
func (s *Session) Items() []pricing.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pricing.LineItem(nil), s.items...)
}

// Flush cancels the pending quiet period and recomputes immediately.
func (s *Session) Flush(ctx context.Context) {
	s.debounce.Stop()
	s.run(ctx)
}

// State returns the current preview snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Close stops pending work and aborts any in-flight calculation.
func (s *Session) Close() {
	s.debounce.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.seq++
	if s.cancelInflight != nil {
		s.cancelInflight()
		s.cancelInflight = nil
	}
	s.calculating = false
}

func (s *Session) edit(mutate func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	mutate()
	s.mu.Unlock()
	s.debounce.Trigger(func() { s.run(context.Background()) })
}

func (s *Session) run(parent context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.seq++
	seq := s.seq
	if s.cancelInflight != nil {
		s.cancelInflight()
		s.cancelInflight = nil
	}
	valid := pricing.FilterValid(s.items)
	if len(valid) == 0 {
		s.preview = nil
		s.calculating = false
		st := s.stateLocked()
		s.mu.Unlock()
		s.notify(st)
		return
	}
	req := pricing.Request{Items: valid, Extras: pricing.Extras{Transportation: s.transportation}}
	ctx, cancel := s.callContext(parent)
	s.cancelInflight = cancel
	s.calculating = true
	st := s.stateLocked()
	s.mu.Unlock()
	s.notify(st)
	s.metrics.fired(ctx)

	res, err := s.engine.Calculate(ctx, req)
	cancel()

	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		s.metrics.discarded(context.Background())
		s.logger.Debug().Uint64("seq", seq).Msg("preview_stale_result_discarded")
		return
	}
	s.cancelInflight = nil
	s.calculating = false
	if err == nil {
		s.preview = &res
	}
	st = s.stateLocked()
	s.mu.Unlock()

	// the previous preview stays visible when a calculation fails
	if err != nil {
		s.metrics.failed(context.Background())
		s.logger.Debug().Err(err).Uint64("seq", seq).Msg("preview_calculation_failed")
	}
	s.notify(st)
}

func (s *Session) callContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if s.timeout > 0 {
		return context.WithTimeout(parent, s.timeout)
	}
	return context.WithCancel(parent)
}

func (s *Session) stateLocked() State {
	st := State{Calculating: s.calculating, Seq: s.seq}
	if s.preview != nil {
		p := *s.preview
		st.Preview = &p
	}
	return st
}

func (s *Session) notify(st State) {
	if s.onChange != nil {
		s.onChange(st)
	}
}
