package ratelimit

import (
	"context"
	"errors"
	"time"

	limiter "github.com/ulule/limiter/v3"
)

// FixedWindow delegates counting to a ulule/limiter store (Redis or memory).
// The window resets on period boundaries.
type FixedWindow struct {
	Store limiter.Store
}

// Allow implements Backend.
func (u FixedWindow) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if u.Store == nil {
		return false, 0, time.Now(), errors.New("ratelimit: limiter store not configured")
	}
	if max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	lim := limiter.New(u.Store, limiter.Rate{Period: window, Limit: int64(max)})
	res, err := lim.Get(ctx, key)
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !res.Reached, int(res.Remaining), time.Unix(res.Reset, 0), nil
}
