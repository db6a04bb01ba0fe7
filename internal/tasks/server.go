package tasks

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// NewServeMux routes every task type this service knows.
func NewServeMux(gst *GSTRefreshHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeGSTRefresh, gst)
	return mux
}

// RegisterSchedules adds the periodic refresh of the current month.
func RegisterSchedules(s *asynq.Scheduler, cronspec, queue string) (string, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	task, err := NewGSTRefreshTask(GSTRefreshPayload{Current: true}, asynq.Queue(queue))
	if err != nil {
		return "", err
	}
	id, err := s.Register(cronspec, task)
	if err != nil {
		return "", fmt.Errorf("tasks: register %q: %w", cronspec, err)
	}
	return id, nil
}

// ErrorHandler logs failed attempts.
func ErrorHandler(logger zerolog.Logger) asynq.ErrorHandler {
	return asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		logger.Error().Err(err).
			Str("type", task.Type()).
			Int("retry", retried).
			Int("max_retry", maxRetry).
			Msg("task_failed")
	})
}

// Logger adapts zerolog to asynq's logger interface.
type Logger struct {
	L zerolog.Logger
}

func (l Logger) Debug(args ...interface{}) { l.L.Debug().Msg(fmt.Sprint(args...)) }
func (l Logger) Info(args ...interface{})  { l.L.Info().Msg(fmt.Sprint(args...)) }
func (l Logger) Warn(args ...interface{})  { l.L.Warn().Msg(fmt.Sprint(args...)) }
func (l Logger) Error(args ...interface{}) { l.L.Error().Msg(fmt.Sprint(args...)) }
func (l Logger) Fatal(args ...interface{}) { l.L.Fatal().Msg(fmt.Sprint(args...)) }
