package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/realtime"
	"go.uber.org/zap"
)

const defaultTaskTimeout = 30 * time.Second

// Task is a submit-and-forget unit of work. When Run fails, FailureNotice is
// published to Topic so the user learns about it out of band.
type Task struct {
	Name          string
	Topic         string
	Run           func(ctx context.Context) error
	FailureNotice realtime.Notice
}

// Runner executes tasks in the background without blocking the caller.
// Work started here is not cancelled when the originating request ends.
type Runner struct {
	wg       sync.WaitGroup
	notifier Notifier
	logger   *zap.Logger
	timeout  time.Duration
}

// NewRunner constructs a runner; a non-positive timeout uses the default.
func NewRunner(notifier Notifier, logger *zap.Logger, timeout time.Duration) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	return &Runner{notifier: notifier, logger: logger, timeout: timeout}
}

// Go starts the task and returns immediately.
func (r *Runner) Go(task Task) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := r.run(task)
		if err == nil {
			backgroundTasksTotal.WithLabelValues(task.Name, outcomeSucceeded).Inc()
			return
		}
		backgroundTasksTotal.WithLabelValues(task.Name, outcomeFailed).Inc()
		r.logger.Warn("background task failed", zap.String("task", task.Name), zap.Error(err))
		if r.notifier != nil && task.Topic != "" {
			r.notifier.Publish(realtime.Message{
				Topic:     task.Topic,
				EventType: realtime.EventNotice,
				Payload:   task.FailureNotice,
			})
		}
	}()
}

func (r *Runner) run(task Task) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, recovered)
		}
	}()
	if task.Run == nil {
		return errors.New("task has no work")
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return task.Run(ctx)
}

// Wait blocks until all started tasks finish or ctx ends.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
