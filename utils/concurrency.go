package utils

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// WorkerPool runs named tasks on at most maxWorkers goroutines and collects
// their failures. A panicking task is recovered and reported as an error so
// one bad input cannot take the process down.
type WorkerPool struct {
	slots chan struct{}
	wg    sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

// NewWorkerPool creates a WorkerPool. maxWorkers below 1 is treated as 1.
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{slots: make(chan struct{}, maxWorkers)}
}

// Go schedules task. It blocks while every worker is busy. When ctx is done
// before a slot frees up, the task is skipped and ctx's error is recorded.
func (wp *WorkerPool) Go(ctx context.Context, name string, task func(context.Context) error) {
	select {
	case wp.slots <- struct{}{}:
	case <-ctx.Done():
		wp.record(fmt.Errorf("%s: not started: %w", name, ctx.Err()))
		return
	}

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		defer func() { <-wp.slots }()
		defer func() {
			if r := recover(); r != nil {
				wp.record(fmt.Errorf("%s: panic: %v", name, r))
			}
		}()
		if err := task(ctx); err != nil {
			wp.record(fmt.Errorf("%s: %w", name, err))
		}
	}()
}

func (wp *WorkerPool) record(err error) {
	wp.mu.Lock()
	wp.errs = append(wp.errs, err)
	wp.mu.Unlock()
}

// Wait blocks until every scheduled task has returned and yields their
// joined errors. The pool is reusable afterwards.
func (wp *WorkerPool) Wait() error {
	wp.wg.Wait()

	wp.mu.Lock()
	defer wp.mu.Unlock()
	err := errors.Join(wp.errs...)
	wp.errs = nil
	return err
}
