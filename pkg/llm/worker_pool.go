package llm

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// WorkerPoolConfig configures the worker pool.
type WorkerPoolConfig struct {
	MaxConcurrent int // Maximum concurrent provider calls (default: 3)
}

// DefaultWorkerPoolConfig returns the defaults used for per-room image analysis.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		MaxConcurrent: 3,
	}
}

// WorkerPool bounds how many provider calls run at once.
type WorkerPool struct {
	config WorkerPoolConfig
	logger *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(config WorkerPoolConfig, logger *zap.Logger) *WorkerPool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = DefaultWorkerPoolConfig().MaxConcurrent
	}
	return &WorkerPool{
		config: config,
		logger: logger.Named("vision-worker-pool"),
	}
}

// WorkItem represents a unit of work to be processed.
type WorkItem[T any] struct {
	ID      string                               // For logging/tracking
	Execute func(ctx context.Context) (T, error) // The work to be executed
}

// WorkResult represents the result of a work item.
type WorkResult[T any] struct {
	ID     string
	Result T
	Err    error
}

// Process runs all items with bounded parallelism and returns results in
// submission order. Every item produces a result even when others fail.
func Process[T any](
	ctx context.Context,
	pool *WorkerPool,
	items []WorkItem[T],
	onProgress func(completed, total int),
) []WorkResult[T] {
	if len(items) == 0 {
		return nil
	}

	results := make([]WorkResult[T], len(items))
	sem := make(chan struct{}, pool.config.MaxConcurrent)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
	)

	for i, item := range items {
		wg.Add(1)
		go func(i int, item WorkItem[T]) {
			defer wg.Done()

			var res WorkResult[T]
			select {
			case sem <- struct{}{}:
				out, err := item.Execute(ctx)
				<-sem
				res = WorkResult[T]{ID: item.ID, Result: out, Err: err}
			case <-ctx.Done():
				res = WorkResult[T]{ID: item.ID, Err: ctx.Err()}
			}
			results[i] = res

			mu.Lock()
			completed++
			n := completed
			if onProgress != nil {
				onProgress(n, len(items))
			}
			mu.Unlock()
		}(i, item)
	}

	wg.Wait()
	pool.logger.Debug("Work items processed", zap.Int("count", len(items)))
	return results
}
