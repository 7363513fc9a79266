package services

import (
	"context"
	"sync"
)

// WorkerPool bounds how many tasks run at once. Tokens are taken from a
// pre-filled channel and put back when a task ends.
type WorkerPool struct {
	tokens chan struct{}
}

func NewWorkerPool(size int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	tokens := make(chan struct{}, size)
	for i := 0; i < size; i++ {
		tokens <- struct{}{}
	}
	return &WorkerPool{tokens: tokens}
}

// Acquire blocks until a slot is free or ctx is done.
func (p *WorkerPool) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-p.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WorkerPool) Release() {
	p.tokens <- struct{}{}
}

func (p *WorkerPool) Size() int {
	return cap(p.tokens)
}

// Each runs fn for every index in [0, n) on the pool and waits for all of
// them. fn writes its own result slot; indices whose slot could not be
// acquired before ctx ended are skipped and ctx.Err() is returned.
func (p *WorkerPool) Each(ctx context.Context, n int, fn func(ctx context.Context, i int)) error {
	var wg sync.WaitGroup
	var err error

	for i := 0; i < n; i++ {
		if err = p.Acquire(ctx); err != nil {
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer p.Release()
			fn(ctx, i)
		}(i)
	}

	wg.Wait()
	return err
}
