package memory

import (
	"sync"

	"galaxy-roi/internal/opencv/safe"
)

// Pool is a bounded LIFO shelf of idle Mats sharing one PoolKey. Stale
// entries (closed or emptied while idle) are dropped on the way out.
type Pool struct {
	mu    sync.Mutex
	idle  []*safe.Mat
	limit int
	reuse int64
}

func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{idle: make([]*safe.Mat, 0, limit), limit: limit}
}

// Get pops the most recently shelved usable Mat, or nil.
func (p *Pool) Get() *safe.Mat {
	p.mu.Lock()
	defer p.mu.Unlock()

	for n := len(p.idle); n > 0; n = len(p.idle) {
		mat := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		if usable(mat) {
			p.reuse++
			return mat
		}
		mat.Close()
	}
	return nil
}

// Put shelves mat and reports whether the pool took ownership.
func (p *Pool) Put(mat *safe.Mat) bool {
	if !usable(mat) {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) >= p.limit {
		return false
	}
	p.idle = append(p.idle, mat)
	return true
}

func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Reused counts Mats handed back out by Get.
func (p *Pool) Reused() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reuse
}

// Cleanup closes every shelved Mat and returns how many it closed.
func (p *Pool) Cleanup() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	closed := len(p.idle)
	for i, mat := range p.idle {
		mat.Close()
		p.idle[i] = nil
	}
	p.idle = p.idle[:0]
	return closed
}

func usable(mat *safe.Mat) bool {
	return mat != nil && mat.IsValid() && !mat.Empty()
}
