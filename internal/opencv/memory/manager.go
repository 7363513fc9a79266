package memory

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"galaxy-roi/internal/logger"
	"galaxy-roi/internal/opencv/safe"
)

const component = "MatMemory"

// DefaultPoolSize is the number of idle Mats kept per shape.
const DefaultPoolSize = 4

// Manager hands out scratch Mats and recycles them by shape. Wide-field
// frames share a width, so gray and mask buffers are reused across runs.
type Manager struct {
	pools    map[PoolKey]*Pool
	active   map[uint64]int64
	poolSize int
	mu       sync.Mutex
	stats    Stats
	log      logger.Logger
}

type PoolKey struct {
	Rows    int
	Cols    int
	MatType gocv.MatType
}

type Stats struct {
	TotalAllocated int64
	TotalReleased  int64
	ActiveMats     int64
	PoolHits       int64
	PoolMisses     int64
	MaxAllowed     int64
}

func NewManager(log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		pools:    make(map[PoolKey]*Pool),
		active:   make(map[uint64]int64),
		poolSize: DefaultPoolSize,
		stats: Stats{
			MaxAllowed: 1024 * 1024 * 1024,
		},
		log: log,
	}
}

func (m *Manager) GetMat(rows, cols int, matType gocv.MatType, tag string) (*safe.Mat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if inUse := m.stats.TotalAllocated - m.stats.TotalReleased; inUse > m.stats.MaxAllowed {
		return nil, fmt.Errorf("memory limit exceeded: %d bytes in use", inUse)
	}

	size := safe.ByteSize(rows, cols, matType)
	key := PoolKey{Rows: rows, Cols: cols, MatType: matType}

	if pool, ok := m.pools[key]; ok {
		if mat := pool.Get(); mat != nil {
			m.stats.PoolHits++
			m.track(mat, size)
			return mat, nil
		}
	}

	m.stats.PoolMisses++
	mat, err := safe.NewMatWithTag(rows, cols, matType, tag)
	if err != nil {
		return nil, err
	}
	m.track(mat, size)

	m.log.Debug(component, "allocated mat", map[string]interface{}{
		"tag":  tag,
		"rows": rows,
		"cols": cols,
	})
	return mat, nil
}

func (m *Manager) track(mat *safe.Mat, size int64) {
	m.active[mat.ID()] = size
	m.stats.TotalAllocated += size
	m.stats.ActiveMats++
}

// ReleaseMat returns mat to its shape pool, closing it when the pool is full
// or the Mat was not handed out by this manager.
func (m *Manager) ReleaseMat(mat *safe.Mat) {
	if mat == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	size, ok := m.active[mat.ID()]
	if !ok {
		m.log.Warning(component, "releasing untracked mat", map[string]interface{}{"tag": mat.Tag()})
		mat.Close()
		return
	}

	delete(m.active, mat.ID())
	m.stats.TotalReleased += size
	m.stats.ActiveMats--

	if !mat.IsValid() {
		return
	}

	key := PoolKey{Rows: mat.Rows(), Cols: mat.Cols(), MatType: mat.Type()}
	pool, ok := m.pools[key]
	if !ok {
		pool = NewPool(m.poolSize)
		m.pools[key] = pool
	}
	if !pool.Put(mat) {
		mat.Close()
	}
}

func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for key, pool := range m.pools {
		count += pool.Cleanup()
		delete(m.pools, key)
	}

	m.log.Info(component, "cleaned up pooled mats", map[string]interface{}{
		"closed": count,
		"active": len(m.active),
	})
}

// Shutdown satisfies shutdown.Shutdownable.
func (m *Manager) Shutdown() {
	m.Cleanup()
}

// Allocator is what image steps need from a Mat source.
type Allocator interface {
	GetMat(rows, cols int, matType gocv.MatType, tag string) (*safe.Mat, error)
	ReleaseMat(mat *safe.Mat)
}

// Direct returns an Allocator that never pools.
func Direct() Allocator { return directAllocator{} }

type directAllocator struct{}

func (directAllocator) GetMat(rows, cols int, matType gocv.MatType, tag string) (*safe.Mat, error) {
	return safe.NewMatWithTag(rows, cols, matType, tag)
}

func (directAllocator) ReleaseMat(mat *safe.Mat) {
	if mat != nil {
		mat.Close()
	}
}
