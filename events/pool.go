package events

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/wfunc/codexserver/logger"
)

// ErrPoolStopped is returned by Submit after Stop.
var ErrPoolStopped = errors.New("event pool stopped")

// PoolMetrics receives dispatch counters. monitor.Monitor implements it.
type PoolMetrics interface {
	IncEventsDispatched()
	IncEventsOverflow()
}

type nopMetrics struct{}

func (nopMetrics) IncEventsDispatched() {}
func (nopMetrics) IncEventsOverflow()   {}

// Pool is a bounded goroutine pool shared by every bus of the process.
// Submission never blocks: when all workers are busy the task runs on a fresh
// goroutine instead, so a slow observer never stalls a publisher.
type Pool struct {
	mu      sync.RWMutex
	pool    *ants.Pool
	metrics PoolMetrics
}

// NewPool starts a pool of at most size workers. metrics may be nil.
func NewPool(size int, metrics PoolMetrics) (*Pool, error) {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	p, err := ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithExpiryDuration(60*time.Second),
		ants.WithPanicHandler(func(r any) {
			logger.Log.Errorf("event worker panic: %v", r)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("pool init failed: %w", err)
	}
	logger.Log.Infof("event pool started [size:%d]", size)
	return &Pool{pool: p, metrics: metrics}, nil
}

// Submit schedules task.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.pool == nil {
		return ErrPoolStopped
	}
	p.metrics.IncEventsDispatched()
	if err := p.pool.Submit(task); err != nil {
		if !errors.Is(err, ants.ErrPoolOverload) {
			return err
		}
		p.metrics.IncEventsOverflow()
		go task()
	}
	return nil
}

// Running returns the number of busy workers.
func (p *Pool) Running() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.pool == nil {
		return 0
	}
	return p.pool.Running()
}

// Stop releases the workers. Tasks already running finish on their own.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pool != nil {
		logger.Log.Infof("event pool stopping [running:%d]", p.pool.Running())
		p.pool.Release()
		p.pool = nil
	}
}

// Immediate runs tasks on the caller's goroutine. Meant for tests and tools
// where handlers only record what they see.
type Immediate struct{}

func (Immediate) Submit(task func()) error {
	task()
	return nil
}
