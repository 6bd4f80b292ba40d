// Package parallel runs compute workgroups on the CPU.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool executes batches of work items on a fixed set of goroutines.
//
// Each worker owns a queue and steals from the others when its own queue is
// empty, so a batch whose items differ in cost (edge tiles, busy rows) still
// keeps every worker busy.
//
// WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewWorkerPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	depth := max(workers*4, 8)

	p := &WorkerPool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), depth)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.loop(i)
	}
	return p
}

func (p *WorkerPool) loop(id int) {
	defer p.wg.Done()
	own := p.queues[id]

	for {
		select {
		case <-p.done:
			drain(own)
			return
		case fn := <-own:
			fn()
			continue
		default:
		}

		if fn := p.steal(id); fn != nil {
			fn()
			continue
		}

		select {
		case <-p.done:
			drain(own)
			return
		case fn := <-own:
			fn()
		}
	}
}

func drain(q chan func()) {
	for {
		select {
		case fn := <-q:
			fn()
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(id int) func() {
	for i := 1; i < p.workers; i++ {
		select {
		case fn := <-p.queues[(id+i)%p.workers]:
			return fn
		default:
		}
	}
	return nil
}

// ExecuteAll runs every item and returns when all have finished.
// On a closed pool the items run on the calling goroutine.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	if !p.running.Load() {
		for _, fn := range work {
			fn()
		}
		return
	}

	var pending sync.WaitGroup
	pending.Add(len(work))
	for i, fn := range work {
		item := func() {
			defer pending.Done()
			fn()
		}
		select {
		case p.queues[i%p.workers] <- item:
		case <-p.done:
			item()
		}
	}
	pending.Wait()
}

// Dispatch calls fn once for every workgroup of an x*y*z grid and returns
// when all calls have finished. Workgroups of one row are batched into a
// single work item; fn must be safe to call concurrently for distinct groups.
func (p *WorkerPool) Dispatch(x, y, z uint32, fn func(gx, gy, gz uint32)) {
	if x == 0 || y == 0 || z == 0 {
		return
	}
	work := make([]func(), 0, int(y)*int(z))
	for gz := range z {
		for gy := range y {
			work = append(work, func() {
				for gx := range x {
					fn(gx, gy, gz)
				}
			})
		}
	}
	p.ExecuteAll(work)
}

// Close stops the workers after they finish queued work. It is safe to call
// more than once.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers.
func (p *WorkerPool) Workers() int { return p.workers }

// IsRunning reports whether the pool accepts work.
func (p *WorkerPool) IsRunning() bool { return p.running.Load() }
