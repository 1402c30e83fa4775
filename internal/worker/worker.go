// Package worker runs model inference on a fixed set of goroutines, each
// owning one Runner, so a slow prediction occupies a worker and not the
// request loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrPoolClosed is returned by Run after Close.
var ErrPoolClosed = errors.New("inference pool closed")

// Runner scores one input. Implementations need not be safe for concurrent
// use; a Runner is only ever called from its own worker.
type Runner interface {
	Run(input []float32) ([]float32, error)
	Close()
}

type job struct {
	ctx    context.Context
	input  []float32
	result chan<- result
}

type result struct {
	output []float32
	err    error
}

type Pool struct {
	jobs    chan job
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	runners []Runner
}

// NewPool starts one worker per runner. The pool takes ownership of the
// runners and closes them in Close.
func NewPool(runners []Runner) (*Pool, error) {
	if len(runners) == 0 {
		return nil, fmt.Errorf("inference pool needs at least one runner")
	}

	p := &Pool{
		jobs:    make(chan job),
		done:    make(chan struct{}),
		runners: runners,
	}
	for id, r := range runners {
		p.wg.Add(1)
		go p.work(id, r)
	}

	slog.Info("inference pool started", "workers", len(runners))
	return p, nil
}

func (p *Pool) work(id int, r Runner) {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case j := <-p.jobs:
			// The caller may have given up while the job was queued.
			if err := j.ctx.Err(); err != nil {
				j.result <- result{err: err}
				continue
			}
			out, err := r.Run(j.input)
			if err != nil {
				slog.Debug("inference failed", "worker", id, "error", err)
			}
			j.result <- result{output: out, err: err}
		}
	}
}

// Run queues input on the next free worker and waits for its output.
func (p *Pool) Run(ctx context.Context, input []float32) ([]float32, error) {
	reply := make(chan result, 1)
	j := job{ctx: ctx, input: input, result: reply}

	select {
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case p.jobs <- j:
	}

	select {
	case res := <-reply:
		return res.output, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Classify adapts the pool to the prediction service.
func (p *Pool) Classify(ctx context.Context, input []float32) ([]float32, error) {
	return p.Run(ctx, input)
}

// Size is the number of workers.
func (p *Pool) Size() int {
	return len(p.runners)
}

// Close stops accepting work, waits for in-flight jobs and closes every
// runner. It is safe to call more than once.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.done)
		p.wg.Wait()
		for _, r := range p.runners {
			r.Close()
		}
		slog.Info("inference pool stopped")
	})
}
