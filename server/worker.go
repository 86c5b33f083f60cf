package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nako4/nako4/compiler"
)

// ErrWorkerStopped is returned by Do after Stop.
var ErrWorkerStopped = errors.New("session worker stopped")

// workRequest represents a unit of work to be executed on the session goroutine.
type workRequest struct {
	fn   func(*compiler.Session) any
	done chan workResult
}

// workResult holds the return value from a session operation.
type workResult struct {
	value any
	err   error
}

// Worker serializes all access to one compiler.Session through a single
// goroutine. A Session is not safe for concurrent use; every RPC that
// touches it must go through the worker.
type Worker struct {
	session  *compiler.Session
	requests chan workRequest
	quit     chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker(s *compiler.Session) *Worker {
	w := &Worker{
		session:  s,
		requests: make(chan workRequest, 16),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a function on the session, recovering from panics.
func (w *Worker) execute(fn func(*compiler.Session) any) workResult {
	var result workResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("%v", r)
			}
		}()
		result.value = fn(w.session)
	}()
	return result
}

// Do submits fn for execution on the session goroutine and blocks until it
// completes, ctx is cancelled, or the worker stops.
func (w *Worker) Do(ctx context.Context, fn func(*compiler.Session) any) (any, error) {
	req := workRequest{
		fn:   fn,
		done: make(chan workResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts down the worker goroutine. Stop is idempotent.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
