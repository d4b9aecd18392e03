package backup

import (
	"errors"
	"runtime/debug"
	"sync"
)

// Pool runs functions on at most width goroutines at a time. Goroutines are
// started on demand; Go blocks while all of them are busy.
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup

	mu     sync.Mutex
	closed bool
	errs   []error
}

// NewPool creates a pool of the given width. Widths below one are treated as one.
func NewPool(width int) *Pool {
	if width < 1 {
		width = 1
	}
	return &Pool{sem: make(chan struct{}, width)}
}

// Go runs fn on a pool goroutine, blocking until a slot is free.
func (p *Pool) Go(fn func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	p.sem <- struct{}{}
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()
		defer func() {
			if v := recover(); v != nil {
				p.record(&PanicError{Value: v, Stack: debug.Stack()})
			}
		}()
		fn()
	}()
	return nil
}

// Busy returns the number of goroutines currently running.
func (p *Pool) Busy() int { return len(p.sem) }

// Wait blocks until every submitted function has returned and reports the
// panics recovered so far.
func (p *Pool) Wait() error {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.errs...)
}

// Shutdown rejects further submissions and waits for in-flight work.
// It is safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) record(err error) {
	p.mu.Lock()
	p.errs = append(p.errs, err)
	p.mu.Unlock()
}
