package backup

import (
	"errors"
	"fmt"
)

var (
	ErrPoolClosed    = errors.New("worker pool is shut down")
	ErrMissingResult = errors.New("task finished without a result")
	ErrReadTimeout   = errors.New("read timeout")
)

// PanicError is recorded when a worker panics instead of returning a Result.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker panic: %v", e.Value)
}
