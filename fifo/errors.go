// File: fifo/errors.go
package fifo

import "errors"

var (
	// ErrWouldBlock is returned by TryPush when its single enqueue attempt
	// finds the queue full.
	ErrWouldBlock = errors.New("fifo: push would block")
)
