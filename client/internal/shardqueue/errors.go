package shardqueue

import (
	"errors"
	"fmt"
)

// ErrQueueFull reports back-pressure: the shard stayed full for the whole
// enqueue timeout.
var ErrQueueFull = errors.New("shard queue full")

// ErrExecutorClosed reports that the executor was stopped and accepts no work.
var ErrExecutorClosed = errors.New("shard executor closed")

// QueueFullError carries diagnostics while satisfying errors.Is(_, ErrQueueFull).
type QueueFullError struct {
	Shard    int
	Length   int
	Capacity int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("shard queue %d full (len=%d cap=%d)", e.Shard, e.Length, e.Capacity)
}

func (e *QueueFullError) Is(target error) bool { return target == ErrQueueFull }

// PanicError is handed to the error handler when a job panics.
type PanicError struct {
	Key   string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job for key %q panicked: %v", e.Key, e.Value)
}
