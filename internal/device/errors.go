package device

import (
	"errors"
	"fmt"
)

var (
	ErrFailure        = errors.New("device: failure")
	ErrNotSupported   = errors.New("device: not supported")
	ErrNotImplemented = errors.New("device: not implemented")
)

// BufferOverflowError 两阶段查询中取数量阶段的返回
type BufferOverflowError struct {
	Required int
}

func (e *BufferOverflowError) Error() string {
	return fmt.Sprintf("device: buffer overflow, %d entries required", e.Required)
}
