package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/experimentkit/types"
)

var (
	// ErrDuplicateCapability 名称已注册且未要求覆盖
	ErrDuplicateCapability = errors.New("capability already registered")

	// ErrCapabilityNotFound 名称未注册
	ErrCapabilityNotFound = errors.New("capability not registered")

	// ErrInvalidInput 输入缺失或类型错误
	ErrInvalidInput = errors.New("invalid capability input")
)

// ExecutionError is the uniform failure of one capability invocation.
type ExecutionError struct {
	Capability string
	Cause      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("agent %s execution failed: %v", e.Capability, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// NewExecutionError wraps cause, unless it already is an ExecutionError for the same capability.
func NewExecutionError(capability string, cause error) *ExecutionError {
	var ee *ExecutionError
	if errors.As(cause, &ee) && ee.Capability == capability {
		return ee
	}
	return &ExecutionError{Capability: capability, Cause: cause}
}

// ErrorCode classifies err for metrics labels and HTTP rendering.
func ErrorCode(err error) types.ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDuplicateCapability):
		return types.ErrConflict
	case errors.Is(err, ErrCapabilityNotFound):
		return types.ErrNotFound
	case errors.Is(err, ErrInvalidInput):
		return types.ErrInvalidRequest
	case errors.Is(err, context.DeadlineExceeded):
		return types.ErrTimeout
	}
	if code := types.GetErrorCode(err); code != "" {
		return code
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return types.ErrAgentExecution
	}
	return types.ErrInternalError
}
