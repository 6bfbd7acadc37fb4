package vm

import "fmt"

// RuntimeError represents a failure that occurs while executing bytecode,
// as opposed to a failure in lexing, parsing, or compiling.
type RuntimeError struct {
	Message string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %s", e.Message)
}

func newRuntimeError(format string, a ...any) *RuntimeError {
	return &RuntimeError{Message: fmt.Sprintf(format, a...)}
}
