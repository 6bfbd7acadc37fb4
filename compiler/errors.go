package compiler

import "fmt"

// CompileError represents a failure to translate an AST into bytecode, as
// opposed to a failure while lexing or parsing the source text.
//
// Reason is a stable, machine-checkable code (e.g. "undefined_variable")
// that callers can switch on without parsing Message.
type CompileError struct {
	Reason  string
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile error: %s", e.Message)
}

func newCompileError(reason, format string, a ...any) *CompileError {
	return &CompileError{Reason: reason, Message: fmt.Sprintf(format, a...)}
}
