package errors

import (
	"errors"
	"fmt"
)

// Common error types for categorization and handling

var (
	// ErrNotFound indicates a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid caller input
	ErrInvalidInput = errors.New("invalid input")

	// ErrSourceUnavailable indicates a retrieval source cannot be reached
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrDatabaseOperation indicates a database operation failed
	ErrDatabaseOperation = errors.New("database operation failed")

	// ErrToolExecution indicates a tool invocation failed or timed out
	ErrToolExecution = errors.New("tool execution failed")

	// ErrLLMCommunication indicates LLM communication failed
	ErrLLMCommunication = errors.New("llm communication failed")

	// ErrParseFailure indicates structured output could not be extracted
	ErrParseFailure = errors.New("structured output parse failed")
)

// Wrap attaches a category sentinel to an underlying cause; both match
// with errors.Is
func Wrap(sentinel, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// WrapError wraps an error with context message and stack
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapErrorf wraps an error with formatted context message
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsSourceUnavailable checks if error is a source unavailable error
func IsSourceUnavailable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable)
}

// IsLLMCommunication checks if error is an LLM communication error
func IsLLMCommunication(err error) bool {
	return errors.Is(err, ErrLLMCommunication)
}

// IsToolExecution checks if error is a tool execution error
func IsToolExecution(err error) bool {
	return errors.Is(err, ErrToolExecution)
}
