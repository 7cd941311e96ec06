// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrRateLimited     = errors.New("rate limited")
	ErrProvider        = errors.New("provider error")
	ErrTimeout         = errors.New("operation timed out")
	ErrCircuitOpen     = errors.New("quota circuit is open")
	ErrConfigInvalid   = errors.New("invalid configuration")
	ErrMissingAPIKey   = errors.New("missing provider API key")
	ErrDataNotFound    = errors.New("data not found")
	ErrSymbolNotFound  = errors.New("symbol not found")
	ErrDatabaseError   = errors.New("database error")
	ErrInputValidation = errors.New("input validation failed")
)

// ProviderError represents a failed call to the market-data provider.
type ProviderError struct {
	Endpoint string
	Symbol   string
	Attempts int
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider error [%s] %s after %d attempt(s): %s: %v", e.Endpoint, e.Symbol, e.Attempts, e.Message, e.Err)
	}
	return fmt.Sprintf("provider error [%s] %s after %d attempt(s): %s", e.Endpoint, e.Symbol, e.Attempts, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new ProviderError.
func NewProviderError(endpoint, symbol string, attempts int, message string, err error) *ProviderError {
	return &ProviderError{
		Endpoint: endpoint,
		Symbol:   symbol,
		Attempts: attempts,
		Message:  message,
		Err:      err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// IsRetryable reports whether another attempt at the same unit of work might
// succeed. Rate limits are excluded: the provider client waits out cooldowns
// itself and the quota circuit decides when calling again is worthwhile.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrProvider) || errors.Is(err, ErrDatabaseError)
}
