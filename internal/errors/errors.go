// Package errors provides the structured error type shared by the include
// engine, its classification helpers, and a collector for per-placeholder
// failures.
package errors

import (
	"sync"
	"time"
)

// PlaceholderError records one failed placeholder pipeline.
type PlaceholderError struct {
	Source    string
	Err       error
	Timestamp time.Time
}

// ErrorCollector collects the failures of one include run. The run still
// reports only its first error; the collector keeps the rest for logging.
type ErrorCollector struct {
	failures []PlaceholderError
	mutex    sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		failures: make([]PlaceholderError, 0),
	}
}

// Add records a failure for the placeholder with the given source attribute.
func (ec *ErrorCollector) Add(source string, err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.failures = append(ec.failures, PlaceholderError{
		Source:    source,
		Err:       err,
		Timestamp: time.Now(),
	})
}

// Failures returns a copy of the recorded failures in arrival order.
func (ec *ErrorCollector) Failures() []PlaceholderError {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]PlaceholderError, len(ec.failures))
	copy(result, ec.failures)
	return result
}

// First returns the earliest recorded error, or nil.
func (ec *ErrorCollector) First() error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	if len(ec.failures) == 0 {
		return nil
	}
	return ec.failures[0].Err
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.failures) > 0
}
