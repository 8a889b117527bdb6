package model

import (
	"errors"
	"fmt"
)

// Error kinds the collector uses to decide run-level outcomes. Lower layers
// wrap their failures in one of these; only the collector and the CLI look at
// the kind.

// ConfigError is a missing or invalid configuration value. Fatal at startup.
type ConfigError struct{ Msg string }

func (e *ConfigError) Error() string { return "config: " + e.Msg }

// NetworkError is a transport failure or 5xx that survived all retries.
type NetworkError struct {
	URL     string
	Retries int
	Err     error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: %s after %d retries: %v", e.URL, e.Retries, e.Err)
}
func (e *NetworkError) Unwrap() error { return e.Err }

// NotFoundError is a 404 on a candidate URL: the bulletin does not exist.
type NotFoundError struct{ URL string }

func (e *NotFoundError) Error() string { return "not found: " + e.URL }

// ParseError is a structural HTML problem that aborts one bulletin.
type ParseError struct {
	URL string
	Msg string
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse: %s: %s", e.URL, e.Msg) }

// ValidationError is an invariant violation on a single entry.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return "validation: " + e.Msg }

// QualityError quarantines a whole bulletin that failed a quality gate.
type QualityError struct {
	Reason string
	Rate   float64
}

func (e *QualityError) Error() string {
	return fmt.Sprintf("quality: %s (rate=%.2f)", e.Reason, e.Rate)
}

// StorageError is a persistence failure, fatal for one bulletin's transaction.
type StorageError struct{ Err error }

func (e *StorageError) Error() string { return "storage: " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsQuality reports whether err is a QualityError.
func IsQuality(err error) bool {
	var qe *QualityError
	return errors.As(err, &qe)
}
