package errors

import "fmt"

// Config errors

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Err error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse YAML: %v", e.Err)
}

func (e *ErrConfigParse) Unwrap() error {
	return e.Err
}

type ErrConfigValidation struct {
	Err error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ErrConfigValidation) Unwrap() error {
	return e.Err
}

// Aggregation errors

// ErrNotConfigured means the management proxy endpoint or key is absent.
// Callers translate this into a "not configured" response rather than a
// generic failure, so a dependent UI can render setup instructions.
type ErrNotConfigured struct {
	Missing string
}

func (e *ErrNotConfigured) Error() string {
	if e.Missing != "" {
		return fmt.Sprintf("usage pipeline not configured: missing %s", e.Missing)
	}
	return "usage pipeline not configured"
}

// ErrProxyUnreachable means the management proxy itself could not be
// reached or rejected a management call. This fails the whole aggregation
// cycle, unlike per-account fetch failures which are absorbed as data.
type ErrProxyUnreachable struct {
	StatusCode int
	Err        error
}

func (e *ErrProxyUnreachable) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("management proxy returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("management proxy unreachable: %v", e.Err)
}

func (e *ErrProxyUnreachable) Unwrap() error {
	return e.Err
}

// History errors

// ErrHistoryUnavailable means the snapshot store is not configured or not
// reachable. It is distinct from an empty series so callers can render a
// configuration hint instead of an empty chart.
type ErrHistoryUnavailable struct {
	Reason string
}

func (e *ErrHistoryUnavailable) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("usage history unavailable: %s", e.Reason)
	}
	return "usage history unavailable"
}

// Database errors

type ErrDatabaseOpen struct {
	Path string
	Err  error
}

func (e *ErrDatabaseOpen) Error() string {
	return fmt.Sprintf("failed to open database %s: %v", e.Path, e.Err)
}

func (e *ErrDatabaseOpen) Unwrap() error {
	return e.Err
}

type ErrDatabaseMigration struct {
	Version int
	Err     error
}

func (e *ErrDatabaseMigration) Error() string {
	return fmt.Sprintf("database migration %d failed: %v", e.Version, e.Err)
}

func (e *ErrDatabaseMigration) Unwrap() error {
	return e.Err
}

type ErrDatabaseQuery struct {
	Operation string
	Err       error
}

func (e *ErrDatabaseQuery) Error() string {
	return fmt.Sprintf("database query failed for operation %s: %v", e.Operation, e.Err)
}

func (e *ErrDatabaseQuery) Unwrap() error {
	return e.Err
}

// Server errors

type ErrServerStart struct {
	Addr string
	Err  error
}

func (e *ErrServerStart) Error() string {
	return fmt.Sprintf("failed to start server on %s: %v", e.Addr, e.Err)
}

func (e *ErrServerStart) Unwrap() error {
	return e.Err
}

type ErrServerShutdown struct {
	Err error
}

func (e *ErrServerShutdown) Error() string {
	return fmt.Sprintf("server shutdown failed: %v", e.Err)
}

func (e *ErrServerShutdown) Unwrap() error {
	return e.Err
}

// Filesystem errors

type ErrDirectoryCreate struct {
	Path string
	Err  error
}

func (e *ErrDirectoryCreate) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *ErrDirectoryCreate) Unwrap() error {
	return e.Err
}

type ErrFileRead struct {
	Path string
	Err  error
}

func (e *ErrFileRead) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *ErrFileRead) Unwrap() error {
	return e.Err
}
