// Package errs defines the error taxonomy shared by every component: a small
// set of wrapper types that classify a cause as validation, authorization,
// transient, permanent, or fatal, so middle-tier components can decide to
// retry, pass through, or abort without inspecting vendor-specific error
// values directly.
package errs

import "fmt"

// Validation wraps bad input from a user or an invalid configuration value.
// Never retried.
type Validation struct {
	Msg   string
	cause error
}

func NewValidation(msg string, cause error) *Validation { return &Validation{Msg: msg, cause: cause} }
func (e *Validation) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("validation: %s: %v", e.Msg, e.cause)
	}
	return "validation: " + e.Msg
}
func (e *Validation) Unwrap() error { return e.cause }

// Unauthorized wraps an identity lookup miss, or a cache saying the user is
// not authorized.
type Unauthorized struct {
	Msg   string
	cause error
}

func NewUnauthorized(msg string, cause error) *Unauthorized {
	return &Unauthorized{Msg: msg, cause: cause}
}
func (e *Unauthorized) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("unauthorized: %s: %v", e.Msg, e.cause)
	}
	return "unauthorized: " + e.Msg
}
func (e *Unauthorized) Unwrap() error { return e.cause }

// Transient wraps network, rate-limit, 5xx, and breaker-open failures. The
// originating component has already exhausted its own retry budget by the
// time it surfaces a Transient to its caller.
type Transient struct {
	Msg   string
	cause error
}

func NewTransient(msg string, cause error) *Transient { return &Transient{Msg: msg, cause: cause} }
func (e *Transient) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("transient: %s: %v", e.Msg, e.cause)
	}
	return "transient: " + e.Msg
}
func (e *Transient) Unwrap() error { return e.cause }

// Permanent wraps auth failures, not-found responses, and schema mismatches.
// Logged at ERROR, operation abandoned, process continues.
type Permanent struct {
	Msg   string
	cause error
}

func NewPermanent(msg string, cause error) *Permanent { return &Permanent{Msg: msg, cause: cause} }
func (e *Permanent) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("permanent: %s: %v", e.Msg, e.cause)
	}
	return "permanent: " + e.Msg
}
func (e *Permanent) Unwrap() error { return e.cause }

// NotFound is a specialization of Permanent for the common "row/resource
// absent" case the sheets gateway and auth service both need to distinguish
// from a generic permanent failure.
type NotFound struct {
	Msg string
}

func NewNotFound(msg string) *NotFound { return &NotFound{Msg: msg} }
func (e *NotFound) Error() string      { return "not found: " + e.Msg }

// BreakerOpen is returned by the circuit breaker when a call is rejected
// without ever reaching the underlying client. Callers treat it as Transient.
type BreakerOpen struct {
	Endpoint string
}

func NewBreakerOpen(endpoint string) *BreakerOpen { return &BreakerOpen{Endpoint: endpoint} }
func (e *BreakerOpen) Error() string              { return "breaker open: " + e.Endpoint }

// Fatal wraps a single-instance lock conflict, invalid startup config, or a
// watchdog timeout. The process exits non-zero after logging it.
type Fatal struct {
	Msg   string
	cause error
}

func NewFatal(msg string, cause error) *Fatal { return &Fatal{Msg: msg, cause: cause} }
func (e *Fatal) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("fatal: %s: %v", e.Msg, e.cause)
	}
	return "fatal: " + e.Msg
}
func (e *Fatal) Unwrap() error { return e.cause }
