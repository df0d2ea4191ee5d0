package errors

import (
	"fmt"
	"strings"
)

// Error codes for the bus contracts. Keep stable; used across adapters, registry and bus.
const (
	ErrCodeHandlerExists       = "cmdr.handler_exists"
	ErrCodeHandlerNotFound     = "cmdr.handler_not_found"
	ErrCodeHandlerTypeMismatch = "cmdr.handler_type_mismatch"
	ErrCodeUnboundCommand      = "cmdr.unbound_command"
	ErrCodeInvalidSource       = "cmdr.invalid_source"
	ErrCodeRegistryFrozen      = "cmdr.registry_frozen"
	ErrCodeRecursionLimit      = "cmdr.recursion_limit"
	ErrCodeStreamConsumed      = "cmdr.stream_consumed"
	ErrCodeAsyncNotConfigured  = "cmdr.async_not_configured"
	ErrCodeEnqueueFailed       = "cmdr.enqueue_failed"
	ErrCodePublishFailed       = "cmdr.publish_failed"
	ErrCodeSerializationFailed = "cmdr.serialization_failed"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

// Registration-time errors abort startup. Dispatch-time errors are returned
// to the immediate caller of Execute.
var (
	ErrHandlerExists       = Code(ErrCodeHandlerExists)
	ErrUnboundCommand      = Code(ErrCodeUnboundCommand)
	ErrInvalidSource       = Code(ErrCodeInvalidSource)
	ErrRegistryFrozen      = Code(ErrCodeRegistryFrozen)
	ErrHandlerNotFound     = Code(ErrCodeHandlerNotFound)
	ErrHandlerTypeMismatch = Code(ErrCodeHandlerTypeMismatch)
	ErrRecursionLimit      = Code(ErrCodeRecursionLimit)
	ErrStreamConsumed      = Code(ErrCodeStreamConsumed)
	ErrAsyncNotConfigured  = Code(ErrCodeAsyncNotConfigured)
	ErrEnqueueFailed       = Code(ErrCodeEnqueueFailed)
	ErrPublishFailed       = Code(ErrCodePublishFailed)
	ErrSerializationFailed = Code(ErrCodeSerializationFailed)
)

// DuplicateHandlerError reports a second binding for a command or query type.
type DuplicateHandlerError struct {
	Message  string
	Existing string
	New      string
}

func (e *DuplicateHandlerError) Error() string {
	return fmt.Sprintf("duplicate handler for %s: %s already bound, rejected %s", e.Message, e.Existing, e.New)
}

func (e *DuplicateHandlerError) Unwrap() error { return ErrHandlerExists }

// UnboundCommandError reports declared capabilities that no method of the owner handles.
type UnboundCommandError struct {
	Owner   string
	Missing []string
}

func (e *UnboundCommandError) Error() string {
	return fmt.Sprintf("%s declares messages without handlers: %s", e.Owner, strings.Join(e.Missing, ", "))
}

func (e *UnboundCommandError) Unwrap() error { return ErrUnboundCommand }

// RecursionLimitError reports a command chain deeper than the configured limit.
type RecursionLimitError struct {
	Message string
	Depth   int
}

func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("executing %s at depth %d: recursion limit exceeded", e.Message, e.Depth)
}

func (e *RecursionLimitError) Unwrap() error { return ErrRecursionLimit }
