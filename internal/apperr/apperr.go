// Package apperr classifies errors into a fixed set of categories so that
// state machines can decide retry/escalation policy by category, not by
// string matching.
package apperr

import "fmt"

// Category is one of the seven error kinds the pipeline distinguishes.
type Category string

const (
	Configuration Category = "configuration"
	TransientTransport Category = "transient_transport"
	Protocol Category = "protocol"
	BusinessLogic Category = "business_logic"
	ResourceLimit Category = "resource_limit"
	PermissionDenied Category = "permission_denied"
	Cancelled Category = "cancelled"
)

// Error wraps an underlying cause with a category and a short code, while
// keeping errors.As-able sentinel types for the cases callers branch on.
type Error struct {
	Cat Category
	Code string
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a categorized error.
func New(cat Category, code, msg string, cause error) *Error {
	return &Error{Cat: cat, Code: code, Msg: msg, Err: cause}
}

// Is categorization helpers used by state machines deciding retry policy.
func IsTransient(err error) bool { return hasCategory(err, TransientTransport) }
func IsCancelled(err error) bool { return hasCategory(err, Cancelled) }

func hasCategory(err error, cat Category) bool {
	type categorized interface{ Category() Category }
	for err != nil {
		if c, ok := err.(*Error); ok && c.Cat == cat {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Category reports the error's classification (implements the categorized
// helper interface above).
func (e *Error) Category() Category { return e.Cat }

// TimeoutError is raised by the JSON-RPC multiplexer when a request's
// per-call timeout elapses before a response arrives.
type TimeoutError struct {
	ServerName string
	Method string
	TimeoutMs int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("jsonrpc: %s.%s timed out after %dms", e.ServerName, e.Method, e.TimeoutMs)
}

// ConnectionClosed is raised for every pending waiter when a connection
// closes before its response arrives.
type ConnectionClosed struct {
	ServerName string
}

func (e *ConnectionClosed) Error() string {
	return fmt.Sprintf("jsonrpc: connection %q closed", e.ServerName)
}

// RPCError mirrors a JSON-RPC 2.0 error object {code, message, data}.
type RPCError struct {
	Code int
	Message string
	Data any
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// CancelledError is returned by long-running operations that observe
// cancellation.
type CancelledError struct{ Op string }

func (e *CancelledError) Error() string { return fmt.Sprintf("%s: cancelled", e.Op) }

// --- Engine / Supervisor business-logic errors ---

type PlanGenerationError struct{ Reason string }

func (e *PlanGenerationError) Error() string { return "plan generation failed: " + e.Reason }

type CIFailedError struct {
	PRNumber int
	Status CIStatusSummary
}

func (e *CIFailedError) Error() string {
	return fmt.Sprintf("ci failed for PR #%d: success=%d failure=%d pending=%d error=%d",
		e.PRNumber, e.Status.Success, e.Status.Failure, e.Status.Pending, e.Status.Error)
}

type CIStatusSummary struct{ Success, Pending, Failure, Error int }

type CITimeoutError struct {
	PRNumber int
	WaitedMs int64
}

func (e *CITimeoutError) Error() string {
	return fmt.Sprintf("ci polling for PR #%d timed out after %dms", e.PRNumber, e.WaitedMs)
}

type ApprovalDeniedError struct{ Reason string }

func (e *ApprovalDeniedError) Error() string { return "approval denied: " + e.Reason }

type ImplementationFailedError struct{ Reason string }

func (e *ImplementationFailedError) Error() string { return "implementation failed: " + e.Reason }

type CostLimitExceededError struct {
	SpentUsd, LimitUsd float64
}

func (e *CostLimitExceededError) Error() string {
	return fmt.Sprintf("cost limit exceeded: spent $%.2f of $%.2f", e.SpentUsd, e.LimitUsd)
}

type EscalationRequiredError struct{ Reason string }

func (e *EscalationRequiredError) Error() string { return "escalation required: " + e.Reason }
