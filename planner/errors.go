/*
errors.go - Error types for the allocation core

PURPOSE:
  All error values of the planner in one place. Callers classify failures
  with errors.Is against the sentinels, or with the IsXxx helpers below.

ERROR CATEGORIES:
  1. Invalid argument - rejected before any mutation (negative effort, nil
     resource, end before start)
  2. Policy violation - a legal request the planning rules refuse (sigmoid on
     consolidated progress, edit outside the restricted interval, queue
     overlap with executed history). State is left unchanged.
  3. Not found - unknown task, allocation, resource, calendar
  4. Infrastructure - version conflicts, calendars without capacity

  Invariant violations (a recomputation trying to rewrite a consolidated day)
  are not errors: see invariants.go.

SEE ALSO:
  - invariants.go: debug/release handling of invariant violations
  - api/handlers.go: HTTP status mapping
*/
package planner

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// Invalid argument
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrNegativeEffort         = fmt.Errorf("%w: effort must not be negative", ErrInvalidArgument)
	ErrInvalidInterval        = fmt.Errorf("%w: interval end before start", ErrInvalidArgument)
	ErrInvalidStretches       = fmt.Errorf("%w: invalid stretches", ErrInvalidArgument)
	ErrUnknownCalculatedValue = fmt.Errorf("%w: unknown calculated value", ErrInvalidArgument)
	ErrUnknownFunction        = fmt.Errorf("%w: unknown assignment function", ErrInvalidArgument)
	ErrNotLimiting            = fmt.Errorf("%w: allocation is not limiting", ErrInvalidArgument)

	// Policy violation
	ErrPolicyViolation          = errors.New("policy violation")
	ErrSigmoidWithConsolidation = fmt.Errorf("%w: cannot apply sigmoid function to a task with consolidated progress", ErrPolicyViolation)
	ErrOutsideRestriction       = fmt.Errorf("%w: edit outside the allowed interval", ErrPolicyViolation)
	ErrInvalidTotalEffort       = fmt.Errorf("%w: total effort is invalid for this restriction", ErrPolicyViolation)
	ErrConsolidatedOverlap      = fmt.Errorf("%w: overlaps a consolidated queued allocation", ErrPolicyViolation)
	ErrConsolidatedHistory      = fmt.Errorf("%w: operation would rewrite consolidated history", ErrPolicyViolation)
	ErrEditionDisabled          = fmt.Errorf("%w: detail item cannot be edited", ErrPolicyViolation)
	ErrLimitingNotAlone         = fmt.Errorf("%w: a limiting allocation must be the only allocation of its task", ErrPolicyViolation)

	// Not found
	ErrNotFound             = errors.New("not found")
	ErrTaskNotFound         = fmt.Errorf("task %w", ErrNotFound)
	ErrAllocationNotFound   = fmt.Errorf("allocation %w", ErrNotFound)
	ErrResourceNotFound     = fmt.Errorf("resource %w", ErrNotFound)
	ErrCalendarNotFound     = fmt.Errorf("calendar %w", ErrNotFound)
	ErrQueueElementNotFound = fmt.Errorf("queue element %w", ErrNotFound)

	// ErrConcurrentModification is returned when a stored version moved on.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrCapacityExhausted is returned when no capacity is found within the
	// calendar search horizon.
	ErrCapacityExhausted = errors.New("no calendar capacity within search horizon")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidArgumentError names the offending field.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidArgumentError) Unwrap() error { return ErrInvalidArgument }

// PolicyViolationError carries the message to surface to the user. Cause is
// one of the policy sentinels.
type PolicyViolationError struct {
	Code    string
	Message string
	Cause   error
}

func (e *PolicyViolationError) Error() string { return e.Message }

func (e *PolicyViolationError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return ErrPolicyViolation
}

// QueueOverlapError reports the queued allocation a fixed move collided with.
type QueueOverlapError struct {
	Resource    ResourceID
	Conflicting AllocationID
	Start       IntraDayDate
	End         IntraDayDate
}

func (e *QueueOverlapError) Error() string {
	return fmt.Sprintf("queue of %s: [%s, %s) overlaps consolidated allocation %s",
		e.Resource, e.Start, e.End, e.Conflicting)
}

func (e *QueueOverlapError) Unwrap() error { return ErrConsolidatedOverlap }

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }

func IsPolicyViolation(err error) bool { return errors.Is(err, ErrPolicyViolation) }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool { return errors.Is(err, ErrConcurrentModification) }

// UserMessage returns the text to show for a refused operation.
func UserMessage(err error) string {
	var pv *PolicyViolationError
	if errors.As(err, &pv) {
		return pv.Message
	}
	switch {
	case errors.Is(err, ErrSigmoidWithConsolidation):
		return "Task contains consolidated progress. Cannot apply sigmoid function."
	case errors.Is(err, ErrInvalidTotalEffort):
		return "Total effort is invalid for this restriction."
	case errors.Is(err, ErrOutsideRestriction):
		return "The edited dates are outside the allowed interval."
	case errors.Is(err, ErrConsolidatedOverlap):
		return "The allocation would overlap work already executed on this resource."
	}
	return err.Error()
}
