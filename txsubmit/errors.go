package txsubmit

import (
	"errors"
	"strings"
)

// ErrorClass buckets executor failures into the categories the presentation
// layer can phrase for a user. Classification is by substring because the
// upstream signer does not expose stable error codes.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassInsufficientBalance
	ClassNotDeployed
	ClassExecutionFailed
	ClassRandomnessFailed
)

// String implements fmt.Stringer; the values double as metric labels.
func (c ErrorClass) String() string {
	switch c {
	case ClassInsufficientBalance:
		return "insufficient_balance"
	case ClassNotDeployed:
		return "not_deployed"
	case ClassExecutionFailed:
		return "execution_failed"
	case ClassRandomnessFailed:
		return "randomness_failed"
	default:
		return "unknown"
	}
}

// UserMessage renders the category for display.
func (c ErrorClass) UserMessage() string {
	switch c {
	case ClassInsufficientBalance:
		return "Insufficient balance to complete this action."
	case ClassNotDeployed:
		return "Your account is not deployed yet."
	case ClassExecutionFailed:
		return "The transaction was rejected by the contract."
	case ClassRandomnessFailed:
		return "Randomness request failed, please try again."
	default:
		return "Something went wrong submitting the transaction."
	}
}

// Classify maps an executor error onto a class, independent of the exact
// upstream wording.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient"):
		return ClassInsufficientBalance
	case strings.Contains(msg, "not deployed"), strings.Contains(msg, "uninitialized"), strings.Contains(msg, "undeployed"):
		return ClassNotDeployed
	case strings.Contains(msg, "random"), strings.Contains(msg, "vrf"):
		return ClassRandomnessFailed
	case strings.Contains(msg, "revert"), strings.Contains(msg, "execution"), strings.Contains(msg, "assert"):
		return ClassExecutionFailed
	default:
		return ClassUnknown
	}
}

// SubmitError carries the classified failure back to the caller.
type SubmitError struct {
	Class ErrorClass
	Err   error
}

// Error implements the error interface.
func (e *SubmitError) Error() string {
	return "txsubmit: " + e.Class.String() + ": " + e.Err.Error()
}

// Unwrap exposes the underlying executor error.
func (e *SubmitError) Unwrap() error { return e.Err }

// ClassOf extracts the class from any error chain, defaulting to unknown.
func ClassOf(err error) ErrorClass {
	var submitErr *SubmitError
	if errors.As(err, &submitErr) {
		return submitErr.Class
	}
	return ClassUnknown
}
