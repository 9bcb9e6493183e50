package credential

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the router and both stores.
var (
	ErrParameter              = errors.New("invalid parameter")
	ErrItemClassMissing       = errors.New("item class missing")
	ErrInvalidValue           = errors.New("invalid value")
	ErrAllocationFailure      = errors.New("allocation failure")
	ErrReturnDataUnsupported  = errors.New("returning secret data for all matches is not supported")
	ErrItemNotFound           = errors.New("item not found")
	ErrDuplicateItem          = errors.New("duplicate item")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrInteractionNotAllowed  = errors.New("user interaction not allowed")
	ErrTrustNotAvailable      = errors.New("trust evaluation not available")
	ErrNotTrusted             = errors.New("certificate not trusted")
	ErrTrustSettingDeny       = errors.New("trust setting denies certificate")
	ErrMissingEntitlement     = errors.New("missing entitlement")
	ErrBackendInternal        = errors.New("backend internal error")
)

// Error wraps a taxonomy error with the operation and backend it came from.
type Error struct {
	Op      string // "find", "add", "update", "delete", "migrate", ...
	Backend Backend
	Err     error
}

func (e *Error) Error() string {
	if e.Backend != BackendNone {
		return fmt.Sprintf("%s (%s store): %v", e.Op, e.Backend, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// severityOrder ranks errors from least to most interesting. ErrItemNotFound is the
// baseline; anything not listed ranks with ErrBackendInternal.
var severityOrder = []error{
	ErrItemNotFound,
	ErrBackendInternal,
	ErrTrustNotAvailable,
	ErrNotTrusted,
	ErrTrustSettingDeny,
	ErrMissingEntitlement,
	ErrDuplicateItem,
	ErrAuthenticationRequired,
	ErrInteractionNotAllowed,
	ErrAllocationFailure,
	ErrInvalidValue,
	ErrItemClassMissing,
	ErrReturnDataUnsupported,
	ErrParameter,
}

// Severity ranks err for "most interesting error" aggregation. nil ranks 0.
func Severity(err error) int {
	if err == nil {
		return 0
	}
	for i, target := range severityOrder {
		if errors.Is(err, target) {
			return i + 1
		}
	}
	return 2
}

// IsNotFound reports whether err is the baseline "not found" status.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}

// Aggregate folds per-backend or per-item statuses into one. Any non-baseline error
// wins (the most severe, first seen on ties); otherwise any success wins; "not found"
// is returned only when every status reported it.
func Aggregate(errs ...error) error {
	var worst, notFound error
	succeeded := false
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded = true
		case IsNotFound(err):
			if notFound == nil {
				notFound = err
			}
		case worst == nil || Severity(err) > Severity(worst):
			worst = err
		}
	}
	if worst != nil {
		return worst
	}
	if succeeded {
		return nil
	}
	return notFound
}
