package router

import (
	"errors"

	"github.com/systmms/credroute/internal/query"
	"github.com/systmms/credroute/pkg/credential"
)

// outcome is one backend's find result.
type outcome struct {
	result credential.Result
	err    error
}

// mergeFind combines the find outcomes of the targeted backends.
//
// A modern entitlement failure leaves the legacy store authoritative. Otherwise a
// failed side yields to a successful one, two collections are concatenated modern
// first, and of two single results the non-empty one wins, modern on ties. When
// both fail the most interesting error is returned.
func mergeFind(t query.Targets, modern, legacy outcome) (credential.Result, error) {
	switch {
	case !t.Modern:
		return legacy.result, legacy.err
	case !t.Legacy:
		return modern.result, modern.err
	}

	if errors.Is(modern.err, credential.ErrMissingEntitlement) {
		return legacy.result, legacy.err
	}
	switch {
	case modern.err == nil && legacy.err != nil:
		return modern.result, nil
	case modern.err != nil && legacy.err == nil:
		return legacy.result, nil
	case modern.err != nil && legacy.err != nil:
		return nil, credential.Aggregate(modern.err, legacy.err)
	}

	mc, mIsColl := modern.result.(credential.Collection)
	lc, lIsColl := legacy.result.(credential.Collection)
	if mIsColl && lIsColl {
		out := make(credential.Collection, 0, len(mc)+len(lc))
		return append(append(out, mc...), lc...), nil
	}
	if isEmpty(modern.result) && !isEmpty(legacy.result) {
		return legacy.result, nil
	}
	return modern.result, nil
}

func isEmpty(r credential.Result) bool {
	switch v := r.(type) {
	case nil:
		return true
	case credential.Collection:
		return len(v) == 0
	case []byte:
		return len(v) == 0
	case credential.PersistentRef:
		return len(v) == 0
	case credential.AttributeMap:
		return len(v) == 0
	}
	return false
}

// mergeStatus combines the update or delete statuses of the targeted backends.
// Not-found is the result only when every targeted backend reported it.
func mergeStatus(t query.Targets, modern, legacy error) error {
	var errs []error
	if t.Modern {
		errs = append(errs, modern)
	}
	if t.Legacy {
		errs = append(errs, legacy)
	}
	return credential.Aggregate(errs...)
}
