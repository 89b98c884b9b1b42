package optimization

import "sync/atomic"

// allocationForbidden is the process-wide allocation guard. Real-time callbacks
// run with it cleared; every framework code path that would allocate checks it
// first and fails instead.
var allocationForbidden atomic.Bool

// SetAllocationAllowed switches the allocation guard and returns the previous
// setting.
func SetAllocationAllowed(allowed bool) (previous bool) {
	return !allocationForbidden.Swap(!allowed)
}

// AllocationAllowed reports whether framework code may allocate.
func AllocationAllowed() bool {
	return !allocationForbidden.Load()
}

// CheckAllocation returns ErrAllocationForbidden, tagged with op, while the
// guard is active.
func CheckAllocation(op string) error {
	if allocationForbidden.Load() {
		return WrapError(ErrAllocationForbidden, "dynamic allocation attempted in a real-time section").WithOperation(op)
	}
	return nil
}

// WithoutAllocation runs fn with the allocation guard active and restores the
// previous setting afterwards, even if fn panics.
func WithoutAllocation(fn func() error) error {
	previous := SetAllocationAllowed(false)
	defer SetAllocationAllowed(previous)
	return fn()
}
