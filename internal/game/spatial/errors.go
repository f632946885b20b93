package spatial

import "errors"

var (
	// ErrCapacityExhausted is returned by Insert when the edge list cannot
	// take two more edges. The insert is a no-op.
	ErrCapacityExhausted = errors.New("spatial: edge list capacity exhausted")

	// ErrTouchingOverflow is returned (wrapped) by Sweep when more entities
	// were simultaneously open on X than the active set can hold. The pass
	// still completes; the entities that did not fit were not paired with
	// later edges during that sweep.
	ErrTouchingOverflow = errors.New("spatial: active set overflow")

	// ErrSweepInProgress is returned when Sweep or Insert is called from
	// inside a collision handler.
	ErrSweepInProgress = errors.New("spatial: sweep in progress")

	// ErrNilEntity is returned when inserting a nil entity.
	ErrNilEntity = errors.New("spatial: nil entity")

	// ErrInvalidConfig is wrapped by Config.Validate.
	ErrInvalidConfig = errors.New("spatial: invalid config")
)
