package domain

import "github.com/pkg/errors"

var (
	// ErrInvalidPositionState snapshot with zero/negative amount or cost.
	ErrInvalidPositionState = errors.New("invalid position state")
	// ErrInvalidConfiguration configuration cannot be used to start the engine.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrSnapshotUnavailable no open position for the symbol.
	ErrSnapshotUnavailable = errors.New("position snapshot unavailable")
	// ErrDownstreamEmission order dispatcher or statistics sink failed.
	ErrDownstreamEmission = errors.New("downstream emission failed")
	// ErrDuplicateOrder the order for this position step was already submitted.
	ErrDuplicateOrder = errors.New("duplicate order")
)
