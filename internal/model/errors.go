package model

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. User-facing dispositions are decided by the command
// surface; everything in between wraps these with %w.
var (
	// ErrWrongCondition covers parse, rewrite, typecheck and evaluation
	// shape errors in a rule expression.
	ErrWrongCondition = errors.New("wrong condition")

	// ErrNonexistentAggregator is an unknown short code in a "#AGG:" prefix.
	ErrNonexistentAggregator = errors.New("nonexistent aggregator")

	// ErrNonexistentNotification is a remove for an id that is not stored.
	ErrNonexistentNotification = errors.New("nonexistent notification")

	// ErrUnknownAggregator means the store-keeper has no adapter registered
	// for the requested aggregator.
	ErrUnknownAggregator = errors.New("unknown aggregator")

	// ErrNoData means the upstream returned nothing for the window.
	ErrNoData = errors.New("no data in window")
)

// FetchError is a transient upstream failure (network, HTTP status,
// rate limit, no data). Evaluation is skipped for the current tick.
type FetchError struct {
	Aggregator Aggregator
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch from %s failed: %v", e.Aggregator, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DecodeError is a malformed upstream payload.
type DecodeError struct {
	Aggregator Aggregator
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s payload: %v", e.Aggregator, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
