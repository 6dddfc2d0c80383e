// Package errs defines the error taxonomy shared by the dispatcher, its store
// and its HTTP surface.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the dispatch trigger carries a missing or wrong secret.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConfiguration marks a missing or invalid setting detected at startup.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrStore marks a failure of the reminder store.
	ErrStore = errors.New("store error")
	// ErrRunInProgress is returned when another dispatcher run holds the run lock.
	ErrRunInProgress = errors.New("dispatch run already in progress")
	// ErrUnknownChannel is returned when a reminder names a channel with no sender.
	ErrUnknownChannel = errors.New("unknown channel")
)

// DeliveryError describes a failed delivery through a channel. It is recorded
// on the reminder and never aborts a run.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver via %s: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Store wraps err as a store error, keeping the original for errors.Is/As.
func Store(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
