package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned for malformed input, before any store access.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrConfigNotFound is returned when the configuration does not exist.
	ErrConfigNotFound = errors.New("configuration not found")

	// ErrEmptyComposition is returned when a configuration has no components and cannot be ordered.
	ErrEmptyComposition = errors.New("configuration has no components")

	// ErrComponentNotFound is returned when a component does not exist.
	ErrComponentNotFound = errors.New("component not found")

	// ErrAlreadyExists is returned when creating an entity whose id is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrOrderNotFound is returned when the order does not exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrForbidden is returned when the principal may not access the resource.
	ErrForbidden = errors.New("forbidden")
)

// InsufficientStockError reports the first component that cannot cover a reservation.
type InsufficientStockError struct {
	ComponentID   string
	ComponentName string
	Required      int
	Available     int
}

// Error implements the error interface.
func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: required %d, available %d", e.ComponentName, e.Required, e.Available)
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
