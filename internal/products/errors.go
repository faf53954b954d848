package products

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation reports bad input to a store operation.
	ErrValidation = errors.New("validation error")
	// ErrNotFound reports an unknown or deleted product.
	ErrNotFound = errors.New("product not found")
	// ErrStorage wraps failures of the underlying persistence.
	ErrStorage = errors.New("storage error")
	// ErrConcurrencyConflict reports an append that raced with a delete of the
	// same product. Such errors also match ErrNotFound.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

func notFound(id ProductID) error {
	return fmt.Errorf("%w: id=%d", ErrNotFound, id)
}

func conflict(id ProductID) error {
	return fmt.Errorf("%w: product %d deleted during append: %w", ErrConcurrencyConflict, id, ErrNotFound)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
