// Package products owns products and their append-only price histories.
package products

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/valeevte/valora/internal/pricing"
)

// NextFunc derives the next observation from the latest price of a product.
// last is the zero time when the product has no records yet.
type NextFunc func(latest float64, last time.Time) (price float64, at time.Time)

// Store is the time-series store every other component talks to.
//
// Operations on one product are serialized against each other; operations on
// different products do not share a lock.
type Store interface {
	AddProduct(ctx context.Context, name string, initialPrice float64) (ProductID, error)
	GetProduct(ctx context.Context, id ProductID) (Product, error)
	// DeleteProduct removes the product and its whole history atomically.
	DeleteProduct(ctx context.Context, id ProductID) error
	// LatestPrice returns the last recorded price, or the initial price when
	// nothing was recorded yet.
	LatestPrice(ctx context.Context, id ProductID) (float64, error)
	AppendPrice(ctx context.Context, id ProductID, price float64, at time.Time) (PriceRecord, error)
	// History is ascending by time and empty (not nil) without records.
	History(ctx context.Context, id ProductID) ([]PriceRecord, error)
	ListProducts(ctx context.Context) ([]Product, error)
	// Advance reads the latest price, calls next and appends its result as
	// one step with respect to other callers on the same product.
	Advance(ctx context.Context, id ProductID, next NextFunc) (PriceRecord, error)
}

func validateProduct(name string, initialPrice float64) (string, float64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", 0, fmt.Errorf("%w: name must not be empty", ErrValidation)
	}
	if !(initialPrice > 0) || math.IsInf(initialPrice, 1) || pricing.Round(initialPrice) <= 0 {
		return "", 0, fmt.Errorf("%w: initial price must be positive, got %v", ErrValidation, initialPrice)
	}
	return name, pricing.Round(initialPrice), nil
}

func validateRecord(price float64, at, last time.Time) (float64, error) {
	if !(price >= pricing.MinPrice) || math.IsInf(price, 1) {
		return 0, fmt.Errorf("%w: price %v below %v", ErrValidation, price, pricing.MinPrice)
	}
	if at.Before(last) {
		return 0, fmt.Errorf("%w: timestamp %s before last record %s", ErrValidation,
			at.Format(time.RFC3339Nano), last.Format(time.RFC3339Nano))
	}
	return pricing.Round(price), nil
}

// clampTime keeps a generated timestamp from going behind the last record.
func clampTime(at, last time.Time) time.Time {
	if at.Before(last) {
		return last
	}
	return at
}
