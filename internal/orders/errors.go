package orders

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrProductNotFound     = errors.New("product not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrOrderNotFound       = errors.New("order not found")
	ErrConcurrencyConflict = errors.New("concurrent modification, retry the operation")
)

// ValidationError is reported before any store access.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type ProductNotFoundError struct {
	IDs []int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", joinIDs(e.IDs))
}

func (e *ProductNotFoundError) Is(target error) bool { return target == ErrProductNotFound }

// Shortage describes one product whose live stock cannot absorb the
// requested positive delta.
type Shortage struct {
	ProductID int64 `json:"product_id"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
}

type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("product %d requested %d available %d", s.ProductID, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type OrderNotFoundError struct {
	ID int64
}

func (e *OrderNotFoundError) Error() string { return fmt.Sprintf("order %d not found", e.ID) }

func (e *OrderNotFoundError) Is(target error) bool { return target == ErrOrderNotFound }

// FeasibilityError carries every failing product of one feasibility check.
// Either list may be empty, not both.
type FeasibilityError struct {
	Missing   *ProductNotFoundError
	Shortages *InsufficientStockError
}

func (e *FeasibilityError) Error() string {
	var parts []string
	if e.Missing != nil {
		parts = append(parts, e.Missing.Error())
	}
	if e.Shortages != nil {
		parts = append(parts, e.Shortages.Error())
	}
	return strings.Join(parts, "; ")
}

func (e *FeasibilityError) Unwrap() []error {
	var errs []error
	if e.Missing != nil {
		errs = append(errs, e.Missing)
	}
	if e.Shortages != nil {
		errs = append(errs, e.Shortages)
	}
	return errs
}

func joinIDs(ids []int64) string {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}
