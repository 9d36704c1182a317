package product

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals an unknown product id.
	ErrNotFound = errors.New("product: not found")
	// ErrNotOwner signals the caller does not hold custody of the product.
	ErrNotOwner = errors.New("product: caller is not the owner")
	// ErrInvalidTransition signals a state change that is not the single
	// legal forward step.
	ErrInvalidTransition = errors.New("product: invalid state transition")
	// ErrInvalidMarkup signals a non-positive markup percentage.
	ErrInvalidMarkup = errors.New("product: markup percent must be positive")
	// ErrPricingLocked signals repricing outside the wholesaler or retailer
	// pricing stages.
	ErrPricingLocked = errors.New("product: price cannot be changed in this state")
)

// InvalidTransitionError carries the attempted transition for error reports.
// It matches ErrInvalidTransition under errors.Is.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("product: invalid state transition %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ValidateAdvance checks a direct state update against the lifecycle rules:
// only the owner may advance, only by exactly one step, and never into
// SoldToConsumer, which is reachable solely through the escrowed purchase
// engine because it must coincide with payment release.
func ValidateAdvance(p Product, actorID string, next State) error {
	if p.OwnerID != actorID {
		return ErrNotOwner
	}
	if !next.Valid() || next != p.State+1 || next == StateSoldToConsumer {
		return &InvalidTransitionError{From: p.State, To: next}
	}
	return nil
}

// ValidateMarkup checks a repricing request: owner only, pricing stages only,
// strictly positive percentage.
func ValidateMarkup(p Product, actorID string, markupPercent int64) error {
	if p.OwnerID != actorID {
		return ErrNotOwner
	}
	if markupPercent <= 0 {
		return ErrInvalidMarkup
	}
	if !p.State.PricingAllowed() {
		return ErrPricingLocked
	}
	return nil
}

// MarkupPrice applies an integer percentage markup with truncation, matching
// the smallest-currency-unit price model.
func MarkupPrice(current, markupPercent int64) int64 {
	return current + current*markupPercent/100
}
