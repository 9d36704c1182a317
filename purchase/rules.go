package purchase

import (
	"errors"
	"fmt"

	"agrichain/identity"
	"agrichain/product"
)

var (
	// ErrOwnPurchase signals the current owner trying to buy its own product.
	ErrOwnPurchase = errors.New("purchase: buyer already owns the product")
	// ErrNotPurchasable signals the product is not in a seller-advertised state.
	ErrNotPurchasable = errors.New("purchase: product is not offered for purchase")
	// ErrWrongRole signals a buyer role that does not match the purchase leg.
	ErrWrongRole = errors.New("purchase: buyer role does not match this leg")
	// ErrIncorrectPayment signals a payment that does not equal the price.
	ErrIncorrectPayment = errors.New("purchase: payment does not match price")
	// ErrInsufficientFunds signals the buyer cannot cover the escrow.
	ErrInsufficientFunds = errors.New("purchase: insufficient funds")
	// ErrActiveProposalExists signals a non-terminal slot already exists.
	ErrActiveProposalExists = errors.New("purchase: proposal already active for product")
	// ErrNoActiveProposal signals there is no slot to act on.
	ErrNoActiveProposal = errors.New("purchase: no active proposal for product")
	// ErrProposalExecuted is the terminal-state error seen by a caller that
	// lost the race against sellerConfirm.
	ErrProposalExecuted = errors.New("purchase: proposal already executed")
	// ErrProposalCancelled is the terminal-state error seen by a caller that
	// lost the race against cancel or reject.
	ErrProposalCancelled = errors.New("purchase: proposal already cancelled")
	// ErrNotSeller signals the confirming or rejecting caller is not the owner.
	ErrNotSeller = errors.New("purchase: caller is not the seller")
	// ErrNotBuyer signals a cancel attempt by someone other than the buyer.
	ErrNotBuyer = errors.New("purchase: caller is not the buyer")
	// ErrWrongLeg signals reject on the consumer leg or cancel on the
	// wholesale leg.
	ErrWrongLeg = errors.New("purchase: operation not available on this leg")
)

// PaymentMismatchError reports the expected and offered amounts. It matches
// ErrIncorrectPayment under errors.Is.
type PaymentMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("purchase: payment %d does not match price %d", e.Actual, e.Expected)
}

func (e *PaymentMismatchError) Is(target error) bool {
	return target == ErrIncorrectPayment
}

// LegFor maps a product state to the purchase leg it advertises, if any.
func LegFor(s product.State) (Leg, bool) {
	switch s {
	case product.StateReceivedByWholesaler, product.StateProcessed:
		return LegWholesale, true
	case product.StateForSale:
		return LegConsumer, true
	default:
		return "", false
	}
}

// ValidatePropose checks a new escrowed offer and returns its leg.
func ValidatePropose(p product.Product, buyer identity.Identity, payment int64) (Leg, error) {
	if buyer.ID == p.OwnerID {
		return "", ErrOwnPurchase
	}

	leg, ok := LegFor(p.State)
	if !ok {
		return "", ErrNotPurchasable
	}
	switch leg {
	case LegWholesale:
		if buyer.Role != identity.RoleRetailer {
			return "", ErrWrongRole
		}
	case LegConsumer:
		if buyer.Role != identity.RoleConsumer {
			return "", ErrWrongRole
		}
	}

	if payment != p.PricePerUnit {
		return "", &PaymentMismatchError{Expected: p.PricePerUnit, Actual: payment}
	}
	if buyer.Balance < payment {
		return "", ErrInsufficientFunds
	}

	return leg, nil
}

// ValidateSellerConfirm checks that the caller may release the escrow. The
// slot is revalidated against the product as it is now: the confirming caller
// must be the current owner and the slot's recorded seller, and the product
// must still advertise the leg the slot was opened on. A slot left open while
// the owner advanced the state, or while custody changed hands, cannot
// execute.
func ValidateSellerConfirm(p product.Product, pr Proposal, actorID string) error {
	if err := requireActive(pr); err != nil {
		return err
	}
	if actorID != p.OwnerID || pr.SellerID != p.OwnerID {
		return ErrNotSeller
	}
	if leg, ok := LegFor(p.State); !ok || leg != pr.Leg {
		return ErrNotPurchasable
	}
	return nil
}

// ValidateSellerReject checks a wholesale-leg rejection.
func ValidateSellerReject(pr Proposal, actorID string) error {
	if err := requireActive(pr); err != nil {
		return err
	}
	if pr.Leg != LegWholesale {
		return ErrWrongLeg
	}
	if pr.SellerID != actorID {
		return ErrNotSeller
	}
	return nil
}

// ValidateCancel checks a consumer-leg buyer cancellation. Once the seller
// has confirmed, the slot is executed and the cancel fails terminally.
func ValidateCancel(pr Proposal, actorID string) error {
	if err := requireActive(pr); err != nil {
		return err
	}
	if pr.Leg != LegConsumer {
		return ErrWrongLeg
	}
	if pr.BuyerID != actorID {
		return ErrNotBuyer
	}
	return nil
}

func requireActive(pr Proposal) error {
	if pr.Executed {
		return ErrProposalExecuted
	}
	if pr.Cancelled {
		return ErrProposalCancelled
	}
	return nil
}
