package transfer

import (
	"errors"

	"agrichain/identity"
	"agrichain/product"
)

var (
	// ErrNotOwner signals the proposer does not hold custody of the product.
	ErrNotOwner = errors.New("transfer: caller is not the owner")
	// ErrNotHarvested signals the product has already left the Harvested state.
	ErrNotHarvested = errors.New("transfer: product is not in Harvested state")
	// ErrWrongRole signals the target handle does not belong to a wholesaler.
	ErrWrongRole = errors.New("transfer: target is not a wholesaler")
	// ErrProposalActive signals a non-executed proposal already exists.
	ErrProposalActive = errors.New("transfer: proposal already active for product")
	// ErrNoActiveProposal signals there is nothing to confirm.
	ErrNoActiveProposal = errors.New("transfer: no active proposal for product")
	// ErrNotTarget signals the confirming caller is not the proposal's target.
	ErrNotTarget = errors.New("transfer: caller is not the proposal target")
)

// ValidatePropose checks a new proposal against the product and the resolved
// target identity.
func ValidatePropose(p product.Product, proposerID string, target identity.Identity) error {
	if p.OwnerID != proposerID {
		return ErrNotOwner
	}
	if p.State != product.StateHarvested {
		return ErrNotHarvested
	}
	if target.Role != identity.RoleWholesaler {
		return ErrWrongRole
	}
	return nil
}

// ValidateConfirm checks that the caller may execute the pending proposal
// against the product as it is now, not as it was at propose time. The owner
// may keep advancing the state while the proposal sits open; once the product
// has left Harvested the proposal is stale and executing it would rewind the
// state, so the confirm is refused.
func ValidateConfirm(p product.Product, pr Proposal, actorID string) error {
	if pr.Executed {
		return ErrNoActiveProposal
	}
	if pr.TargetID != actorID {
		return ErrNotTarget
	}
	if p.State != product.StateHarvested {
		return ErrNotHarvested
	}
	return nil
}
