package rating

import (
	"errors"

	"agrichain/identity"
	"agrichain/product"
)

var (
	// ErrNotOwner signals the rater does not hold custody of the product.
	ErrNotOwner = errors.New("rating: caller is not the owner")
	// ErrInvalidScore signals a score outside [1,5].
	ErrInvalidScore = errors.New("rating: score must be between 1 and 5")
	// ErrRoleNotRatable signals a role with no per-product rating flag.
	ErrRoleNotRatable = errors.New("rating: role cannot be rated")
	// ErrRoleNotRecorded signals the role has not taken custody of this
	// product, so its leg of the chain is not complete.
	ErrRoleNotRecorded = errors.New("rating: role has not handled this product")
	// ErrAlreadyRated signals the per-(product, role) flag is already set.
	ErrAlreadyRated = errors.New("rating: role already rated for this product")
	// ErrSelfRating signals an owner attempting to rate itself.
	ErrSelfRating = errors.New("rating: cannot rate yourself")
)

// Validate checks a rating request against the product record and returns the
// identity to credit. Eligibility is gated entirely by the custody chain: the
// caller must currently hold the product, and the rated role must already be
// recorded on it.
func Validate(p product.Product, actorID string, role identity.Role, score int) (string, error) {
	if p.OwnerID != actorID {
		return "", ErrNotOwner
	}
	if score < 1 || score > 5 {
		return "", ErrInvalidScore
	}

	var (
		targetID *string
		rated    bool
	)
	switch role {
	case identity.RoleProducer:
		targetID, rated = &p.ProducerID, p.ProducerRated
	case identity.RoleWholesaler:
		targetID, rated = p.WholesalerID, p.WholesalerRated
	case identity.RoleRetailer:
		targetID, rated = p.RetailerID, p.RetailerRated
	default:
		return "", ErrRoleNotRatable
	}

	if targetID == nil || *targetID == "" {
		return "", ErrRoleNotRecorded
	}
	if rated {
		return "", ErrAlreadyRated
	}
	if *targetID == actorID {
		return "", ErrSelfRating
	}

	return *targetID, nil
}
