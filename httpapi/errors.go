package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"agrichain/identity"
	"agrichain/product"
	"agrichain/purchase"
	"agrichain/rating"
	"agrichain/transfer"
)

// writeError translates domain sentinels into HTTP statuses: authorization
// failures 403, missing records 404, state conflicts 409, validation 422.
// Context-carrying errors keep their detail in the message.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		status = http.StatusUnauthorized

	case errors.Is(err, product.ErrNotOwner),
		errors.Is(err, product.ErrNotProducer),
		errors.Is(err, transfer.ErrNotOwner),
		errors.Is(err, transfer.ErrNotTarget),
		errors.Is(err, transfer.ErrWrongRole),
		errors.Is(err, purchase.ErrNotSeller),
		errors.Is(err, purchase.ErrNotBuyer),
		errors.Is(err, purchase.ErrOwnPurchase),
		errors.Is(err, purchase.ErrWrongRole),
		errors.Is(err, rating.ErrNotOwner),
		errors.Is(err, rating.ErrSelfRating):
		status = http.StatusForbidden

	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, identity.ErrNotFound),
		errors.Is(err, identity.ErrUnknownHandle),
		errors.Is(err, transfer.ErrNoActiveProposal),
		errors.Is(err, purchase.ErrNoActiveProposal):
		status = http.StatusNotFound

	case errors.Is(err, product.ErrInvalidTransition),
		errors.Is(err, product.ErrPricingLocked),
		errors.Is(err, transfer.ErrNotHarvested),
		errors.Is(err, transfer.ErrProposalActive),
		errors.Is(err, purchase.ErrNotPurchasable),
		errors.Is(err, purchase.ErrActiveProposalExists),
		errors.Is(err, purchase.ErrProposalExecuted),
		errors.Is(err, purchase.ErrProposalCancelled),
		errors.Is(err, purchase.ErrWrongLeg),
		errors.Is(err, rating.ErrAlreadyRated),
		errors.Is(err, rating.ErrRoleNotRecorded),
		errors.Is(err, identity.ErrDuplicateHandle):
		status = http.StatusConflict

	case errors.Is(err, product.ErrInvalidMarkup),
		errors.Is(err, purchase.ErrIncorrectPayment),
		errors.Is(err, purchase.ErrInsufficientFunds),
		errors.Is(err, rating.ErrInvalidScore),
		errors.Is(err, rating.ErrRoleNotRatable),
		errors.Is(err, identity.ErrWeakPassword),
		errors.Is(err, identity.ErrInvalidRole):
		status = http.StatusUnprocessableEntity
	}

	body := gin.H{"error": err.Error()}

	var mismatch *purchase.PaymentMismatchError
	if errors.As(err, &mismatch) {
		body["expected"] = mismatch.Expected
		body["actual"] = mismatch.Actual
	}
	var transition *product.InvalidTransitionError
	if errors.As(err, &transition) {
		body["from"] = transition.From.String()
		body["to"] = transition.To.String()
	}

	c.JSON(status, body)
}
