package purchase

import "time"

// Leg identifies which link of the custody chain a purchase covers. The two
// legs share the one-active-slot invariant but differ in who may abort:
// sellers reject on the wholesale leg, buyers cancel on the consumer leg.
type Leg string

const (
	LegWholesale Leg = "wholesale"
	LegConsumer  Leg = "consumer"
)

// Proposal is the single outstanding escrowed offer for a product. Amount is
// captured from the buyer's balance at proposal time and held by the engine
// until execution (released to the seller) or cancellation (returned to the
// buyer); it is never partially disbursed.
type Proposal struct {
	ID              string
	ProductID       int64
	BuyerID         string
	SellerID        string
	Leg             Leg
	Amount          int64
	SellerConfirmed bool
	Executed        bool
	Cancelled       bool
	CreatedAt       time.Time
	ClosedAt        *time.Time
}
