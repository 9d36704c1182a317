package product

import "time"

// State is the product lifecycle position. Transitions only ever move
// forward, one step at a time; the final step is reserved for the escrowed
// purchase engine.
type State uint8

const (
	StateHarvested State = iota
	StateShippedToWholesaler
	StateReceivedByWholesaler
	StateProcessed
	StateShippedToRetailer
	StateReceivedByRetailer
	StateForSale
	StateSoldToConsumer
)

var stateNames = [...]string{
	"Harvested",
	"ShippedToWholesaler",
	"ReceivedByWholesaler",
	"Processed",
	"ShippedToRetailer",
	"ReceivedByRetailer",
	"ForSale",
	"SoldToConsumer",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// Valid reports whether s is a defined lifecycle state.
func (s State) Valid() bool {
	return s <= StateSoldToConsumer
}

// PricingAllowed reports whether the current owner may reprice the product:
// wholesaler pricing after receipt or processing, retailer pricing at listing.
func (s State) PricingAllowed() bool {
	switch s {
	case StateReceivedByWholesaler, StateProcessed, StateReceivedByRetailer:
		return true
	default:
		return false
	}
}

// Product is the authoritative record for one tracked good. Owner always
// holds a non-empty identity; the per-role identity fields are recorded the
// first time each role takes custody and never cleared.
type Product struct {
	ID           int64
	Name         string
	Origin       string
	Quantity     int64
	Unit         string
	PricePerUnit int64
	HarvestedAt  time.Time
	ExpiresAt    time.Time
	State        State
	OwnerID      string
	ProducerID   string
	WholesalerID *string
	RetailerID   *string

	ProducerRated   bool
	WholesalerRated bool
	RetailerRated   bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateParams contains write parameters for registering a new product.
type CreateParams struct {
	ActorID      string
	Name         string
	Origin       string
	Quantity     int64
	Unit         string
	PricePerUnit int64
	HarvestedAt  time.Time
	ExpiresAt    time.Time
}
