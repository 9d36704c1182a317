package provenance

import "time"

// EventType tags an entry in a product's audit trail. The set is closed:
// creation, price changes, state changes, and ownership changes are the only
// operations that touch a product record.
type EventType string

const (
	EventCreated          EventType = "CREATED"
	EventPriceChanged     EventType = "PRICE_CHANGED"
	EventStateChanged     EventType = "STATE_CHANGED"
	EventOwnershipChanged EventType = "OWNERSHIP_CHANGED"
)

// Event is one immutable entry in a product's history. Seq is assigned under
// the product's row lock and is strictly increasing per product, so ordering
// the events by seq reconstructs the full timeline.
type Event struct {
	ID        int64
	ProductID int64
	Seq       int
	Type      EventType
	ActorID   *string
	Payload   []byte
	CreatedAt time.Time
}
