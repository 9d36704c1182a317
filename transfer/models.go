package transfer

import "time"

// Proposal is the single outstanding Producer-to-Wholesaler offer for a
// product. The proposer confirms implicitly at creation; execution requires
// the target's confirmation and happens atomically with the custody change.
type Proposal struct {
	ID                string
	ProductID         int64
	ProposerID        string
	TargetID          string
	ProposerConfirmed bool
	TargetConfirmed   bool
	Executed          bool
	CreatedAt         time.Time
	ExecutedAt        *time.Time
}
