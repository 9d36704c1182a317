package identity

import "time"

// Role is the closed set of positions an identity can hold in the custody
// chain. Authorization checks switch over it exhaustively; there are no
// free-form role strings anywhere in the protocol.
type Role string

const (
	RoleProducer   Role = "producer"
	RoleWholesaler Role = "wholesaler"
	RoleRetailer   Role = "retailer"
	RoleConsumer   Role = "consumer"
)

// Valid reports whether r is one of the four chain roles.
func (r Role) Valid() bool {
	switch r {
	case RoleProducer, RoleWholesaler, RoleRetailer, RoleConsumer:
		return true
	default:
		return false
	}
}

// Identity is the domain representation of a registered chain participant.
// It mirrors the identities table and carries no JSON annotations so it can
// be reused by different presentation layers.
type Identity struct {
	ID           string
	Handle       string
	Role         Role
	PasswordHash string
	Balance      int64
	RatingSum    int64
	RatingCount  int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains registration data supplied by callers. The handle
// is chosen once and immutable thereafter.
type RegisterRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// LoginRequest contains login credentials.
type LoginRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}
