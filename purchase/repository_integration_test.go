package purchase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"agrichain/product"
)

// TestEscrowRoundTrip_Integration connects to a real PostgreSQL via
// DATABASE_URL and verifies escrow movement, custody transfer, and the
// terminal-state error a losing canceller observes.
func TestEscrowRoundTrip_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if !tableExists(ctx, t, pool, "identities") || !tableExists(ctx, t, pool, "products") ||
		!tableExists(ctx, t, pool, "purchase_proposals") || !tableExists(ctx, t, pool, "provenance_events") ||
		!tableExists(ctx, t, pool, "outbox") {
		t.Skip("database schema missing; apply migrations/0001_init.sql first")
	}

	suffix := time.Now().UnixNano()
	var (
		retailerID string
		consumerID string
		productID  int64
	)

	if err := pool.QueryRow(ctx, `
		INSERT INTO identities (handle, role, password_hash, balance)
		VALUES ($1, 'retailer', 'x', 1000) RETURNING id::text
	`, fmt.Sprintf("itest-retailer-%d", suffix)).Scan(&retailerID); err != nil {
		t.Fatalf("seed retailer: %v", err)
	}
	if err := pool.QueryRow(ctx, `
		INSERT INTO identities (handle, role, password_hash, balance)
		VALUES ($1, 'consumer', 'x', 1000) RETURNING id::text
	`, fmt.Sprintf("itest-consumer-%d", suffix)).Scan(&consumerID); err != nil {
		t.Fatalf("seed consumer: %v", err)
	}

	// Product already listed for sale by the retailer.
	if err := pool.QueryRow(ctx, `
		INSERT INTO products (name, origin, quantity, unit, price_per_unit, harvested_at, expires_at, state, owner_id, producer_id, retailer_id)
		VALUES ($1, 'Valle Verde', 100, 'kg', 165, now(), now() + interval '14 days', $2, $3::uuid, $3::uuid, $3::uuid)
		RETURNING id
	`, fmt.Sprintf("itest-tomatoes-%d", suffix), product.StateForSale, retailerID).Scan(&productID); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM outbox WHERE payload->>'product_id' = $1::text`, productID)
		pool.Exec(ctx2, `DELETE FROM provenance_events WHERE product_id = $1`, productID)
		pool.Exec(ctx2, `DELETE FROM purchase_proposals WHERE product_id = $1`, productID)
		pool.Exec(ctx2, `DELETE FROM products WHERE id = $1`, productID)
		pool.Exec(ctx2, `DELETE FROM identities WHERE id IN ($1::uuid, $2::uuid)`, retailerID, consumerID)
	})

	repo := NewRepository(pool)

	pr, err := repo.Propose(ctx, consumerID, productID, 165)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if pr.Leg != LegConsumer {
		t.Fatalf("expected consumer leg, got %s", pr.Leg)
	}

	var buyerBalance int64
	if err := pool.QueryRow(ctx, `SELECT balance FROM identities WHERE id = $1`, consumerID).Scan(&buyerBalance); err != nil {
		t.Fatalf("read buyer balance: %v", err)
	}
	if buyerBalance != 835 {
		t.Fatalf("expected buyer balance 835 after escrow, got %d", buyerBalance)
	}

	// A second offer cannot open while the slot is active.
	if _, err := repo.Propose(ctx, consumerID, productID, 165); !errors.Is(err, ErrActiveProposalExists) {
		t.Fatalf("expected ErrActiveProposalExists, got %v", err)
	}

	executed, err := repo.Confirm(ctx, retailerID, productID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !executed.Executed {
		t.Fatalf("expected executed slot, got %+v", executed)
	}

	var sellerBalance int64
	if err := pool.QueryRow(ctx, `SELECT balance FROM identities WHERE id = $1`, retailerID).Scan(&sellerBalance); err != nil {
		t.Fatalf("read seller balance: %v", err)
	}
	if sellerBalance != 1165 {
		t.Fatalf("expected seller balance 1165 after release, got %d", sellerBalance)
	}

	var (
		state   int16
		ownerID string
	)
	if err := pool.QueryRow(ctx, `SELECT state, owner_id::text FROM products WHERE id = $1`, productID).Scan(&state, &ownerID); err != nil {
		t.Fatalf("read product: %v", err)
	}
	if product.State(state) != product.StateSoldToConsumer {
		t.Fatalf("expected SoldToConsumer, got %s", product.State(state))
	}
	if ownerID != consumerID {
		t.Fatalf("expected consumer custody, got %s", ownerID)
	}

	// The losing canceller sees the terminal error, not a bare not-found.
	if _, err := repo.Cancel(ctx, consumerID, productID); !errors.Is(err, ErrProposalExecuted) {
		t.Fatalf("expected ErrProposalExecuted, got %v", err)
	}

	// Confirm appended ownership and state changes to the audit trail.
	var evCount int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM provenance_events WHERE product_id = $1`, productID).Scan(&evCount); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if evCount != 2 {
		t.Fatalf("expected 2 provenance events from confirm, got %d", evCount)
	}

	var outCount int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE topic = $1 AND payload->>'product_id' = $2::text`,
		"purchase.executed", productID).Scan(&outCount); err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if outCount != 1 {
		t.Fatalf("expected 1 outbox message, got %d", outCount)
	}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
