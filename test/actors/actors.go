package actors

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"agrichain/identity"
	"agrichain/outbox"
	"agrichain/product"
	"agrichain/purchase"
	"agrichain/rating"
	"agrichain/transfer"
)

// Producer creates products and proposes transfers of its Harvested stock to
// the wholesaler. Domain rejections are expected under contention and
// ignored; only context cancellation stops the loop.
func Producer(ctx context.Context, pool *pgxpool.Pool, producerID string, target identity.Identity, stop <-chan struct{}) error {
	products := product.NewRepository(pool)
	transfers := transfer.NewRepository(pool)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		if rand.Intn(3) == 0 {
			now := time.Now().UTC()
			_, _ = products.Create(ctx, product.CreateParams{
				ActorID:      producerID,
				Name:         fmt.Sprintf("crop-%d", rand.Int63()),
				Origin:       "stress-farm",
				Quantity:     int64(1 + rand.Intn(500)),
				Unit:         "kg",
				PricePerUnit: int64(50 + rand.Intn(200)),
				HarvestedAt:  now,
				ExpiresAt:    now.AddDate(0, 0, 14),
			})
		}

		var productID int64
		if err := pool.QueryRow(ctx, `
			SELECT id FROM products WHERE owner_id = $1 AND state = 0
			ORDER BY random() LIMIT 1
		`, producerID).Scan(&productID); err == nil {
			_, _ = transfers.Propose(ctx, producerID, productID, target)
		}

		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Wholesaler confirms inbound transfers, walks its stock through receipt and
// processing, reprices, and settles wholesale escrow slots as the seller.
func Wholesaler(ctx context.Context, pool *pgxpool.Pool, wholesalerID string, stop <-chan struct{}) error {
	products := product.NewRepository(pool)
	transfers := transfer.NewRepository(pool)
	purchases := purchase.NewRepository(pool)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var productID int64
		if err := pool.QueryRow(ctx, `
			SELECT product_id FROM transfer_proposals
			WHERE target_id = $1 AND NOT executed
			ORDER BY random() LIMIT 1
		`, wholesalerID).Scan(&productID); err == nil {
			_, _ = transfers.Confirm(ctx, wholesalerID, productID)
		}

		var state int16
		if err := pool.QueryRow(ctx, `
			SELECT id, state FROM products WHERE owner_id = $1 AND state IN (1, 2)
			ORDER BY random() LIMIT 1
		`, wholesalerID).Scan(&productID, &state); err == nil {
			if state == 2 && rand.Intn(2) == 0 {
				_, _ = products.ApplyMarkup(ctx, wholesalerID, productID, int64(5+rand.Intn(30)))
			}
			_, _ = products.AdvanceState(ctx, wholesalerID, productID, product.State(state)+1)
		}

		if err := pool.QueryRow(ctx, `
			SELECT product_id FROM purchase_proposals
			WHERE seller_id = $1 AND leg = 'wholesale' AND NOT executed AND NOT cancelled
			ORDER BY random() LIMIT 1
		`, wholesalerID).Scan(&productID); err == nil {
			if rand.Intn(4) == 0 {
				_, _ = purchases.Reject(ctx, wholesalerID, productID)
			} else {
				_, _ = purchases.Confirm(ctx, wholesalerID, productID)
			}
		}

		time.Sleep(time.Duration(15+rand.Intn(30)) * time.Millisecond)
	}
}

// Retailer bids on processed stock, walks delivered goods to the shelf, and
// confirms consumer purchases as the seller, racing the buyer's cancel.
func Retailer(ctx context.Context, pool *pgxpool.Pool, retailerID string, stop <-chan struct{}) error {
	products := product.NewRepository(pool)
	purchases := purchase.NewRepository(pool)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var (
			productID int64
			price     int64
		)
		if err := pool.QueryRow(ctx, `
			SELECT id, price_per_unit FROM products
			WHERE state IN (2, 3) AND owner_id <> $1
			ORDER BY random() LIMIT 1
		`, retailerID).Scan(&productID, &price); err == nil {
			_, _ = purchases.Propose(ctx, retailerID, productID, price)
		}

		var state int16
		if err := pool.QueryRow(ctx, `
			SELECT id, state FROM products WHERE owner_id = $1 AND state IN (4, 5)
			ORDER BY random() LIMIT 1
		`, retailerID).Scan(&productID, &state); err == nil {
			if state == 5 && rand.Intn(2) == 0 {
				_, _ = products.ApplyMarkup(ctx, retailerID, productID, int64(5+rand.Intn(30)))
			}
			_, _ = products.AdvanceState(ctx, retailerID, productID, product.State(state)+1)
		}

		if err := pool.QueryRow(ctx, `
			SELECT product_id FROM purchase_proposals
			WHERE seller_id = $1 AND leg = 'consumer' AND NOT executed AND NOT cancelled
			ORDER BY random() LIMIT 1
		`, retailerID).Scan(&productID); err == nil {
			_, _ = purchases.Confirm(ctx, retailerID, productID)
		}

		time.Sleep(time.Duration(15+rand.Intn(30)) * time.Millisecond)
	}
}

// Consumer buys listed products, sometimes cancels its own pending offer to
// race the seller's confirm, and rates the chain for goods it has received.
func Consumer(ctx context.Context, pool *pgxpool.Pool, consumerID string, stop <-chan struct{}) error {
	purchases := purchase.NewRepository(pool)
	ratings := rating.NewRepository(pool)

	roles := []identity.Role{identity.RoleProducer, identity.RoleWholesaler, identity.RoleRetailer}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var (
			productID int64
			price     int64
		)
		if err := pool.QueryRow(ctx, `
			SELECT id, price_per_unit FROM products
			WHERE state = 6 AND owner_id <> $1
			ORDER BY random() LIMIT 1
		`, consumerID).Scan(&productID, &price); err == nil {
			_, _ = purchases.Propose(ctx, consumerID, productID, price)
		}

		if err := pool.QueryRow(ctx, `
			SELECT product_id FROM purchase_proposals
			WHERE buyer_id = $1 AND leg = 'consumer' AND NOT executed AND NOT cancelled
			ORDER BY random() LIMIT 1
		`, consumerID).Scan(&productID); err == nil && rand.Intn(3) == 0 {
			_, _ = purchases.Cancel(ctx, consumerID, productID)
		}

		if err := pool.QueryRow(ctx, `
			SELECT id FROM products WHERE owner_id = $1 AND state = 7
			ORDER BY random() LIMIT 1
		`, consumerID).Scan(&productID); err == nil {
			role := roles[rand.Intn(len(roles))]
			_, _ = ratings.Rate(ctx, consumerID, productID, role, 1+rand.Intn(5))
		}

		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Relay drains the outbox with SKIP LOCKED claims, simulating the occasional
// delivery failure so retry accounting is exercised.
func Relay(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	queue := outbox.NewQueue(pool)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		tx, err := queue.Begin(ctx)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		msgs, err := queue.ClaimBatch(ctx, tx, 10)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		for _, msg := range msgs {
			if rand.Intn(10) == 0 {
				_ = queue.MarkFailed(ctx, tx, msg.ID, 5)
				continue
			}
			_ = queue.MarkProcessed(ctx, tx, msg.ID)
		}
		_ = tx.Commit(ctx)

		time.Sleep(100 * time.Millisecond)
	}
}
