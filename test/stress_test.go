package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"agrichain/identity"
	"agrichain/test/actors"
	"agrichain/test/chaos"
	"agrichain/test/infra"
	"agrichain/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

// TestSupplyChainConcurrency runs the full cast of chain participants against
// a real PostgreSQL and continuously checks the protocol invariants: single
// active slots, monotonic provenance, escrow conservation, terminal custody.
func TestSupplyChainConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	seedData := mustSeed(t, ctx, pool)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// Several goroutines share each identity so same-row operations contend.
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error {
			return actors.Producer(ctx2, pool, seedData.producerID, seedData.wholesaler, stop)
		})
		g.Go(func() error { return actors.Wholesaler(ctx2, pool, seedData.wholesaler.ID, stop) })
	}
	for _, retailerID := range seedData.retailerIDs {
		id := retailerID
		g.Go(func() error { return actors.Retailer(ctx2, pool, id, stop) })
		g.Go(func() error { return actors.Retailer(ctx2, pool, id, stop) })
	}
	for _, consumerID := range seedData.consumerIDs {
		id := consumerID
		g.Go(func() error { return actors.Consumer(ctx2, pool, id, stop) })
		g.Go(func() error { return actors.Consumer(ctx2, pool, id, stop) })
	}
	g.Go(func() error { return actors.Relay(ctx2, pool, stop) })
	go chaos.TerminateRandomBackend(ctx2, pool, infra.AppName, stop)

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	producerID  string
	wholesaler  identity.Identity
	retailerIDs []string
	consumerIDs []string
}

// mustSeed registers one identity per role slot, each minted with the same
// opening balance the conservation oracle assumes.
func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()

	const openingBalance = 100000

	insert := func(handle, role string) string {
		var id string
		if err := pool.QueryRow(ctx, `
			INSERT INTO identities (handle, role, password_hash, balance)
			VALUES ($1, $2::chain_role, 'stress', $3) RETURNING id::text
		`, handle, role, openingBalance).Scan(&id); err != nil {
			t.Fatalf("seed %s %s: %v", role, handle, err)
		}
		return id
	}

	run := rand.Int63()
	var s seedIDs
	s.producerID = insert(fmt.Sprintf("producer-%d", run), "producer")

	wholesalerID := insert(fmt.Sprintf("wholesaler-%d", run), "wholesaler")
	s.wholesaler = identity.Identity{ID: wholesalerID, Role: identity.RoleWholesaler}

	for i := 0; i < 2; i++ {
		s.retailerIDs = append(s.retailerIDs, insert(fmt.Sprintf("retailer-%d-%d", run, i), "retailer"))
		s.consumerIDs = append(s.consumerIDs, insert(fmt.Sprintf("consumer-%d-%d", run, i), "consumer"))
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"products", `SELECT id, state, owner_id, price_per_unit FROM products ORDER BY id DESC LIMIT 50`},
		{"purchase_proposals", `SELECT id, product_id, leg, amount, executed, cancelled FROM purchase_proposals ORDER BY created_at DESC LIMIT 50`},
		{"provenance_events", `SELECT id, product_id, seq, type, created_at FROM provenance_events ORDER BY id DESC LIMIT 50`},
		{"outbox", `SELECT id, topic, status, attempts, created_at FROM outbox ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
