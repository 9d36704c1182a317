package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariant queries. Each query selects VIOLATIONS: a healthy
// database returns zero rows from every oracle.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_one_active_purchase_slot",
			SQL: `SELECT product_id, COUNT(*) FROM purchase_proposals
                  WHERE NOT executed AND NOT cancelled
                  GROUP BY product_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_one_active_transfer_proposal",
			SQL: `SELECT product_id, COUNT(*) FROM transfer_proposals
                  WHERE NOT executed
                  GROUP BY product_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_provenance_seq_monotonic",
			SQL: `WITH seqs AS (
                      SELECT product_id, seq,
                             LAG(seq) OVER (PARTITION BY product_id ORDER BY seq) AS prev
                      FROM provenance_events)
                  SELECT * FROM seqs WHERE prev IS NOT NULL AND seq <= prev`,
		},
		{
			Name: "O4_exactly_one_created_event",
			SQL: `SELECT p.id FROM products p
                  LEFT JOIN provenance_events e ON e.product_id = p.id AND e.type = 'CREATED'
                  GROUP BY p.id HAVING COUNT(e.id) <> 1`,
		},
		{
			Name: "O5_escrow_conservation",
			SQL: `SELECT total_balances, held_escrow, minted FROM (
                      SELECT (SELECT COALESCE(SUM(balance), 0) FROM identities) AS total_balances,
                             (SELECT COALESCE(SUM(amount), 0) FROM purchase_proposals
                              WHERE NOT executed AND NOT cancelled) AS held_escrow,
                             (SELECT COUNT(*) * 100000 FROM identities) AS minted
                  ) t WHERE total_balances + held_escrow <> minted`,
		},
		{
			Name: "O6_sold_products_held_by_consumers",
			SQL: `SELECT p.id FROM products p
                  JOIN identities i ON i.id = p.owner_id
                  WHERE p.state = 7 AND i.role <> 'consumer'`,
		},
		{
			Name: "O7_balance_nonnegative",
			SQL:  `SELECT id, balance FROM identities WHERE balance < 0`,
		},
		{
			Name: "O8_executed_transfer_recorded",
			SQL: `SELECT t.id FROM transfer_proposals t
                  JOIN products p ON p.id = t.product_id
                  WHERE t.executed AND (p.wholesaler_id IS NULL OR p.state = 0)`,
		},
		{
			Name: "O9_executed_slot_is_confirmed",
			SQL: `SELECT id FROM purchase_proposals
                  WHERE (executed AND NOT seller_confirmed) OR (executed AND cancelled)`,
		},
		{
			Name: "O10_outbox_progress",
			SQL: `SELECT id::text FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
