package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TerminateRandomBackend periodically kills one of the stress run's own
// database backends so the chain actors exercise their reconnect and retry
// paths mid-transaction. appLike filters pg_stat_activity by
// application_name (LIKE pattern); when empty, any backend of the current
// database except the caller's own may be chosen.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, appLike string, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rand.Intn(5) != 0 {
				continue
			}
			if appLike != "" {
				_, _ = pool.Exec(ctx, `
					SELECT pg_terminate_backend(pid) FROM pg_stat_activity
					WHERE datname = current_database()
					  AND application_name LIKE $1
					  AND pid <> pg_backend_pid()
					ORDER BY random() LIMIT 1
				`, appLike)
				continue
			}
			_, _ = pool.Exec(ctx, `
				SELECT pg_terminate_backend(pid) FROM pg_stat_activity
				WHERE datname = current_database()
				  AND pid <> pg_backend_pid()
				ORDER BY random() LIMIT 1
			`)
		}
	}
}
