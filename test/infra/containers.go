package infra

import (
	"context"
	"os"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	containerDatabase = "agrichain"
	containerUser     = "agrichain"
	containerPassword = "agrichain-test"
)

// PGContainer wraps the disposable Postgres the stress run provisions. A
// zero value stands in when an external database is reused.
type PGContainer struct {
	C *postgres.PostgresContainer
}

// StartPostgres16 provisions a Postgres 16 container for the chain stress
// run and returns its DSN. overrideDSN or STRESS_TEST_PG_DSN short-circuits
// provisioning and reuses that database instead.
func StartPostgres16(ctx context.Context, overrideDSN string) (*PGContainer, string, error) {
	if overrideDSN != "" {
		return &PGContainer{}, overrideDSN, nil
	}
	if dsn := os.Getenv("STRESS_TEST_PG_DSN"); dsn != "" {
		return &PGContainer{}, dsn, nil
	}

	pgC, err := postgres.Run(ctx,
		"postgres:16",
		postgres.WithDatabase(containerDatabase),
		postgres.WithUsername(containerUser),
		postgres.WithPassword(containerPassword),
	)
	if err != nil {
		return nil, "", err
	}

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, "", err
	}
	return &PGContainer{C: pgC}, dsn, nil
}

func (p *PGContainer) Terminate(ctx context.Context) error {
	if p == nil || p.C == nil {
		return nil
	}
	return p.C.Terminate(ctx)
}
