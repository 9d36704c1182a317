package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals that no identity exists for the given id.
	ErrNotFound = errors.New("identity: not found")
	// ErrUnknownHandle signals that no identity exists for the given handle.
	ErrUnknownHandle = errors.New("identity: unknown handle")
	// ErrDuplicateHandle signals that the handle is already registered.
	ErrDuplicateHandle = errors.New("identity: handle already exists")
)

// Repository handles data access for the identity registry.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (Identity, error)
	GetByHandle(ctx context.Context, handle string) (Identity, error)
	GetByID(ctx context.Context, id string) (Identity, error)
}

// CreateParams contains write parameters for registering identities.
type CreateParams struct {
	Handle       string
	Role         Role
	PasswordHash string
	Balance      int64
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed identity repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const identityColumns = `id::text, handle, role::text, password_hash, balance, rating_sum, rating_count, created_at, updated_at`

// Create inserts a new identity with its opening balance.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Identity, error) {
	insertSQL := fmt.Sprintf(`
		INSERT INTO identities (handle, role, password_hash, balance)
		VALUES ($1, $2::chain_role, $3, $4)
		RETURNING %s
	`, identityColumns)

	ident, err := scanIdentity(r.pool.QueryRow(ctx, insertSQL, params.Handle, params.Role, params.PasswordHash, params.Balance))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Identity{}, ErrDuplicateHandle
		}
		return Identity{}, fmt.Errorf("identity: create: %w", err)
	}

	return ident, nil
}

// GetByHandle resolves a handle to its identity record.
func (r *PGRepository) GetByHandle(ctx context.Context, handle string) (Identity, error) {
	selectSQL := fmt.Sprintf(`SELECT %s FROM identities WHERE handle = $1`, identityColumns)

	ident, err := scanIdentity(r.pool.QueryRow(ctx, selectSQL, handle))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrUnknownHandle
		}
		return Identity{}, fmt.Errorf("identity: get by handle: %w", err)
	}

	return ident, nil
}

// GetByID retrieves an identity by its id.
func (r *PGRepository) GetByID(ctx context.Context, id string) (Identity, error) {
	selectSQL := fmt.Sprintf(`SELECT %s FROM identities WHERE id = $1`, identityColumns)

	ident, err := scanIdentity(r.pool.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrNotFound
		}
		return Identity{}, fmt.Errorf("identity: get by id: %w", err)
	}

	return ident, nil
}

func scanIdentity(row pgx.Row) (Identity, error) {
	var ident Identity
	err := row.Scan(
		&ident.ID,
		&ident.Handle,
		&ident.Role,
		&ident.PasswordHash,
		&ident.Balance,
		&ident.RatingSum,
		&ident.RatingCount,
		&ident.CreatedAt,
		&ident.UpdatedAt,
	)
	if err != nil {
		return Identity{}, err
	}
	return ident, nil
}
