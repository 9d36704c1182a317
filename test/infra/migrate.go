package infra

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AppName is the application_name every stress connection presents, so the
// chaos terminator can target the run's own backends and nothing else.
const AppName = "agrichain-stress"

// Migration sources, resolved relative to this file: the service schema at
// the repository root plus any stress-only fixtures under test/migrations.
const (
	coreMigrationsRel = "../../migrations"
	testMigrationsRel = "../migrations"
)

var (
	coreMigrationsDir string
	testMigrationsDir string
)

func init() {
	if _, file, _, ok := runtime.Caller(0); ok {
		base := filepath.Dir(file)
		coreMigrationsDir = filepath.Join(base, coreMigrationsRel)
		testMigrationsDir = filepath.Join(base, testMigrationsRel)
	}
}

// ApplyMigrations applies the schema against the DSN and returns a pool whose
// connections carry the stress application_name. When isolate is true the
// whole run lives in a throwaway schema dropped by the returned teardown, so
// a shared database is left untouched.
func ApplyMigrations(ctx context.Context, dsn string, isolate bool) (*pgxpool.Pool, func(context.Context) error, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parse pool config: %w", err)
	}
	cfg.ConnConfig.RuntimeParams["application_name"] = AppName

	cleanup := func(context.Context) error { return nil }

	if isolate {
		schema := fmt.Sprintf("agrichain_stress_%d", time.Now().UnixNano())
		ident := pgx.Identifier{schema}.Sanitize()

		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("connect for schema: %w", err)
		}
		if _, err := conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", ident)); err != nil {
			conn.Close(ctx)
			return nil, nil, fmt.Errorf("create schema %s: %w", schema, err)
		}
		conn.Close(ctx)

		setPath := fmt.Sprintf("SET search_path TO %s", ident)
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, setPath)
			return err
		}

		cleanup = func(ctx context.Context) error {
			dropConn, err := pgx.Connect(ctx, dsn)
			if err != nil {
				return err
			}
			defer dropConn.Close(ctx)
			_, err = dropConn.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", ident))
			return err
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect pool: %w", err)
	}

	if err := execDir(ctx, pool, coreMigrationsDir); err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := execDir(ctx, pool, testMigrationsDir); err != nil {
		pool.Close()
		return nil, nil, err
	}

	return pool, cleanup, nil
}

// execDir applies every .sql file in dir in lexical order. A missing dir is
// not an error; test/migrations only exists when a run needs fixtures.
func execDir(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	if dir == "" {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read dir %s: %w", dir, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("read %s: %w", e.Name(), err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply %s: %w", e.Name(), err)
		}
	}

	return nil
}
