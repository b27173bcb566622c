package repository

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestPool подключается к TEST_DB_DSN, применяет миграции и очищает таблицы
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, goose.SetDialect("postgres"))
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	require.NoError(t, goose.UpContext(ctx, db, "../../migrations"))

	_, err = pool.Exec(ctx, `TRUNCATE students, class_logs`)
	require.NoError(t, err)
	return pool
}

func TestPostgresStore(t *testing.T) {
	pool := newTestPool(t)
	runStoreSuite(t, NewPostgresStore(pool, newDecoder(), zap.NewNop()))
}

func TestPostgresStore_Ping(t *testing.T) {
	pool := newTestPool(t)
	store := NewPostgresStore(pool, newDecoder(), zap.NewNop())
	require.NoError(t, store.Ping(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, store.Ping(ctx))
}
