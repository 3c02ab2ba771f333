package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	getSavedStorybookQuery    = `SELECT key, payload, updated_at FROM saved_storybooks WHERE key = $1`
	upsertSavedStorybookQuery = `
        INSERT INTO saved_storybooks (key, payload)
        VALUES ($1, $2)
        ON CONFLICT (key) DO UPDATE SET
            payload = EXCLUDED.payload,
            updated_at = NOW()
    `
	deleteSavedStorybookQuery = `DELETE FROM saved_storybooks WHERE key = $1`
)

type savedStorybookRow struct {
	Key       string    `db:"key"`
	Payload   []byte    `db:"payload"`
	UpdatedAt time.Time `db:"updated_at"`
}

type postgresStore struct {
	db     DBTX
	logger *zap.Logger
}

// NewPostgresStore keeps saved storybooks in the saved_storybooks table.
func NewPostgresStore(db DBTX, logger *zap.Logger) Store {
	return &postgresStore{db: db, logger: logger.Named("PostgresStore")}
}

var _ Store = (*postgresStore)(nil)

func (p *postgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	log := p.logger.With(zap.String("key", key))

	var row savedStorybookRow
	if err := pgxscan.Get(ctx, p.db, &row, getSavedStorybookQuery, key); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		log.Error("Error getting saved storybook", zap.Error(err))
		return nil, fmt.Errorf("get saved storybook %s: %w", key, err)
	}
	log.Debug("Saved storybook loaded", zap.Time("updated_at", row.UpdatedAt))
	return row.Payload, nil
}

func (p *postgresStore) Set(ctx context.Context, key string, value []byte) error {
	if _, err := p.db.Exec(ctx, upsertSavedStorybookQuery, key, value); err != nil {
		p.logger.Error("Error upserting saved storybook", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("upsert saved storybook %s: %w", key, err)
	}
	return nil
}

func (p *postgresStore) Delete(ctx context.Context, key string) error {
	if _, err := p.db.Exec(ctx, deleteSavedStorybookQuery, key); err != nil {
		p.logger.Error("Error deleting saved storybook", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("delete saved storybook %s: %w", key, err)
	}
	return nil
}
