package repository

import (
	"context"
	"errors"

	"project-chimera/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type WatchlistRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewWatchlistRepository(pool PgxPool, tracer trace.Tracer) *WatchlistRepository {
	return &WatchlistRepository{pool: pool, tracer: tracer}
}

func (r *WatchlistRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "watchlist-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS watchlist (
			user_id BIGINT NOT NULL,
			ticker TEXT NOT NULL,
			added_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, ticker)
		);
	`)
	return err
}

// List returns the user's tickers in insertion order.
func (r *WatchlistRepository) List(ctx context.Context, userID int64) ([]string, error) {
	_, span := r.tracer.Start(ctx, "watchlist-repo.list")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT ticker FROM watchlist WHERE user_id = $1 ORDER BY added_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickers := make([]string, 0, domain.WatchlistCap)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

func (r *WatchlistRepository) Count(ctx context.Context, userID int64) (int, error) {
	_, span := r.tracer.Start(ctx, "watchlist-repo.count")
	defer span.End()

	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM watchlist WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

func (r *WatchlistRepository) Add(ctx context.Context, userID int64, ticker string) error {
	_, span := r.tracer.Start(ctx, "watchlist-repo.add")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO watchlist (user_id, ticker) VALUES ($1, $2)`, userID, ticker)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrDuplicate
	}
	return err
}

func (r *WatchlistRepository) Remove(ctx context.Context, userID int64, ticker string) error {
	_, span := r.tracer.Start(ctx, "watchlist-repo.remove")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM watchlist WHERE user_id = $1 AND ticker = $2`, userID, ticker)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
