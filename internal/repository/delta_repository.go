package repository

import (
	"context"

	"project-chimera/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

type DeltaRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewDeltaRepository(pool PgxPool, tracer trace.Tracer) *DeltaRepository {
	return &DeltaRepository{pool: pool, tracer: tracer}
}

func (r *DeltaRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "delta-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS delta_cards (
			id BIGSERIAL PRIMARY KEY,
			ticker TEXT NOT NULL,
			category TEXT NOT NULL,
			summary TEXT NOT NULL,
			why_it_matters TEXT NOT NULL DEFAULT '',
			metric TEXT NOT NULL DEFAULT '',
			old_value TEXT NOT NULL DEFAULT '',
			new_value TEXT NOT NULL DEFAULT '',
			change TEXT NOT NULL DEFAULT '',
			detected_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_delta_cards_ticker_detected ON delta_cards (ticker, detected_at DESC);
	`)
	return err
}

// InsertCards writes a batch of detected changes in one round trip.
func (r *DeltaRepository) InsertCards(ctx context.Context, cards []domain.DeltaCard) error {
	_, span := r.tracer.Start(ctx, "delta-repo.insert-cards")
	defer span.End()

	if len(cards) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range cards {
		batch.Queue(
			`INSERT INTO delta_cards (ticker, category, summary, why_it_matters, metric, old_value, new_value, change)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.Ticker, c.Category, c.Summary, c.WhyItMatters, c.Metric, c.OldValue, c.NewValue, c.Change,
		)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range cards {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ListCards returns recent cards for a ticker, newest first.
func (r *DeltaRepository) ListCards(ctx context.Context, ticker string, limit int) ([]domain.DeltaCard, error) {
	_, span := r.tracer.Start(ctx, "delta-repo.list-cards")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, ticker, category, summary, why_it_matters, metric, old_value, new_value, change, detected_at
		 FROM delta_cards
		 WHERE ticker = $1
		 ORDER BY detected_at DESC
		 LIMIT $2`,
		ticker, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := make([]domain.DeltaCard, 0, limit)
	for rows.Next() {
		var c domain.DeltaCard
		if err := rows.Scan(&c.ID, &c.Ticker, &c.Category, &c.Summary, &c.WhyItMatters,
			&c.Metric, &c.OldValue, &c.NewValue, &c.Change, &c.DetectedAt); err != nil {
			return nil, err
		}
		c.DetectedAt = c.DetectedAt.UTC()
		cards = append(cards, c)
	}
	return cards, rows.Err()
}
