package repository

import (
	"context"
	"errors"

	"project-chimera/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

type SnapshotRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewSnapshotRepository(pool PgxPool, tracer trace.Tracer) *SnapshotRepository {
	return &SnapshotRepository{pool: pool, tracer: tracer}
}

func (r *SnapshotRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "snapshot-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS market_snapshots (
			ticker TEXT PRIMARY KEY,
			price DOUBLE PRECISION NOT NULL,
			change_24h_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
			market_cap DOUBLE PRECISION NOT NULL DEFAULT 0,
			pe_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
			eps DOUBLE PRECISION NOT NULL DEFAULT 0,
			revenue_growth_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
			high_52w DOUBLE PRECISION NOT NULL DEFAULT 0,
			low_52w DOUBLE PRECISION NOT NULL DEFAULT 0,
			rsi_14 DOUBLE PRECISION NOT NULL DEFAULT 0,
			macd DOUBLE PRECISION NOT NULL DEFAULT 0,
			avg_volume DOUBLE PRECISION NOT NULL DEFAULT 0,
			news_headlines TEXT[] NOT NULL DEFAULT '{}',
			as_of TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

// GetLatest returns the snapshot for a ticker, or nil when none has been
// ingested yet.
func (r *SnapshotRepository) GetLatest(ctx context.Context, ticker string) (*domain.MarketSnapshot, error) {
	_, span := r.tracer.Start(ctx, "snapshot-repo.get-latest")
	defer span.End()

	var s domain.MarketSnapshot
	err := r.pool.QueryRow(ctx,
		`SELECT ticker, price, change_24h_pct, market_cap, pe_ratio, eps, revenue_growth_pct,
		        high_52w, low_52w, rsi_14, macd, avg_volume, news_headlines, as_of
		 FROM market_snapshots
		 WHERE ticker = $1`,
		ticker,
	).Scan(
		&s.Ticker, &s.Price, &s.Change24hPct, &s.MarketCap, &s.PERatio, &s.EPS,
		&s.RevenueGrowthPct, &s.High52w, &s.Low52w, &s.RSI14, &s.MACD,
		&s.AvgVolume, &s.NewsHeadlines, &s.AsOf,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.AsOf = s.AsOf.UTC()
	return &s, nil
}

// Upsert replaces the ticker's snapshot wholesale. Ingestion always writes a
// complete row.
func (r *SnapshotRepository) Upsert(ctx context.Context, s domain.MarketSnapshot) error {
	_, span := r.tracer.Start(ctx, "snapshot-repo.upsert")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO market_snapshots (ticker, price, change_24h_pct, market_cap, pe_ratio, eps,
		        revenue_growth_pct, high_52w, low_52w, rsi_14, macd, avg_volume, news_headlines, as_of)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (ticker) DO UPDATE SET
		        price = EXCLUDED.price,
		        change_24h_pct = EXCLUDED.change_24h_pct,
		        market_cap = EXCLUDED.market_cap,
		        pe_ratio = EXCLUDED.pe_ratio,
		        eps = EXCLUDED.eps,
		        revenue_growth_pct = EXCLUDED.revenue_growth_pct,
		        high_52w = EXCLUDED.high_52w,
		        low_52w = EXCLUDED.low_52w,
		        rsi_14 = EXCLUDED.rsi_14,
		        macd = EXCLUDED.macd,
		        avg_volume = EXCLUDED.avg_volume,
		        news_headlines = EXCLUDED.news_headlines,
		        as_of = EXCLUDED.as_of`,
		s.Ticker, s.Price, s.Change24hPct, s.MarketCap, s.PERatio, s.EPS,
		s.RevenueGrowthPct, s.High52w, s.Low52w, s.RSI14, s.MACD,
		s.AvgVolume, s.NewsHeadlines, s.AsOf.UTC(),
	)
	return err
}
