package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"project-chimera/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

type SnapshotRepository interface {
	GetLatest(ctx context.Context, ticker string) (*domain.MarketSnapshot, error)
	Upsert(ctx context.Context, s domain.MarketSnapshot) error
}

type DeltaRepository interface {
	InsertCards(ctx context.Context, cards []domain.DeltaCard) error
	ListCards(ctx context.Context, ticker string, limit int) ([]domain.DeltaCard, error)
}

const snapshotKeyPrefix = "snapshot:"

// priceMoveThresholdPct is the 24h move beyond which ingestion emits a
// price delta card.
const priceMoveThresholdPct = 5.0

// MarketService owns market snapshots and the delta cards derived from
// them. Snapshot reads go through Redis so a burst of runs against the same
// ticker hits Postgres once.
type MarketService struct {
	snapshots SnapshotRepository
	deltas    DeltaRepository
	cache     *redis.Client
	cacheTTL  time.Duration
	tracer    trace.Tracer
}

func NewMarketService(snapshots SnapshotRepository, deltas DeltaRepository, cache *redis.Client, cacheTTL time.Duration, tracer trace.Tracer) *MarketService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &MarketService{snapshots: snapshots, deltas: deltas, cache: cache, cacheTTL: cacheTTL, tracer: tracer}
}

// Snapshot returns the latest snapshot for a ticker, or nil when none has
// been ingested. Cache failures fall through to Postgres.
func (s *MarketService) Snapshot(ctx context.Context, ticker string) (*domain.MarketSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.snapshot")
	defer span.End()

	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, snapshotKeyPrefix+ticker).Result(); err == nil {
			var snap domain.MarketSnapshot
			if err := json.Unmarshal([]byte(raw), &snap); err == nil {
				return &snap, nil
			}
		} else if err != redis.Nil {
			log.Printf("snapshot cache read failed for %s: %v", ticker, err)
		}
	}

	snap, err := s.snapshots.GetLatest(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}
	s.cacheSnapshot(ctx, *snap)
	return snap, nil
}

// Ingest replaces the ticker's snapshot and emits delta cards for material
// changes against the previous one.
func (s *MarketService) Ingest(ctx context.Context, snap domain.MarketSnapshot) ([]domain.DeltaCard, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.ingest")
	defer span.End()

	ticker, err := domain.NormalizeTicker(snap.Ticker)
	if err != nil {
		return nil, err
	}
	snap.Ticker = ticker
	if snap.AsOf.IsZero() {
		snap.AsOf = time.Now().UTC()
	}

	prev, err := s.snapshots.GetLatest(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if err := s.snapshots.Upsert(ctx, snap); err != nil {
		return nil, fmt.Errorf("upsert snapshot: %w", err)
	}
	s.cacheSnapshot(ctx, snap)

	if prev == nil {
		return nil, nil
	}
	cards := detectDeltas(*prev, snap)
	if len(cards) > 0 {
		if err := s.deltas.InsertCards(ctx, cards); err != nil {
			return nil, fmt.Errorf("insert delta cards: %w", err)
		}
	}
	return cards, nil
}

func (s *MarketService) Cards(ctx context.Context, ticker string, limit int) ([]domain.DeltaCard, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.cards")
	defer span.End()

	normalized, err := domain.NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	return s.deltas.ListCards(ctx, normalized, limit)
}

func (s *MarketService) cacheSnapshot(ctx context.Context, snap domain.MarketSnapshot) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, snapshotKeyPrefix+snap.Ticker, raw, s.cacheTTL).Err(); err != nil {
		log.Printf("snapshot cache write failed for %s: %v", snap.Ticker, err)
	}
}

// detectDeltas compares consecutive snapshots and describes the material
// changes in card form.
func detectDeltas(prev, next domain.MarketSnapshot) []domain.DeltaCard {
	var cards []domain.DeltaCard

	if prev.Price > 0 {
		movePct := (next.Price - prev.Price) / prev.Price * 100
		if math.Abs(movePct) >= priceMoveThresholdPct {
			cards = append(cards, domain.DeltaCard{
				Ticker:       next.Ticker,
				Category:     "price",
				Summary:      fmt.Sprintf("%s moved %+.1f%% since the last snapshot", next.Ticker, movePct),
				WhyItMatters: "moves of this size usually have a driver worth identifying before acting",
				Metric:       "price",
				OldValue:     fmt.Sprintf("%.2f", prev.Price),
				NewValue:     fmt.Sprintf("%.2f", next.Price),
				Change:       fmt.Sprintf("%+.1f%%", movePct),
			})
		}
	}

	if prev.EPS != 0 && next.EPS != prev.EPS {
		cards = append(cards, domain.DeltaCard{
			Ticker:       next.Ticker,
			Category:     "fundamentals",
			Summary:      fmt.Sprintf("%s EPS changed from %.2f to %.2f", next.Ticker, prev.EPS, next.EPS),
			WhyItMatters: "an EPS revision shifts the valuation base every analyst works from",
			Metric:       "eps",
			OldValue:     fmt.Sprintf("%.2f", prev.EPS),
			NewValue:     fmt.Sprintf("%.2f", next.EPS),
		})
	}

	for _, headline := range freshHeadlines(prev.NewsHeadlines, next.NewsHeadlines) {
		cards = append(cards, domain.DeltaCard{
			Ticker:       next.Ticker,
			Category:     "news",
			Summary:      headline,
			WhyItMatters: "new coverage can move sentiment before fundamentals catch up",
		})
	}
	return cards
}

func freshHeadlines(prev, next []string) []string {
	seen := make(map[string]bool, len(prev))
	for _, h := range prev {
		seen[h] = true
	}
	var fresh []string
	for _, h := range next {
		if !seen[h] {
			fresh = append(fresh, h)
		}
	}
	return fresh
}
