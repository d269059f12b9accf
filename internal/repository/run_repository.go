package repository

import (
	"context"
	"errors"
	"time"

	"project-chimera/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

type RunRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewRunRepository(pool PgxPool, tracer trace.Tracer) *RunRepository {
	return &RunRepository{pool: pool, tracer: tracer}
}

func (r *RunRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "run-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS analysis_runs (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			ticker TEXT NOT NULL,
			mode TEXT NOT NULL,
			state TEXT NOT NULL,
			error_kind TEXT NOT NULL DEFAULT '',
			memo_id BIGINT,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			finished_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_runs_user_started ON analysis_runs (user_id, started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_runs_state ON analysis_runs (state);
	`)
	return err
}

func (r *RunRepository) InsertRun(ctx context.Context, run domain.AnalysisRun) (*domain.AnalysisRun, error) {
	_, span := r.tracer.Start(ctx, "run-repo.insert-run")
	defer span.End()

	out := run
	if out.State == "" {
		out.State = domain.RunQueued
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO analysis_runs (user_id, ticker, mode, state)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, started_at`,
		run.UserID, run.Ticker, string(run.Mode), string(out.State),
	).Scan(&out.ID, &out.StartedAt)
	if err != nil {
		return nil, err
	}
	out.StartedAt = out.StartedAt.UTC()
	return &out, nil
}

// UpdateState advances a run to a non-terminal state. Terminal transitions go
// through MarkCompleted or MarkFailed so finished_at is always set with them.
func (r *RunRepository) UpdateState(ctx context.Context, id int64, state domain.RunState) error {
	_, span := r.tracer.Start(ctx, "run-repo.update-state")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`UPDATE analysis_runs SET state = $2 WHERE id = $1 AND finished_at IS NULL`,
		id, string(state),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *RunRepository) MarkCompleted(ctx context.Context, id, memoID int64) error {
	_, span := r.tracer.Start(ctx, "run-repo.mark-completed")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`UPDATE analysis_runs
		 SET state = 'completed', memo_id = $2, finished_at = NOW()
		 WHERE id = $1 AND finished_at IS NULL`,
		id, memoID,
	)
	return err
}

func (r *RunRepository) MarkFailed(ctx context.Context, id int64, errorKind string) error {
	_, span := r.tracer.Start(ctx, "run-repo.mark-failed")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`UPDATE analysis_runs
		 SET state = 'failed', error_kind = $2, finished_at = NOW()
		 WHERE id = $1 AND finished_at IS NULL`,
		id, errorKind,
	)
	return err
}

func (r *RunRepository) GetRun(ctx context.Context, id, userID int64) (*domain.AnalysisRun, error) {
	_, span := r.tracer.Start(ctx, "run-repo.get-run")
	defer span.End()

	var run domain.AnalysisRun
	var mode, state string
	var finishedAt *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, ticker, mode, state, error_kind, memo_id, started_at, finished_at
		 FROM analysis_runs
		 WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&run.ID, &run.UserID, &run.Ticker, &mode, &state, &run.ErrorKind, &run.MemoID, &run.StartedAt, &finishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.Mode = domain.AnalysisMode(mode)
	run.State = domain.RunState(state)
	run.StartedAt = run.StartedAt.UTC()
	if finishedAt != nil {
		t := finishedAt.UTC()
		run.FinishedAt = &t
	}
	return &run, nil
}

// FailStuck fails every non-terminal run that started before the threshold.
// Runs already failed or completed are untouched, so repeated sweeps are
// idempotent.
func (r *RunRepository) FailStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	_, span := r.tracer.Start(ctx, "run-repo.fail-stuck")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`UPDATE analysis_runs
		 SET state = 'failed', error_kind = $1, finished_at = NOW()
		 WHERE state NOT IN ('completed', 'failed') AND started_at < NOW() - $2::interval`,
		domain.ErrorKindStuckRun, intervalArg(olderThan),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
