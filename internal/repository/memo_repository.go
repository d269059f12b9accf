package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"project-chimera/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type MemoRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewMemoRepository(pool PgxPool, tracer trace.Tracer) *MemoRepository {
	return &MemoRepository{pool: pool, tracer: tracer}
}

func (r *MemoRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "memo-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS memos (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			ticker TEXT NOT NULL,
			mode TEXT NOT NULL,
			recommendation TEXT NOT NULL,
			position_size_pct DOUBLE PRECISION,
			confidence_pct DOUBLE PRECISION,
			risk_score DOUBLE PRECISION,
			status TEXT NOT NULL DEFAULT 'pending',
			decision_notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			decided_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_memos_user_created ON memos (user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_memos_status ON memos (status);
		CREATE TABLE IF NOT EXISTS agent_outputs (
			id BIGSERIAL PRIMARY KEY,
			memo_id BIGINT NOT NULL REFERENCES memos(id) ON DELETE CASCADE,
			position INT NOT NULL,
			agent_role TEXT NOT NULL,
			ticker TEXT NOT NULL,
			status TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			content JSONB,
			produced_at TIMESTAMPTZ NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_agent_outputs_memo_position ON agent_outputs (memo_id, position);
	`)
	return err
}

// InsertMemo persists a memo with its contributing outputs. Output rows are
// written in slice order, which is pipeline stage order.
func (r *MemoRepository) InsertMemo(ctx context.Context, memo domain.InvestmentMemo) (*domain.InvestmentMemo, error) {
	_, span := r.tracer.Start(ctx, "memo-repo.insert-memo")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		`INSERT INTO memos (user_id, ticker, mode, recommendation, position_size_pct, confidence_pct, risk_score, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		 RETURNING id, created_at`,
		memo.UserID,
		memo.Ticker,
		string(memo.Mode),
		string(memo.Recommendation),
		memo.PositionSizePct,
		memo.ConfidencePct,
		memo.RiskScore,
	)
	out := memo
	out.Status = domain.MemoPending
	if err := row.Scan(&out.ID, &out.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert memo: %w", err)
	}

	if len(memo.ContributingOutputs) > 0 {
		batch := &pgx.Batch{}
		for i, o := range memo.ContributingOutputs {
			batch.Queue(
				`INSERT INTO agent_outputs (memo_id, position, agent_role, ticker, status, summary, content, produced_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				 RETURNING id`,
				out.ID, i, string(o.Role), o.Ticker, string(o.Status), o.Summary, o.Content, o.ProducedAt.UTC(),
			)
		}
		br := r.pool.SendBatch(ctx, batch)
		defer br.Close()

		outputs := make([]domain.AgentOutput, len(memo.ContributingOutputs))
		copy(outputs, memo.ContributingOutputs)
		for i := range outputs {
			if err := br.QueryRow().Scan(&outputs[i].ID); err != nil {
				return nil, fmt.Errorf("insert agent output %d: %w", i, err)
			}
		}
		out.ContributingOutputs = outputs
	}

	return &out, nil
}

// ListMemos returns memo summaries without contributing outputs, newest first.
func (r *MemoRepository) ListMemos(ctx context.Context, filter domain.MemoFilter) ([]domain.InvestmentMemo, error) {
	_, span := r.tracer.Start(ctx, "memo-repo.list-memos")
	defer span.End()

	args := []any{filter.UserID}
	var sb strings.Builder
	sb.WriteString(`SELECT id, user_id, ticker, mode, recommendation, position_size_pct, confidence_pct,
	       risk_score, status, decision_notes, created_at, decided_at
	FROM memos
	WHERE user_id = $1`)

	if filter.Ticker != "" {
		args = append(args, strings.ToUpper(filter.Ticker))
		sb.WriteString(fmt.Sprintf(" AND ticker = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		sb.WriteString(fmt.Sprintf(" AND status = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	args = append(args, limit)
	sb.WriteString(fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	memos := make([]domain.InvestmentMemo, 0, limit)
	for rows.Next() {
		m, err := scanMemo(rows)
		if err != nil {
			return nil, err
		}
		memos = append(memos, m)
	}
	return memos, rows.Err()
}

// GetMemo returns a memo with its contributing outputs in stage order.
func (r *MemoRepository) GetMemo(ctx context.Context, id, userID int64) (*domain.InvestmentMemo, error) {
	_, span := r.tracer.Start(ctx, "memo-repo.get-memo")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, ticker, mode, recommendation, position_size_pct, confidence_pct,
		        risk_score, status, decision_notes, created_at, decided_at
		 FROM memos
		 WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	memo, err := scanMemo(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()

	outRows, err := r.pool.Query(ctx,
		`SELECT id, agent_role, ticker, status, summary, content, produced_at
		 FROM agent_outputs
		 WHERE memo_id = $1
		 ORDER BY position ASC`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer outRows.Close()

	for outRows.Next() {
		var o domain.AgentOutput
		var role, status string
		var producedAt time.Time
		if err := outRows.Scan(&o.ID, &role, &o.Ticker, &status, &o.Summary, &o.Content, &producedAt); err != nil {
			return nil, err
		}
		o.Role = domain.AgentRole(role)
		o.Status = domain.OutputStatus(status)
		o.ProducedAt = producedAt.UTC()
		memo.ContributingOutputs = append(memo.ContributingOutputs, o)
	}
	if err := outRows.Err(); err != nil {
		return nil, err
	}
	return &memo, nil
}

// Decide applies the human decision gate. The WHERE status='pending' guard
// makes the transition single-shot: a second attempt matches no row.
func (r *MemoRepository) Decide(ctx context.Context, id, userID int64, decision domain.MemoStatus, notes string) (*domain.InvestmentMemo, error) {
	_, span := r.tracer.Start(ctx, "memo-repo.decide")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		`UPDATE memos
		 SET status = $3, decision_notes = $4, decided_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND status = 'pending'
		 RETURNING id, user_id, ticker, mode, recommendation, position_size_pct, confidence_pct,
		           risk_score, status, decision_notes, created_at, decided_at`,
		id, userID, string(decision), notes,
	)
	memo, err := scanMemo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.classifyDecideMiss(ctx, id, userID)
	}
	if err != nil {
		return nil, err
	}
	return &memo, nil
}

func (r *MemoRepository) classifyDecideMiss(ctx context.Context, id, userID int64) error {
	var status string
	err := r.pool.QueryRow(ctx,
		`SELECT status FROM memos WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return domain.ErrConflict
}

func (r *MemoRepository) DeleteMemo(ctx context.Context, id, userID int64) error {
	_, span := r.tracer.Start(ctx, "memo-repo.delete-memo")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `DELETE FROM memos WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CleanupPending bulk-rejects memos stuck in pending longer than the
// threshold. Already-decided memos are untouched, so a second sweep is a
// no-op.
func (r *MemoRepository) CleanupPending(ctx context.Context, userID int64, olderThan time.Duration) (int64, error) {
	_, span := r.tracer.Start(ctx, "memo-repo.cleanup-pending")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`UPDATE memos
		 SET status = 'rejected', decision_notes = 'auto-rejected by stuck-run cleanup', decided_at = NOW()
		 WHERE user_id = $1 AND status = 'pending' AND created_at < NOW() - $2::interval`,
		userID, intervalArg(olderThan),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func intervalArg(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int64(d.Seconds()))
}

func scanMemo(row pgx.Row) (domain.InvestmentMemo, error) {
	var m domain.InvestmentMemo
	var mode, recommendation, status string
	var decidedAt *time.Time
	err := row.Scan(
		&m.ID, &m.UserID, &m.Ticker, &mode, &recommendation,
		&m.PositionSizePct, &m.ConfidencePct, &m.RiskScore,
		&status, &m.DecisionNotes, &m.CreatedAt, &decidedAt,
	)
	if err != nil {
		return domain.InvestmentMemo{}, err
	}
	m.Mode = domain.AnalysisMode(mode)
	m.Recommendation = domain.Recommendation(recommendation)
	m.Status = domain.MemoStatus(status)
	m.CreatedAt = m.CreatedAt.UTC()
	if decidedAt != nil {
		t := decidedAt.UTC()
		m.DecidedAt = &t
	}
	return m, nil
}
