package repository

import (
	"context"
	"errors"

	"project-chimera/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type UserRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewUserRepository(pool PgxPool, tracer trace.Tracer) *UserRepository {
	return &UserRepository{pool: pool, tracer: tracer}
}

func (r *UserRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "user-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			fund_name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (r *UserRepository) CreateUser(ctx context.Context, email, passwordHash, fundName string) (*domain.User, error) {
	_, span := r.tracer.Start(ctx, "user-repo.create-user")
	defer span.End()

	var user domain.User
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, fund_name)
		 VALUES ($1, $2, $3)
		 RETURNING id, email, fund_name, created_at`,
		email, passwordHash, fundName,
	).Scan(&user.ID, &user.Email, &user.FundName, &user.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, domain.ErrDuplicate
	}
	if err != nil {
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

// FindByEmail returns the user and its stored password hash, or nils when the
// email is unknown.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, string, error) {
	_, span := r.tracer.Start(ctx, "user-repo.find-by-email")
	defer span.End()

	var user domain.User
	var hash string
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, fund_name, created_at FROM users WHERE email = $1`,
		email,
	).Scan(&user.ID, &user.Email, &hash, &user.FundName, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, hash, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	_, span := r.tracer.Start(ctx, "user-repo.find-by-id")
	defer span.End()

	var user domain.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, fund_name, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &user.FundName, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}
