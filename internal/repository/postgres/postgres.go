package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/phishscope/phishscope/internal/domain"
	"github.com/phishscope/phishscope/internal/repository"
)

// Repository implements the persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ repository.Store = (*Repository)(nil)

const uniqueViolation = "23505"

// CreateAccount inserts an account, mapping unique email collisions to ErrDuplicate.
func (r *Repository) CreateAccount(ctx context.Context, account *domain.Account) error {
	const query = `INSERT INTO accounts (id, email, password_hash, name, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, account.ID, account.Email, account.PasswordHash, account.Name, account.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrDuplicate
	}
	return err
}

// GetAccountByEmail fetches an account by email.
func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	const query = `SELECT id, email, password_hash, name, created_at FROM accounts WHERE email = $1`
	row := r.pool.QueryRow(ctx, query, email)
	var a domain.Account
	if err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Name, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// GetAccountByID fetches an account by identifier.
func (r *Repository) GetAccountByID(ctx context.Context, id string) (*domain.Account, error) {
	const query = `SELECT id, email, password_hash, name, created_at FROM accounts WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	var a domain.Account
	if err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Name, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// CreateSession inserts a session record.
func (r *Repository) CreateSession(ctx context.Context, session *domain.Session) error {
	const query = `INSERT INTO sessions (token, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, query, session.Token, session.UserID, session.ExpiresAt, session.CreatedAt)
	return err
}

// GetSession fetches a session by token.
func (r *Repository) GetSession(ctx context.Context, token string) (*domain.Session, error) {
	const query = `SELECT token, user_id, expires_at, created_at FROM sessions WHERE token = $1`
	row := r.pool.QueryRow(ctx, query, token)
	var s domain.Session
	if err := row.Scan(&s.Token, &s.UserID, &s.ExpiresAt, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// DeleteSession removes a session; unknown tokens are a no-op.
func (r *Repository) DeleteSession(ctx context.Context, token string) error {
	const query = `DELETE FROM sessions WHERE token = $1`
	_, err := r.pool.Exec(ctx, query, token)
	return err
}

// AppendHistory inserts an entry and deletes rows beyond the history cap.
func (r *Repository) AppendHistory(ctx context.Context, userID string, entry domain.HistoryEntry) error {
	const insert = `INSERT INTO scan_history (user_id, kind, payload, created_at)
		VALUES ($1, $2, $3, $4)`
	const trim = `DELETE FROM scan_history
		WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM scan_history WHERE user_id = $1 ORDER BY id DESC LIMIT $2
		)`
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, insert, userID, entry.Kind, entry.Payload, entry.CreatedAt); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, trim, userID, domain.HistoryCap); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListHistory returns the user's history, newest first.
func (r *Repository) ListHistory(ctx context.Context, userID string) ([]domain.HistoryEntry, error) {
	const query = `SELECT kind, payload, created_at FROM scan_history
		WHERE user_id = $1 ORDER BY id DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, userID, domain.HistoryCap)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var entry domain.HistoryEntry
		if err := rows.Scan(&entry.Kind, &entry.Payload, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
