package repository

import (
	"context"

	"github.com/phishscope/phishscope/internal/domain"
)

// AccountRepository persists registered accounts.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *domain.Account) error
	GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetAccountByID(ctx context.Context, id string) (*domain.Account, error)
}

// SessionRepository stores server-side login sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, token string) (*domain.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// HistoryRepository is the sole mutator of per-user scan history. Appending
// prepends the entry and truncates the list to domain.HistoryCap.
type HistoryRepository interface {
	AppendHistory(ctx context.Context, userID string, entry domain.HistoryEntry) error
	ListHistory(ctx context.Context, userID string) ([]domain.HistoryEntry, error)
}

// Store bundles the persistence interfaces backing the services.
type Store interface {
	AccountRepository
	SessionRepository
	HistoryRepository
}
