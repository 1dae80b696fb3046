package memory

import (
	"context"
	"sync"

	"github.com/phishscope/phishscope/internal/domain"
	"github.com/phishscope/phishscope/internal/repository"
)

// Store is the default in-memory implementation of the persistence interfaces.
// All state is lost on restart.
type Store struct {
	mu       sync.RWMutex
	byEmail  map[string]*domain.Account
	byID     map[string]*domain.Account
	sessions map[string]*domain.Session
	history  map[string][]domain.HistoryEntry
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		byEmail:  make(map[string]*domain.Account),
		byID:     make(map[string]*domain.Account),
		sessions: make(map[string]*domain.Session),
		history:  make(map[string][]domain.HistoryEntry),
	}
}

var _ repository.Store = (*Store)(nil)

// CreateAccount stores an account, rejecting duplicate emails.
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[account.Email]; ok {
		return repository.ErrDuplicate
	}
	copied := *account
	s.byEmail[account.Email] = &copied
	s.byID[account.ID] = &copied
	return nil
}

// GetAccountByEmail fetches an account by email.
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

// GetAccountByID fetches an account by identifier.
func (s *Store) GetAccountByID(ctx context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

// CreateSession stores a session keyed by its token.
func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[session.Token] = &copied
	return nil
}

// GetSession fetches a session by token.
func (s *Store) GetSession(ctx context.Context, token string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

// DeleteSession removes a session; deleting an unknown token is a no-op.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

// AppendHistory prepends an entry and truncates to domain.HistoryCap.
func (s *Store) AppendHistory(ctx context.Context, userID string, entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append([]domain.HistoryEntry{entry}, s.history[userID]...)
	if len(list) > domain.HistoryCap {
		list = list[:domain.HistoryCap]
	}
	s.history[userID] = list
	return nil
}

// ListHistory returns the user's history, newest first.
func (s *Store) ListHistory(ctx context.Context, userID string) ([]domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.HistoryEntry(nil), s.history[userID]...), nil
}
