package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/phishscope/phishscope/internal/config"
	"github.com/phishscope/phishscope/internal/crypto"
	"github.com/phishscope/phishscope/internal/domain"
	"github.com/phishscope/phishscope/internal/repository"
	"github.com/phishscope/phishscope/internal/token"
)

// Service errors surfaced to the transport layer.
var (
	// ErrDuplicateAccount is returned when the email is already registered.
	ErrDuplicateAccount = errors.New("auth: account already exists")
	// ErrInvalidCredentials covers both unknown emails and wrong passwords so
	// responses never reveal whether an email exists.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrNotAuthenticated is returned when no valid session or token backs a request.
	ErrNotAuthenticated = errors.New("auth: not authenticated")
)

// Service handles registration, login and session validation.
type Service struct {
	accounts repository.AccountRepository
	sessions repository.SessionRepository
	logger   *slog.Logger
	cfg      config.Config
}

// New constructs a Service.
func New(accounts repository.AccountRepository, sessions repository.SessionRepository, logger *slog.Logger, cfg config.Config) Service {
	return Service{accounts: accounts, sessions: sessions, logger: logger, cfg: cfg}
}

// Register creates an account and establishes a session for it.
func (s Service) Register(ctx context.Context, email, password, name string) (*domain.Account, *domain.Session, error) {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, nil, err
	}
	account := &domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil, ErrDuplicateAccount
		}
		return nil, nil, err
	}
	session, err := s.startSession(ctx, account.ID)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("user registered", "user_id", account.ID)
	return account, session, nil
}

// Login verifies credentials and establishes a session.
func (s Service) Login(ctx context.Context, email, password string) (*domain.Account, *domain.Session, error) {
	account, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if err := crypto.ComparePassword(account.PasswordHash, password); err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	session, err := s.startSession(ctx, account.ID)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("user logged in", "user_id", account.ID)
	return account, session, nil
}

// Logout destroys the session; unknown tokens are ignored.
func (s Service) Logout(ctx context.Context, sessionToken string) error {
	if strings.TrimSpace(sessionToken) == "" {
		return nil
	}
	return s.sessions.DeleteSession(ctx, sessionToken)
}

// Authenticate resolves a session token to its account. Expired sessions are
// destroyed on sight. A valid session whose account has vanished surfaces
// repository.ErrNotFound so the transport can distinguish it from a plain 401.
func (s Service) Authenticate(ctx context.Context, sessionToken string) (*domain.Account, error) {
	if strings.TrimSpace(sessionToken) == "" {
		return nil, ErrNotAuthenticated
	}
	session, err := s.sessions.GetSession(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, err
	}
	if session.Expired(time.Now().UTC()) {
		_ = s.sessions.DeleteSession(ctx, sessionToken)
		return nil, ErrNotAuthenticated
	}
	return s.accounts.GetAccountByID(ctx, session.UserID)
}

// AuthorizeToken resolves a bearer API token to its account.
func (s Service) AuthorizeToken(ctx context.Context, bearer string) (*domain.Account, error) {
	if s.cfg.APITokenSecret == "" {
		return nil, ErrNotAuthenticated
	}
	claims, err := token.Parse(strings.TrimSpace(bearer), s.cfg.APITokenSecret)
	if err != nil {
		return nil, ErrNotAuthenticated
	}
	return s.accounts.GetAccountByID(ctx, claims.UserID)
}

// IssueAPIToken mints a signed bearer token for programmatic access.
func (s Service) IssueAPIToken(account *domain.Account) (string, time.Duration, error) {
	if s.cfg.APITokenSecret == "" {
		return "", 0, errors.New("auth: api token secret not configured")
	}
	signed, err := token.Generate(account.ID, s.cfg.APITokenSecret, s.cfg.APITokenTTL)
	if err != nil {
		return "", 0, err
	}
	return signed, s.cfg.APITokenTTL, nil
}

func (s Service) startSession(ctx context.Context, userID string) (*domain.Session, error) {
	now := time.Now().UTC()
	session := &domain.Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
		CreatedAt: now,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}
