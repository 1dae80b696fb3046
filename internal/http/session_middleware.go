package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/phishscope/phishscope/internal/domain"
	"github.com/phishscope/phishscope/internal/service/auth"
)

// SessionCookieName carries the opaque session token.
const SessionCookieName = "phishscope_session"

type authContextKey string

const contextKeyAuth authContextKey = "phishscope-auth-info"

type authInfo struct {
	UserID string
	Email  string
	Name   string
}

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth gates protected operations: without a valid session cookie or
// bearer token the handler is never invoked and no external call happens.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureAuth resolves the request's account and enriches the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, authInfo, bool) {
	account, err := r.resolveAccount(req)
	if err != nil {
		if !errors.Is(err, auth.ErrNotAuthenticated) {
			r.logger.Warn("authentication failed", "error", err, "path", req.URL.Path)
		}
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return req.Context(), authInfo{}, false
	}
	info := authInfo{UserID: account.ID, Email: account.Email, Name: account.Name}
	ctx := context.WithValue(req.Context(), contextKeyAuth, info)
	return ctx, info, true
}

// resolveAccount tries the session cookie first, then a bearer API token.
func (r *Router) resolveAccount(req *http.Request) (*domain.Account, error) {
	if cookie, err := req.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		account, err := r.auth.Authenticate(req.Context(), cookie.Value)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, auth.ErrNotAuthenticated) {
			return nil, err
		}
	}
	if bearer, err := bearerToken(req.Header.Get("Authorization")); err == nil {
		return r.auth.AuthorizeToken(req.Context(), bearer)
	}
	return nil, auth.ErrNotAuthenticated
}

// authInfoFromContext extracts auth metadata from context.
func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(contextKeyAuth)
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}

func (r *Router) sessionToken(req *http.Request) string {
	cookie, err := req.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (r *Router) setSessionCookie(w http.ResponseWriter, session *domain.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   r.cfg.SessionCookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (r *Router) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.cfg.SessionCookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
