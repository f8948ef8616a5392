package console

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"solana-token-console/internal/auth"
)

// SessionCookie is the name of the browser session cookie.
const SessionCookie = "console_session"

const sessionIssuer = "solana-token-console"

// ErrSessionStale is returned for a session minted under an earlier
// authentication generation.
var ErrSessionStale = errors.New("session no longer current")

// SessionClaims bind a browser to one authentication generation. Subject
// is the wallet identity.
type SessionClaims struct {
	Generation uint64 `json:"gen"`
	jwt.RegisteredClaims
}

// Sessions issues and verifies HS256 session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
}

// NewSessions creates a session issuer. secret must be non-empty.
func NewSessions(secret []byte, ttl time.Duration) (*Sessions, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret required")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Sessions{secret: secret, ttl: ttl}, nil
}

// Issue signs a token for snap.
func (s *Sessions) Issue(snap auth.Snapshot) (string, time.Time, error) {
	expires := time.Now().Add(s.ttl)
	claims := &SessionClaims{
		Generation: snap.Generation,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   snap.Identity.String(),
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return token, expires, nil
}

// Verify parses token and checks it against the current snapshot.
func (s *Sessions) Verify(token string, current auth.Snapshot) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	if !current.Authenticated || !current.Current(claims.Generation) || claims.Subject != current.Identity.String() {
		return nil, ErrSessionStale
	}
	return claims, nil
}

type sessionKey struct{}

// sessionFrom returns the claims requireSession stored on the request.
func sessionFrom(ctx context.Context) *SessionClaims {
	c, _ := ctx.Value(sessionKey{}).(*SessionClaims)
	return c
}

func (s *Server) setSessionCookie(w http.ResponseWriter, snap auth.Snapshot) error {
	token, expires, err := s.sessions.Issue(snap)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// session returns the verified claims of r, or nil.
func (s *Server) session(r *http.Request) *SessionClaims {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil
	}
	claims, err := s.sessions.Verify(cookie.Value, s.state.Snapshot())
	if err != nil {
		return nil
	}
	return claims
}

// requireSession rejects requests without a session for the current
// authentication generation.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := s.session(r)
		if claims == nil {
			clearSessionCookie(w)
			http.Error(w, "wallet session required", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, claims)))
	}
}
