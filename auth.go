package main

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

const (
	sessionCookieName = "session"
	sessionDuration   = 24 * time.Hour
	forbiddenMessage  = "Admin access only."
)

// sessionBackend is the session lookup capability the gate depends on.
type sessionBackend interface {
	Get(ctx context.Context, token string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, token string) error
}

type SessionStore struct {
	store *Store
}

func NewSessionStore(store *Store) *SessionStore {
	return &SessionStore{store: store}
}

// Get returns nil without error when the token is unknown or expired.
func (s *SessionStore) Get(ctx context.Context, token string) (*Session, error) {
	row := s.store.db.QueryRowContext(ctx, s.store.rebind(`
		SELECT token, is_admin, expires_at
		FROM sessions
		WHERE token = ? AND expires_at > ?`), token, time.Now().UTC())

	var session Session
	err := row.Scan(&session.Token, &session.Admin, &session.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	return &session, nil
}

func (s *SessionStore) Save(ctx context.Context, session *Session) error {
	_, err := s.store.db.ExecContext(ctx, s.store.rebind(`
		INSERT INTO sessions (token, is_admin, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET is_admin = excluded.is_admin, expires_at = excluded.expires_at`),
		session.Token, session.Admin, session.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, token string) error {
	_, err := s.store.db.ExecContext(ctx, s.store.rebind("DELETE FROM sessions WHERE token = ?"), token)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.store.db.ExecContext(ctx, s.store.rebind("DELETE FROM sessions WHERE expires_at <= ?"), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleaning up expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// cookieSigner authenticates session tokens with a keyed BLAKE2b MAC
// derived from the session secret. Cookie values look like token.mac.
type cookieSigner struct {
	key [32]byte
}

func newCookieSigner(secret string) *cookieSigner {
	return &cookieSigner{key: blake2b.Sum256([]byte(secret))}
}

func (c *cookieSigner) mac(token string) string {
	h, err := blake2b.New256(c.key[:])
	if err != nil {
		panic(err)
	}
	h.Write([]byte(token))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func (c *cookieSigner) sign(token string) string {
	return token + "." + c.mac(token)
}

func (c *cookieSigner) verify(value string) (string, bool) {
	token, mac, ok := strings.Cut(value, ".")
	if !ok || token == "" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(mac), []byte(c.mac(token))) != 1 {
		return "", false
	}
	return token, true
}

// isAuthorized reports the session's admin flag. No session, or a session
// whose flag was never written, is not authorized.
func isAuthorized(s *Session) bool {
	return s != nil && s.Admin.Valid && s.Admin.Bool
}

// access is the request-scoped authorization context attached by withSession.
type access struct {
	session *Session
}

func (a access) IsAdmin() bool {
	return isAuthorized(a.session)
}

type accessKey struct{}

func withAccess(ctx context.Context, a access) context.Context {
	return context.WithValue(ctx, accessKey{}, a)
}

func accessFrom(ctx context.Context) access {
	a, _ := ctx.Value(accessKey{}).(access)
	return a
}

// Gate owns the admin flag: it establishes it on login or guest mode,
// destroys it on logout and checks it before admin routes.
type Gate struct {
	cfg      *Config
	sessions sessionBackend
	signer   *cookieSigner
}

func NewGate(cfg *Config, sessions sessionBackend) *Gate {
	return &Gate{
		cfg:      cfg,
		sessions: sessions,
		signer:   newCookieSigner(cfg.SessionSecret),
	}
}

// lookup resolves the request's session cookie. A missing, forged or
// expired cookie yields no session.
func (g *Gate) lookup(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil, nil
	}
	token, ok := g.signer.verify(cookie.Value)
	if !ok {
		return nil, nil
	}
	return g.sessions.Get(r.Context(), token)
}

// login compares the password with the configured one. On a mismatch the
// session is left as it was.
func (g *Gate) login(ctx context.Context, w http.ResponseWriter, current *Session, password string) (bool, error) {
	if password != g.cfg.AdminPassword {
		return false, nil
	}
	return true, g.setAdmin(ctx, w, current, true)
}

// enterGuestMode writes an explicit false flag.
func (g *Gate) enterGuestMode(ctx context.Context, w http.ResponseWriter, current *Session) error {
	return g.setAdmin(ctx, w, current, false)
}

func (g *Gate) setAdmin(ctx context.Context, w http.ResponseWriter, current *Session, admin bool) error {
	var session Session
	if current != nil {
		session = *current
	} else {
		token, err := generateToken()
		if err != nil {
			return fmt.Errorf("generating session token: %w", err)
		}
		session.Token = token
	}

	session.Admin = sql.NullBool{Bool: admin, Valid: true}
	session.ExpiresAt = time.Now().Add(sessionDuration)

	if err := g.sessions.Save(ctx, &session); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    g.signer.sign(session.Token),
		Path:     "/",
		HttpOnly: true,
		Secure:   g.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		Expires:  session.ExpiresAt,
	})
	return nil
}

// logout destroys the whole session, not just the flag.
func (g *Gate) logout(ctx context.Context, w http.ResponseWriter, current *Session) error {
	if current != nil {
		if err := g.sessions.Delete(ctx, current.Token); err != nil {
			return err
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   g.cfg.SecureCookies,
		MaxAge:   -1,
	})
	return nil
}

// withSession annotates every request with its authorization context.
func (b *Blog) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := b.gate.lookup(r)
		if err != nil {
			b.serverError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withAccess(r.Context(), access{session: session})))
	})
}

// requireAdmin guards mutating routes. A denied request gets a fixed 403
// before the handler, and so storage, is reached.
func (b *Blog) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !accessFrom(r.Context()).IsAdmin() {
			guardDenialsTotal.Inc()
			http.Error(w, forbiddenMessage, http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func (b *Blog) LoginForm(w http.ResponseWriter, r *http.Request) {
	b.render(w, r, http.StatusOK, "login.html", map[string]any{
		"Title": "Admin Login",
	})
}

func (b *Blog) Login(w http.ResponseWriter, r *http.Request) {
	if !b.parseForm(w, r) {
		return
	}

	ok, err := b.gate.login(r.Context(), w, accessFrom(r.Context()).session, r.FormValue("password"))
	if err != nil {
		b.serverError(w, r, err)
		return
	}
	if !ok {
		loginAttemptsTotal.WithLabelValues("failure").Inc()
		loggerFrom(r.Context()).Info("admin login failed")
		b.render(w, r, http.StatusOK, "login.html", map[string]any{
			"Title": "Admin Login",
			"Error": "Incorrect password.",
		})
		return
	}

	loginAttemptsTotal.WithLabelValues("success").Inc()
	loggerFrom(r.Context()).Info("admin logged in")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (b *Blog) Guest(w http.ResponseWriter, r *http.Request) {
	if err := b.gate.enterGuestMode(r.Context(), w, accessFrom(r.Context()).session); err != nil {
		b.serverError(w, r, err)
		return
	}
	loginAttemptsTotal.WithLabelValues("guest").Inc()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (b *Blog) Logout(w http.ResponseWriter, r *http.Request) {
	if err := b.gate.logout(r.Context(), w, accessFrom(r.Context()).session); err != nil {
		b.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
