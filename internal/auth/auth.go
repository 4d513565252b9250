// Package auth gates the admin actions behind a single shared secret.
// The secret is kept as a bcrypt hash; a successful login yields a signed,
// expiring session token carried in a cookie.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	CookieName = "folio_session"
	DefaultTTL = 12 * time.Hour
)

var (
	ErrNoSecret     = errors.New("admin secret not configured")
	ErrInvalidToken = errors.New("invalid session token")
	ErrExpiredToken = errors.New("session token expired")
)

// HashSecret returns the bcrypt hash of secret.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(h), nil
}

type Authenticator struct {
	hash []byte
	key  []byte
	ttl  time.Duration
	now  func() time.Time
}

// New builds an Authenticator from a bcrypt hash. An empty key gets a random
// one, which invalidates sessions on restart. A non-positive ttl means
// DefaultTTL.
func New(secretHash string, key []byte, ttl time.Duration) (*Authenticator, error) {
	if secretHash == "" {
		return nil, ErrNoSecret
	}
	if _, err := bcrypt.Cost([]byte(secretHash)); err != nil {
		return nil, fmt.Errorf("invalid admin secret hash: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate session key: %w", err)
		}
	}
	return &Authenticator{hash: []byte(secretHash), key: key, ttl: ttl, now: time.Now}, nil
}

// Verify reports whether secret matches the configured hash.
func (a *Authenticator) Verify(secret string) bool {
	return bcrypt.CompareHashAndPassword(a.hash, []byte(secret)) == nil
}

// Issue returns a new session token of the form <id>.<expiryUnix>.<sig>.
func (a *Authenticator) Issue() (token string, expires time.Time) {
	expires = a.now().Add(a.ttl).Truncate(time.Second)
	payload := uuid.NewString() + "." + strconv.FormatInt(expires.Unix(), 10)
	return payload + "." + a.sign(payload), expires
}

func (a *Authenticator) Validate(token string) error {
	_, _, err := a.parse(token)
	return err
}

// parse checks token's signature and expiry and returns its session id and
// expiry.
func (a *Authenticator) parse(token string) (id string, expires time.Time, err error) {
	i := strings.LastIndexByte(token, '.')
	if i < 0 {
		return "", time.Time{}, ErrInvalidToken
	}
	payload, sig := token[:i], token[i+1:]
	if !hmac.Equal([]byte(sig), []byte(a.sign(payload))) {
		return "", time.Time{}, ErrInvalidToken
	}

	id, exp, ok := strings.Cut(payload, ".")
	if !ok {
		return "", time.Time{}, ErrInvalidToken
	}
	unix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return "", time.Time{}, ErrInvalidToken
	}
	expires = time.Unix(unix, 0)
	if !a.now().Before(expires) {
		return "", time.Time{}, ErrExpiredToken
	}
	return id, expires, nil
}

// IsAdmin reports whether r carries a valid session cookie.
func (a *Authenticator) IsAdmin(r *http.Request) bool {
	_, ok := a.SessionID(r)
	return ok
}

// SessionID returns the id of the valid session carried by r.
func (a *Authenticator) SessionID(r *http.Request) (string, bool) {
	id, _, ok := a.Session(r)
	return id, ok
}

// Session returns the id and expiry of the valid session carried by r.
func (a *Authenticator) Session(r *http.Request) (id string, expires time.Time, ok bool) {
	if a == nil {
		return "", time.Time{}, false
	}
	c, err := r.Cookie(CookieName)
	if err != nil {
		return "", time.Time{}, false
	}
	id, expires, err = a.parse(c.Value)
	if err != nil {
		return "", time.Time{}, false
	}
	return id, expires, true
}

// SessionCookie wraps a token for the response.
func (a *Authenticator) SessionCookie(token string, expires time.Time, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(a.ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// ClearCookie expires the session cookie.
func ClearCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (a *Authenticator) sign(payload string) string {
	mac := hmac.New(sha256.New, a.key)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
