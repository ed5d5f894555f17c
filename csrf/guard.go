package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrValidationFailed is the single denial for every failing sub-check.
// The wrapped reason string is diagnostic only; callers get no partial
// credit for passing some checks.
var ErrValidationFailed = errors.New("csrf validation failed")

// Config controls token format, cookie attributes, and bypass rules.
type Config struct {
	Secret []byte

	CookieName   string
	HeaderName   string
	CookiePath   string
	CookieDomain string
	Secure       bool
	HTTPOnly     bool
	SameSite     http.SameSite
	MaxAge       time.Duration

	ExcludePaths   []string
	TrustedOrigins []string
	EnforceOrigin  bool
}

// Guard implements double-submit-cookie protection. The token is
// value.timestamp.signature where signature = HMAC-SHA256(secret,
// value.timestamp); the cookie copy and the header copy must agree
// byte-for-byte and the signature must verify.
type Guard struct {
	config Config

	randRead func([]byte) (int, error)
}

// NewGuard validates cfg and fills cookie defaults. A missing secret is
// fatal here, not per request.
func NewGuard(cfg Config) (*Guard, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("csrf secret required")
	}
	if len(cfg.Secret) < 32 {
		return nil, errors.New("csrf secret must be at least 32 bytes")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "csrf_token"
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = "X-CSRF-Token"
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = http.SameSiteLaxMode
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}

	return &Guard{config: cfg, randRead: rand.Read}, nil
}

// Mint generates a fresh signed token.
func (g *Guard) Mint() (string, error) {
	buf := make([]byte, 32)
	if _, err := g.randRead(buf); err != nil {
		return "", err
	}

	value := base64.RawURLEncoding.EncodeToString(buf)
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	return value + "." + ts + "." + g.sign(value, ts), nil
}

// Bypass reports whether the request skips CSRF checks entirely:
// excluded paths and Bearer-authenticated API callers, which carry no
// ambient cookie credential for a cross-site page to ride on.
func (g *Guard) Bypass(r *http.Request) bool {
	for _, p := range g.config.ExcludePaths {
		if strings.HasPrefix(r.URL.Path, p) {
			return true
		}
	}

	return strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// EnsureCookie mints and sets the cookie when the request lacks a valid
// one. Called on safe-method responses; it never blocks a request.
func (g *Guard) EnsureCookie(w http.ResponseWriter, r *http.Request) error {
	if c, err := r.Cookie(g.config.CookieName); err == nil {
		if g.verifyToken(c.Value) == nil {
			return nil
		}
	}

	tok, err := g.Mint()
	if err != nil {
		return err
	}
	g.setCookie(w, tok)

	return nil
}

// Validate runs the unsafe-method state machine: cookie token present,
// header token present, both byte-equal under constant-time comparison,
// signature valid, timestamp fresh, and (optionally) Origin/Referer
// consistent. Every failure yields ErrValidationFailed with a reason.
func (g *Guard) Validate(r *http.Request) error {
	cookie, err := r.Cookie(g.config.CookieName)
	if err != nil || cookie.Value == "" {
		return fmt.Errorf("%w: missing cookie token", ErrValidationFailed)
	}

	header := r.Header.Get(g.config.HeaderName)
	if header == "" {
		return fmt.Errorf("%w: missing header token", ErrValidationFailed)
	}

	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return fmt.Errorf("%w: cookie/header mismatch", ErrValidationFailed)
	}

	if err := g.verifyToken(cookie.Value); err != nil {
		return err
	}

	if g.config.EnforceOrigin {
		if err := g.checkOrigin(r); err != nil {
			return err
		}
	}

	return nil
}

func (g *Guard) verifyToken(token string) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%w: malformed token", ErrValidationFailed)
	}
	value, ts, sig := parts[0], parts[1], parts[2]

	expected := g.sign(value, ts)
	if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) != 1 {
		return fmt.Errorf("%w: bad signature", ErrValidationFailed)
	}

	issued, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrValidationFailed)
	}
	age := time.Since(time.Unix(issued, 0))
	if age < 0 || age > g.config.MaxAge {
		return fmt.Errorf("%w: token expired", ErrValidationFailed)
	}

	return nil
}

// checkOrigin tolerates the absence of both Origin and Referer; not all
// clients send them. When one is present its host must match the
// request host or the trusted-origin list.
func (g *Guard) checkOrigin(r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.Header.Get("Referer")
	}
	if origin == "" {
		return nil
	}

	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("%w: unparseable origin", ErrValidationFailed)
	}

	if strings.EqualFold(u.Host, r.Host) {
		return nil
	}
	for _, trusted := range g.config.TrustedOrigins {
		if strings.EqualFold(u.Host, trusted) {
			return nil
		}
	}

	return fmt.Errorf("%w: untrusted origin %q", ErrValidationFailed, u.Host)
}

func (g *Guard) sign(value, ts string) string {
	mac := hmac.New(sha256.New, g.config.Secret)
	mac.Write([]byte(value))
	mac.Write([]byte("."))
	mac.Write([]byte(ts))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (g *Guard) setCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.config.CookieName,
		Value:    token,
		Path:     g.config.CookiePath,
		Domain:   g.config.CookieDomain,
		Secure:   g.config.Secure,
		HttpOnly: g.config.HTTPOnly,
		SameSite: g.config.SameSite,
		MaxAge:   int(g.config.MaxAge.Seconds()),
	})
}

// HeaderName exposes the configured header for response reflection.
func (g *Guard) HeaderName() string {
	return g.config.HeaderName
}

// CookieName exposes the configured cookie name.
func (g *Guard) CookieName() string {
	return g.config.CookieName
}
