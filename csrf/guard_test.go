package csrf

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestGuard(t *testing.T, mutate func(*Config)) *Guard {
	t.Helper()

	cfg := Config{Secret: testSecret}
	if mutate != nil {
		mutate(&cfg)
	}

	guard, err := NewGuard(cfg)
	if err != nil {
		t.Fatalf("NewGuard failed: %v", err)
	}
	return guard
}

func TestNewGuardRequiresSecret(t *testing.T) {
	if _, err := NewGuard(Config{}); err == nil {
		t.Fatal("expected error for missing secret")
	}
	if _, err := NewGuard(Config{Secret: []byte("short")}); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestEnsureCookieMintsOnce(t *testing.T) {
	guard := newTestGuard(t, nil)

	// No cookie: one gets set.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	if err := guard.EnsureCookie(rec, req); err != nil {
		t.Fatalf("EnsureCookie failed: %v", err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "csrf_token" {
		t.Fatalf("expected one csrf_token cookie, got %v", cookies)
	}
	token := cookies[0].Value

	// Valid cookie present: nothing minted.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: token})
	if err := guard.EnsureCookie(rec, req); err != nil {
		t.Fatalf("EnsureCookie failed: %v", err)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("valid cookie was replaced")
	}

	// Garbage cookie: replaced.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "garbage"})
	if err := guard.EnsureCookie(rec, req); err != nil {
		t.Fatalf("EnsureCookie failed: %v", err)
	}
	if len(rec.Result().Cookies()) != 1 {
		t.Fatal("invalid cookie was not replaced")
	}
}

func TestEnsureCookieReportsMintFailure(t *testing.T) {
	guard := newTestGuard(t, nil)
	guard.randRead = func([]byte) (int, error) {
		return 0, errors.New("entropy exhausted")
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	if err := guard.EnsureCookie(rec, req); err == nil {
		t.Fatal("expected error when minting cannot read randomness")
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("a cookie was set despite the mint failure")
	}
}

func postWith(cookie, header string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/fields", nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: cookie})
	}
	if header != "" {
		req.Header.Set("X-CSRF-Token", header)
	}
	return req
}

func TestValidateDoubleSubmit(t *testing.T) {
	guard := newTestGuard(t, nil)

	token, err := guard.Mint()
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	if err := guard.Validate(postWith(token, token)); err != nil {
		t.Fatalf("matching pair rejected: %v", err)
	}

	cases := []struct {
		name   string
		cookie string
		header string
	}{
		{"missing cookie", "", token},
		{"missing header", token, ""},
		{"mismatched pair", token, token + "x"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := guard.Validate(postWith(tc.cookie, tc.header)); !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("expected ErrValidationFailed, got %v", err)
			}
		})
	}
}

func TestValidateTokenIntegrity(t *testing.T) {
	guard := newTestGuard(t, nil)

	token, err := guard.Mint()
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	parts := strings.Split(token, ".")
	value, ts := parts[0], parts[1]

	// Changing any single element of the token invalidates it even when
	// cookie and header still agree.
	cases := []struct {
		name  string
		token string
	}{
		{"two parts", value + "." + ts},
		{"tampered value", "x" + value + "." + ts + "." + parts[2]},
		{"tampered signature", value + "." + ts + "." + strings.Repeat("A", len(parts[2]))},
		{"tampered timestamp", value + "." + strconv.FormatInt(time.Now().Unix()+60, 10) + "." + parts[2]},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := guard.Validate(postWith(tc.token, tc.token)); !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("expected ErrValidationFailed, got %v", err)
			}
		})
	}
}

func TestValidateExpiredToken(t *testing.T) {
	guard := newTestGuard(t, func(c *Config) { c.MaxAge = time.Hour })

	// Forge a correctly-signed token dated beyond MaxAge.
	ts := strconv.FormatInt(time.Now().Add(-2*time.Hour).Unix(), 10)
	stale := "stalevalue." + ts + "." + guard.sign("stalevalue", ts)

	if err := guard.Validate(postWith(stale, stale)); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
}

func TestBypass(t *testing.T) {
	guard := newTestGuard(t, func(c *Config) {
		c.ExcludePaths = []string{"/webhooks/"}
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", nil)
	if !guard.Bypass(req) {
		t.Fatal("excluded path not bypassed")
	}

	req = httptest.NewRequest(http.MethodPost, "/fields", nil)
	req.Header.Set("Authorization", "Bearer some.jwt.token")
	if !guard.Bypass(req) {
		t.Fatal("bearer-authenticated request not bypassed")
	}

	req = httptest.NewRequest(http.MethodPost, "/fields", nil)
	if guard.Bypass(req) {
		t.Fatal("plain cookie request bypassed")
	}
}

func TestOriginEnforcement(t *testing.T) {
	guard := newTestGuard(t, func(c *Config) {
		c.EnforceOrigin = true
		c.TrustedOrigins = []string{"app.fieldsense.io"}
	})

	token, err := guard.Mint()
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	// Absence of both Origin and Referer is tolerated.
	if err := guard.Validate(postWith(token, token)); err != nil {
		t.Fatalf("headerless request rejected: %v", err)
	}

	req := postWith(token, token)
	req.Header.Set("Origin", "https://"+req.Host)
	if err := guard.Validate(req); err != nil {
		t.Fatalf("same-origin request rejected: %v", err)
	}

	req = postWith(token, token)
	req.Header.Set("Origin", "https://app.fieldsense.io")
	if err := guard.Validate(req); err != nil {
		t.Fatalf("trusted origin rejected: %v", err)
	}

	req = postWith(token, token)
	req.Header.Set("Origin", "https://evil.example")
	if err := guard.Validate(req); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed for foreign origin, got %v", err)
	}

	req = postWith(token, token)
	req.Header.Set("Referer", "https://evil.example/form")
	if err := guard.Validate(req); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed for foreign referer, got %v", err)
	}
}
