package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is the single decode failure surfaced by the codec.
// Callers never see whether a token was expired, malformed, or signed by
// the wrong key; that detail stays inside the codec.
var ErrInvalidToken = errors.New("invalid token")

// Type distinguishes access tokens from refresh tokens.
type Type string

const (
	// TypeAccess marks a short-lived bearer credential.
	TypeAccess Type = "access"
	// TypeRefresh marks a long-lived rotation credential.
	TypeRefresh Type = "refresh"
)

// SigningMethod selects the HMAC algorithm used for signing.
type SigningMethod string

const (
	// MethodHS256 signs with HMAC-SHA256.
	MethodHS256 SigningMethod = "hs256"
	// MethodHS512 signs with HMAC-SHA512.
	MethodHS512 SigningMethod = "hs512"
)

// Config holds the signing material and claim policy for a Codec.
// It is validated once by NewCodec and then treated as immutable.
type Config struct {
	Secret        []byte
	SigningMethod SigningMethod
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// Claims is the full claim set carried by both token types. Subject,
// ID (jti), IssuedAt, ExpiresAt, Issuer, and Audience live in the
// embedded RegisteredClaims.
type Claims struct {
	TokenType   Type     `json:"type"`
	FamilyID    string   `json:"family_id,omitempty"`
	TenantID    string   `json:"tenant_id,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Codec issues and verifies signed bearer tokens. It is pure: it never
// touches a store, so rotation and decoding stay unit-testable. The
// revocation check belongs to the caller.
type Codec struct {
	config Config
}

// NewCodec validates cfg and returns a ready Codec. A missing secret or
// non-positive TTL is a configuration error: it fails here, at startup,
// never per request.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("signing secret required")
	}
	if len(cfg.Secret) < 32 {
		return nil, errors.New("signing secret must be at least 32 bytes")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid access TTL")
	}
	if cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid refresh TTL")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("issuer required")
	}

	switch cfg.SigningMethod {
	case MethodHS256, MethodHS512:
	case "":
		cfg.SigningMethod = MethodHS256
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Codec{config: cfg}, nil
}

// IssueAccess signs a new access token for subject. Every issuance gets
// a fresh jti. Returns the signed token and its jti.
func (c *Codec) IssueAccess(subject, tenantID string, roles, permissions []string) (string, string, error) {
	if subject == "" {
		return "", "", errors.New("subject required")
	}

	jti := uuid.NewString()
	now := time.Now()

	claims := Claims{
		TokenType:   TypeAccess,
		TenantID:    tenantID,
		Roles:       roles,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.config.AccessTTL)),
			Issuer:    c.config.Issuer,
		},
	}
	if c.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.config.Audience}
	}

	signed, err := jwt.NewWithClaims(c.method(), claims).SignedString(c.config.Secret)
	if err != nil {
		return "", "", err
	}

	return signed, jti, nil
}

// IssueRefresh signs a new refresh token. An empty familyID starts a new
// rotation lineage; a non-empty one joins an existing lineage. Returns
// the signed token, its jti, and the family it belongs to.
func (c *Codec) IssueRefresh(subject, tenantID string, roles, permissions []string, familyID string) (string, string, string, error) {
	if subject == "" {
		return "", "", "", errors.New("subject required")
	}
	if familyID == "" {
		familyID = uuid.NewString()
	}

	jti := uuid.NewString()
	now := time.Now()

	claims := Claims{
		TokenType:   TypeRefresh,
		FamilyID:    familyID,
		TenantID:    tenantID,
		Roles:       roles,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.config.RefreshTTL)),
			Issuer:    c.config.Issuer,
		},
	}
	if c.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.config.Audience}
	}

	signed, err := jwt.NewWithClaims(c.method(), claims).SignedString(c.config.Secret)
	if err != nil {
		return "", "", "", err
	}

	return signed, jti, familyID, nil
}

// Decode verifies signature, expiry, issued-at, issuer, required claims,
// and (when expectAudience is set) audience. Any failure collapses to
// ErrInvalidToken: a malformed or expired token will never become valid,
// so callers get no retry signal and no cryptographic detail.
func (c *Codec) Decode(raw string, expectAudience bool) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(c.config.Issuer),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if expectAudience && c.config.Audience != "" {
		options = append(options, jwt.WithAudience(c.config.Audience))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != c.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return c.config.Secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	switch claims.TokenType {
	case TypeAccess, TypeRefresh:
	default:
		return nil, ErrInvalidToken
	}
	if claims.TokenType == TypeRefresh && claims.FamilyID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Rotate decodes a refresh token and issues a fresh access token reusing
// its subject, tenant, roles, and permissions. Rotation does not consult
// any denylist; the pipeline checks revocation before calling this.
func (c *Codec) Rotate(refreshRaw string) (string, string, error) {
	claims, err := c.Decode(refreshRaw, false)
	if err != nil {
		return "", "", err
	}
	if claims.TokenType != TypeRefresh {
		return "", "", ErrInvalidToken
	}

	return c.IssueAccess(claims.Subject, claims.TenantID, claims.Roles, claims.Permissions)
}

func (c *Codec) method() jwt.SigningMethod {
	switch c.config.SigningMethod {
	case MethodHS512:
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}
