package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/certiva/certiva-engine/internal/domain/enrollment"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRINCIPAL
// ══════════════════════════════════════════════════════════════════════════════

// ContextKey is a type for context keys.
type ContextKey string

// ContextKeyPrincipal holds the authenticated Principal.
const ContextKeyPrincipal ContextKey = "principal"

// Principal is the authenticated caller. LearnerID comes from the token subject.
type Principal struct {
	LearnerID string
	Admin     bool
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, p)
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ContextKeyPrincipal).(Principal)
	return p, ok
}

// ══════════════════════════════════════════════════════════════════════════════
// JWT AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

// ErrUnauthenticated is returned for missing or invalid credentials.
var ErrUnauthenticated = errors.New("authentication required")

// Claims are the token claims the engine reads. Tokens are minted by the
// identity service; the engine only verifies them.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTAuth verifies HS256 bearer tokens.
type JWTAuth struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

// JWTAuthConfig configures JWTAuth.
type JWTAuthConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// NewJWTAuth creates a JWTAuth. An empty secret is rejected.
func NewJWTAuth(cfg JWTAuthConfig) (*JWTAuth, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt auth: secret is required")
	}
	return &JWTAuth{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		leeway:   cfg.Leeway,
	}, nil
}

// Parse validates a raw token and returns the principal it names.
func (a *JWTAuth) Parse(raw string) (Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.leeway),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	if err := enrollment.ValidateLearnerID(claims.Subject); err != nil {
		return Principal{}, fmt.Errorf("%w: invalid subject", ErrUnauthenticated)
	}

	return Principal{LearnerID: claims.Subject}, nil
}

// Sign mints a token for learnerID. Used by tooling and tests.
func (a *JWTAuth) Sign(learnerID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   learnerID,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	if a.audience != "" {
		claims.Audience = jwt.ClaimStrings{a.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Middleware rejects requests without a valid bearer token.
func (a *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "bearer token is required")
			return
		}

		p, err := a.Parse(raw)
		if err != nil {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return raw, raw != ""
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN KEY AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

// AdminKeyAuth guards administrative routes with a shared key whose bcrypt
// hash is configured; the plain key is never stored.
type AdminKeyAuth struct {
	headerName string
	hash       []byte
}

// NewAdminKeyAuth creates an AdminKeyAuth from a bcrypt hash.
func NewAdminKeyAuth(headerName, bcryptHash string) (*AdminKeyAuth, error) {
	if _, err := bcrypt.Cost([]byte(bcryptHash)); err != nil {
		return nil, fmt.Errorf("admin auth: invalid bcrypt hash: %w", err)
	}
	if headerName == "" {
		headerName = "X-Admin-Key"
	}
	return &AdminKeyAuth{headerName: headerName, hash: []byte(bcryptHash)}, nil
}

// HashAdminKey returns the bcrypt hash to configure for key.
func HashAdminKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// IsValid checks key against the configured hash.
func (a *AdminKeyAuth) IsValid(key string) bool {
	if key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.hash, []byte(key)) == nil
}

// Middleware rejects requests without the admin key.
func (a *AdminKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.IsValid(r.Header.Get(a.headerName)) {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "admin key is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), Principal{Admin: true})))
	})
}
