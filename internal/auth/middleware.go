package auth

import (
	"context"
	"fmt"
	"net/http"

	"ms-enrollment/internal/logger"

	"github.com/coreos/go-oidc/v3/oidc"
)

type contextKey string

const (
	userIDKey contextKey = "user_id"
	rolesKey  contextKey = "roles"
)

// Principal is what a verified bearer token tells us about the caller.
type Principal struct {
	UserID string
	Roles  []string
}

type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Principal, error)
}

type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the issuer and verifies tokens against its keys.
func NewOIDCVerifier(ctx context.Context, issuer string) (TokenVerifier, error) {
	if issuer == "" {
		return nil, fmt.Errorf("OIDC issuer not configured")
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	// SkipClientIDCheck → access tokens from any client of the realm are accepted
	return &oidcVerifier{verifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true})}, nil
}

func (v *oidcVerifier) Verify(ctx context.Context, rawToken string) (*Principal, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	var claims struct {
		Sub         string `json:"sub"`
		RealmAccess struct {
			Roles []string `json:"roles"`
		} `json:"realm_access"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	return &Principal{UserID: claims.Sub, Roles: claims.RealmAccess.Roles}, nil
}

type Middleware struct {
	Verifier TokenVerifier
	Logger   *logger.Logger
}

func NewMiddleware(verifier TokenVerifier, log *logger.Logger) *Middleware {
	return &Middleware{Verifier: verifier, Logger: log}
}

// Authenticate rejects requests without a valid bearer token and stores the
// caller's identity in the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawToken, err := ExtractTokenFromRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		principal, err := m.Verifier.Verify(r.Context(), rawToken)
		if err != nil {
			m.Logger.LogSecurity("INVALID_TOKEN", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if principal.UserID == "" {
			http.Error(w, "token has no subject", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), *principal)))
	})
}

// RequireRole must run after Authenticate.
func (m *Middleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasRole(r.Context(), role) {
				m.Logger.LogSecurity("MISSING_ROLE", fmt.Sprintf("user %s lacks %s for %s %s", UserID(r.Context()), role, r.Method, r.URL.Path))
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = context.WithValue(ctx, userIDKey, p.UserID)
	return context.WithValue(ctx, rolesKey, p.Roles)
}

// Helper to extract user ID in handlers
func UserID(ctx context.Context) string {
	if uid, ok := ctx.Value(userIDKey).(string); ok {
		return uid
	}
	return ""
}

func HasRole(ctx context.Context, role string) bool {
	roles, _ := ctx.Value(rolesKey).([]string)
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
