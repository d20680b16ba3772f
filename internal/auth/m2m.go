package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ms-enrollment/internal/logger"
	"ms-enrollment/internal/models"

	"github.com/go-resty/resty/v2"
)

type TokenStore interface {
	GetToken(ctx context.Context) (*TokenCache, error)
	SetToken(ctx context.Context, token string, expiresAt time.Time) error
}

// M2MTokenSource fetches client-credentials tokens from Keycloak and keeps
// them in the shared cache until shortly before they expire.
type M2MTokenSource struct {
	cfg    models.Config
	client *resty.Client
	cache  TokenStore
	logger *logger.Logger

	mu sync.Mutex
}

func NewM2MTokenSource(cfg models.Config, client *resty.Client, cache TokenStore, log *logger.Logger) *M2MTokenSource {
	return &M2MTokenSource{cfg: cfg, client: client, cache: cache, logger: log}
}

// Token returns a valid access token, requesting a new one when the cache is
// empty, expired or unreachable.
func (s *M2MTokenSource) Token(ctx context.Context) (string, error) {
	if cached := s.cached(ctx); cached != "" {
		return cached, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited
	if cached := s.cached(ctx); cached != "" {
		return cached, nil
	}

	token, expiresAt, err := s.requestToken(ctx)
	if err != nil {
		return "", err
	}
	if s.cache != nil {
		if err := s.cache.SetToken(ctx, token, expiresAt); err != nil {
			s.logger.Warn("AUTH", fmt.Sprintf("Failed to cache M2M token: %v", err))
		}
	}
	return token, nil
}

func (s *M2MTokenSource) cached(ctx context.Context) string {
	if s.cache == nil {
		return ""
	}
	tc, err := s.cache.GetToken(ctx)
	if err != nil {
		s.logger.Warn("AUTH", fmt.Sprintf("M2M token cache unavailable: %v", err))
		return ""
	}
	if tc == nil {
		return ""
	}
	return tc.Token
}

func (s *M2MTokenSource) requestToken(ctx context.Context) (string, time.Time, error) {
	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", s.cfg.KeycloakURL, s.cfg.KeycloakRealm)
	s.logger.Debug("AUTH", fmt.Sprintf("Requesting M2M token from: %s", tokenURL))

	var tokenResp models.TokenResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     s.cfg.ClientID,
			"client_secret": s.cfg.ClientSecret,
		}).
		SetResult(&tokenResp).
		Post(tokenURL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		s.logger.Error("AUTH", fmt.Sprintf("Keycloak token response %d: %s", resp.StatusCode(), resp.String()))
		return "", time.Time{}, fmt.Errorf("failed to get token, status: %d", resp.StatusCode())
	}
	if tokenResp.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("token response carried no access_token")
	}

	expiresAt := time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	if tokenResp.ExpiresIn <= 0 {
		exp, err := TokenExpiry(tokenResp.AccessToken)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("token lifetime unknown: %w", err)
		}
		expiresAt = exp
	}

	s.logger.Info("AUTH", fmt.Sprintf("Obtained M2M token for client %s, valid until %s", s.cfg.ClientID, expiresAt.Format(time.RFC3339)))
	return tokenResp.AccessToken, expiresAt, nil
}
