package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// M2MTokenKey holds the identity provider service token as a hash
	M2MTokenKey = "enrollment:m2m_token"
	// TokenExpiryBuffer is how early a token stops being handed out
	TokenExpiryBuffer = 60 * time.Second
)

var errNoRedis = errors.New("redis client not initialized")

// TokenCache is a service token and the moment it expires.
type TokenCache struct {
	Token     string
	ExpiresAt time.Time
}

func (tc *TokenCache) IsValid() bool {
	if tc == nil || tc.Token == "" {
		return false
	}
	return time.Now().Add(TokenExpiryBuffer).Before(tc.ExpiresAt)
}

// RedisTokenCache shares the service token between replicas so only one of
// them hits the identity provider per token lifetime.
type RedisTokenCache struct {
	Client *redis.Client
}

func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{Client: client}
}

// GetToken returns nil without error when nothing usable is cached.
func (c *RedisTokenCache) GetToken(ctx context.Context) (*TokenCache, error) {
	if c.Client == nil {
		return nil, errNoRedis
	}

	fields, err := c.Client.HGetAll(ctx, M2MTokenKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read m2m token: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	exp, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		// unreadable entry, let the caller fetch a fresh one
		return nil, nil
	}

	tc := &TokenCache{Token: fields["token"], ExpiresAt: time.Unix(exp, 0)}
	if !tc.IsValid() {
		return nil, nil
	}
	return tc, nil
}

// SetToken stores token until expiresAt. Already expired tokens are ignored.
func (c *RedisTokenCache) SetToken(ctx context.Context, token string, expiresAt time.Time) error {
	if c.Client == nil {
		return errNoRedis
	}
	if !time.Now().Before(expiresAt) {
		return nil
	}

	_, err := c.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, M2MTokenKey, "token", token, "expires_at", expiresAt.Unix())
		pipe.ExpireAt(ctx, M2MTokenKey, expiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store m2m token: %w", err)
	}
	return nil
}
