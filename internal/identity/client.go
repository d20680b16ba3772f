package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ms-enrollment/internal/logger"
	"ms-enrollment/internal/models"

	"github.com/go-resty/resty/v2"
)

var (
	ErrUserNotFound = errors.New("identity user not found")
	ErrNoEmail      = errors.New("identity user has no email")
)

type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Client reads user records through the identity provider's admin API.
type Client struct {
	baseURL string
	realm   string
	http    *resty.Client
	tokens  TokenProvider
	logger  *logger.Logger
}

func NewClient(baseURL, realm string, httpClient *resty.Client, tokens TokenProvider, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		realm:   realm,
		http:    httpClient,
		tokens:  tokens,
		logger:  log,
	}
}

// GetUser fetches the admin view of a user.
func (c *Client) GetUser(ctx context.Context, userID string) (*models.IdentityUser, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("identity token: %w", err)
	}

	var user models.IdentityUser
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetPathParams(map[string]string{"realm": c.realm, "id": userID}).
		SetResult(&user).
		Get(c.baseURL + "/admin/realms/{realm}/users/{id}")
	if err != nil {
		return nil, fmt.Errorf("get user request failed: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return &user, nil
	case http.StatusNotFound:
		return nil, ErrUserNotFound
	default:
		c.logger.Error("IDENTITY", fmt.Sprintf("User lookup for %s returned %d: %s", userID, resp.StatusCode(), resp.String()))
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode())
	}
}

// CanonicalEmail is the address the identity provider holds for the user.
// Login-flow emails are never trusted for notifications.
func (c *Client) CanonicalEmail(ctx context.Context, userID string) (string, error) {
	user, err := c.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	email := strings.TrimSpace(user.Email)
	if email == "" {
		return "", ErrNoEmail
	}
	return email, nil
}
