package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ms-enrollment/internal/logger"

	"github.com/go-resty/resty/v2"
)

// ErrNotContact means the platform does not know the recipient as a contact
// of the channel. A relationship check can be stale, so callers may retry once.
var ErrNotContact = errors.New("recipient is not a contact")

// PlatformError is any other rejection from the messaging platform.
type PlatformError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("messaging platform returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

type Client struct {
	baseURL      string
	channelToken string
	http         *resty.Client
	logger       *logger.Logger
}

func NewClient(baseURL, channelToken string, httpClient *resty.Client, log *logger.Logger) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		channelToken: channelToken,
		http:         httpClient,
		logger:       log,
	}
}

type friendship struct {
	FriendFlag bool `json:"friendFlag"`
}

// CheckRelationship reports whether the recipient currently follows the
// channel. An unknown recipient is ErrNotContact, not false.
func (c *Client) CheckRelationship(ctx context.Context, to string) (bool, error) {
	var result friendship
	var failure platformFailure
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.channelToken).
		SetPathParam("to", to).
		SetResult(&result).
		SetError(&failure).
		Get(c.baseURL + "/v2/bot/friendship/{to}")
	if err != nil {
		return false, fmt.Errorf("relationship check failed: %w", err)
	}
	if resp.StatusCode() == http.StatusOK {
		return result.FriendFlag, nil
	}
	return false, c.classify(resp, failure)
}

type pushRequest struct {
	To       string    `json:"to"`
	Messages []Message `json:"messages"`
}

// Push sends up to five messages to one recipient.
func (c *Client) Push(ctx context.Context, to string, messages ...Message) error {
	if len(messages) == 0 {
		return errors.New("nothing to push")
	}
	var failure platformFailure
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.channelToken).
		SetBody(pushRequest{To: to, Messages: messages}).
		SetError(&failure).
		Post(c.baseURL + "/v2/bot/message/push")
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	if resp.StatusCode() == http.StatusOK {
		c.logger.Debug("PUSH", fmt.Sprintf("Delivered %d message(s) to %s", len(messages), to))
		return nil
	}
	return c.classify(resp, failure)
}

type platformFailure struct {
	Message string `json:"message"`
}

func (c *Client) classify(resp *resty.Response, failure platformFailure) error {
	msg := failure.Message
	if msg == "" {
		msg = strings.TrimSpace(resp.String())
	}

	switch resp.StatusCode() {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotContact, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return &PlatformError{StatusCode: resp.StatusCode(), Code: "unauthorized", Message: msg}
	case http.StatusTooManyRequests:
		return &PlatformError{StatusCode: resp.StatusCode(), Code: "rate_limited", Message: msg}
	case http.StatusBadRequest:
		return &PlatformError{StatusCode: resp.StatusCode(), Code: "invalid_request", Message: msg}
	default:
		return &PlatformError{StatusCode: resp.StatusCode(), Code: fmt.Sprintf("http_%d", resp.StatusCode()), Message: msg}
	}
}
