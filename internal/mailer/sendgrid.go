package mailer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ms-enrollment/internal/logger"

	"github.com/go-resty/resty/v2"
)

type Message struct {
	To         string
	ToName     string
	Subject    string
	TemplateID string
	Data       map[string]interface{}
	HTML       string
	Text       string
}

type Result struct {
	MessageID string
	Status    string
}

// ProviderError is a rejected send. Code is the provider's error field when
// it gives one, otherwise the HTTP status.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("email provider returned %d: %s", e.StatusCode, e.Message)
}

type SendGridClient struct {
	baseURL   string
	apiKey    string
	fromEmail string
	fromName  string
	mockMode  bool
	http      *resty.Client
	logger    *logger.Logger
}

type Options struct {
	BaseURL   string
	APIKey    string
	FromEmail string
	FromName  string
	MockMode  bool
}

func NewSendGridClient(opts Options, httpClient *resty.Client, log *logger.Logger) *SendGridClient {
	return &SendGridClient{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		apiKey:    opts.APIKey,
		fromEmail: opts.FromEmail,
		fromName:  opts.FromName,
		mockMode:  opts.MockMode,
		http:      httpClient,
		logger:    log,
	}
}

func (c *SendGridClient) Send(ctx context.Context, msg Message) (*Result, error) {
	c.logger.Debug("EMAIL", fmt.Sprintf("Sending email to %s: %s", msg.To, msg.Subject))

	if c.mockMode {
		return &Result{MessageID: fmt.Sprintf("msg_mock_%d", time.Now().UnixNano()), Status: "mocked"}, nil
	}

	var failure sendGridErrors
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetBody(c.payload(msg)).
		SetError(&failure).
		Post(c.baseURL + "/v3/mail/send")
	if err != nil {
		return nil, fmt.Errorf("email request failed: %w", err)
	}

	if resp.StatusCode() == http.StatusAccepted || resp.StatusCode() == http.StatusOK {
		return &Result{MessageID: resp.Header().Get("X-Message-Id"), Status: "accepted"}, nil
	}

	perr := &ProviderError{
		StatusCode: resp.StatusCode(),
		Code:       fmt.Sprintf("http_%d", resp.StatusCode()),
		Message:    strings.TrimSpace(resp.String()),
	}
	if len(failure.Errors) > 0 {
		perr.Message = failure.Errors[0].Message
		if failure.Errors[0].Field != "" {
			perr.Code = failure.Errors[0].Field
		}
	}
	return nil, perr
}

type sendGridErrors struct {
	Errors []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type personalization struct {
	To                  []address              `json:"to"`
	Subject             string                 `json:"subject,omitempty"`
	DynamicTemplateData map[string]interface{} `json:"dynamic_template_data,omitempty"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailSend struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject,omitempty"`
	TemplateID       string            `json:"template_id,omitempty"`
	Content          []content         `json:"content,omitempty"`
}

func (c *SendGridClient) payload(msg Message) mailSend {
	p := mailSend{
		Personalizations: []personalization{{
			To:      []address{{Email: msg.To, Name: msg.ToName}},
			Subject: msg.Subject,
		}},
		From:    address{Email: c.fromEmail, Name: c.fromName},
		Subject: msg.Subject,
	}
	if msg.TemplateID != "" {
		p.TemplateID = msg.TemplateID
		p.Personalizations[0].DynamicTemplateData = msg.Data
		return p
	}
	if msg.Text != "" {
		p.Content = append(p.Content, content{Type: "text/plain", Value: msg.Text})
	}
	if msg.HTML != "" {
		p.Content = append(p.Content, content{Type: "text/html", Value: msg.HTML})
	}
	return p
}
