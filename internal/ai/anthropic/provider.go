// Package anthropic implements models.AIProvider with the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/kiranshivaraju/logsweep/internal/config"
	"github.com/kiranshivaraju/logsweep/internal/retry"
	"github.com/kiranshivaraju/logsweep/pkg/models"
)

// Provider implements models.AIProvider using Claude models.
type Provider struct {
	model  string
	policy retry.Policy
	client *anthropic.Client
}

// Option customizes a Provider.
type Option func(*options)

type options struct {
	policy     retry.Policy
	httpClient *http.Client
	baseURL    string
}

// WithRetry sets the transport retry policy.
func WithRetry(p retry.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithBaseURL points the client at a different API root, including the /v1 prefix.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

func NewProvider(cfg config.AnthropicConfig, opts ...Option) *Provider {
	o := options{policy: retry.DefaultPolicy()}
	for _, opt := range opts {
		opt(&o)
	}

	var clientOpts []anthropic.ClientOption
	if o.httpClient != nil {
		clientOpts = append(clientOpts, anthropic.WithHTTPClient(o.httpClient))
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, anthropic.WithBaseURL(o.baseURL))
	}

	return &Provider{
		model:  cfg.Model,
		policy: o.policy,
		client: anthropic.NewClient(cfg.APIKey, clientOpts...),
	}
}

func (p *Provider) Name() string  { return "anthropic" }
func (p *Provider) Model() string { return p.model }

// Generate sends prompt as a single user message and concatenates the text
// blocks of the reply.
func (p *Provider) Generate(ctx context.Context, prompt string, maxOutputTokens int) (string, error) {
	req := anthropic.MessagesRequest{
		Model: anthropic.Model(p.model),
		Messages: []anthropic.Message{
			{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewTextMessageContent(prompt),
				},
			},
		},
		MaxTokens: maxOutputTokens,
	}

	resp, err := retry.Do(ctx, p.policy, func(ctx context.Context) (anthropic.MessagesResponse, error) {
		resp, err := p.client.CreateMessages(ctx, req)
		if err != nil {
			return resp, classifyError(err)
		}
		return resp, nil
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, content := range resp.Content {
		if content.Type == "text" && content.Text != nil {
			b.WriteString(*content.Text)
		}
	}
	return b.String(), nil
}

// permanentTypes are API error types a retry cannot fix.
var permanentTypes = map[string]bool{
	"invalid_request_error": true,
	"authentication_error":  true,
	"permission_error":      true,
	"not_found_error":       true,
	"request_too_large":     true,
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: anthropic: %v", models.ErrInferenceTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: anthropic: %v", models.ErrInferenceTimeout, err)
	}

	wrapped := fmt.Errorf("%w: anthropic: %v", models.ErrProviderUnavailable, err)

	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) && permanentTypes[string(apiErr.Type)] {
		return retry.Permanent(wrapped)
	}
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		code := reqErr.StatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return retry.Permanent(wrapped)
		}
	}
	return wrapped
}

var _ models.AIProvider = (*Provider)(nil)
