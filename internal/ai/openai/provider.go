// Package openai implements models.AIProvider with the OpenAI chat completions
// API. Any OpenAI-compatible server can be targeted through BaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kiranshivaraju/logsweep/internal/config"
	"github.com/kiranshivaraju/logsweep/internal/retry"
	"github.com/kiranshivaraju/logsweep/pkg/models"
)

// Provider implements models.AIProvider using OpenAI.
type Provider struct {
	name   string
	model  string
	policy retry.Policy
	client *goopenai.Client
}

// Option customizes a Provider.
type Option func(*options)

type options struct {
	name       string
	policy     retry.Policy
	httpClient *http.Client
}

// WithRetry sets the transport retry policy.
func WithRetry(p retry.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithName overrides the reported provider name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

func NewProvider(cfg config.OpenAIConfig, opts ...Option) *Provider {
	o := options{name: "openai", policy: retry.DefaultPolicy()}
	for _, opt := range opts {
		opt(&o)
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = APIBase(cfg.BaseURL)
	}
	if o.httpClient != nil {
		clientCfg.HTTPClient = o.httpClient
	}

	return &Provider{
		name:   o.name,
		model:  cfg.Model,
		policy: o.policy,
		client: goopenai.NewClientWithConfig(clientCfg),
	}
}

// APIBase returns baseURL with the /v1 API prefix the client expects.
func APIBase(baseURL string) string {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(baseURL, "/v1") {
		return baseURL
	}
	return baseURL + "/v1"
}

func (p *Provider) Name() string  { return p.name }
func (p *Provider) Model() string { return p.model }

// Generate sends prompt as a single user message and returns the first choice.
// A response without choices yields an empty string.
func (p *Provider) Generate(ctx context.Context, prompt string, maxOutputTokens int) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model: p.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	}
	// Reasoning models reject max_tokens.
	if isReasoningModel(p.model) {
		req.MaxCompletionTokens = maxOutputTokens
	} else {
		req.MaxTokens = maxOutputTokens
	}

	resp, err := retry.Do(ctx, p.policy, func(ctx context.Context) (goopenai.ChatCompletionResponse, error) {
		resp, err := p.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return resp, p.classifyError(err)
		}
		return resp, nil
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func isReasoningModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

func (p *Provider) classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", models.ErrInferenceTimeout, p.name, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", models.ErrInferenceTimeout, p.name, err)
	}

	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	wrapped := fmt.Errorf("%w: %s: %v", models.ErrProviderUnavailable, p.name, err)
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		return retry.Permanent(wrapped)
	}
	return wrapped
}

var _ models.AIProvider = (*Provider)(nil)
