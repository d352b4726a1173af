// Package ollama implements models.AIProvider against a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/logsweep/internal/config"
	"github.com/kiranshivaraju/logsweep/internal/retry"
	"github.com/kiranshivaraju/logsweep/pkg/models"
)

// Provider implements models.AIProvider using Ollama's /api/chat endpoint.
type Provider struct {
	baseURL string
	model   string
	policy  retry.Policy
	client  *http.Client
}

// Option customizes a Provider.
type Option func(*Provider)

// WithRetry sets the transport retry policy.
func WithRetry(p retry.Policy) Option {
	return func(pr *Provider) { pr.policy = p }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(pr *Provider) { pr.client = c }
}

func NewProvider(cfg config.OllamaConfig, opts ...Option) *Provider {
	p := &Provider{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		policy:  retry.DefaultPolicy(),
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string  { return "ollama" }
func (p *Provider) Model() string { return p.model }

// Generate sends prompt as a single user message and returns the reply.
func (p *Provider) Generate(ctx context.Context, prompt string, maxOutputTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    p.model,
		Messages: []message{{Role: "user", Content: prompt}},
		Stream:   false,
		Options:  options{NumPredict: maxOutputTokens},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling ollama request: %w", err)
	}

	resp, err := retry.Do(ctx, p.policy, func(ctx context.Context) (chatResponse, error) {
		return p.call(ctx, body)
	})
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

func (p *Provider) call(ctx context.Context, body []byte) (chatResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return chatResponse{}, retry.Permanent(fmt.Errorf("%w: creating request: %v", models.ErrProviderUnavailable, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return chatResponse{}, classifyError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return chatResponse{}, fmt.Errorf("%w: reading ollama response: %v", models.ErrProviderUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: ollama status %d: %s", models.ErrProviderUnavailable, resp.StatusCode, truncate(raw, 200))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return chatResponse{}, retry.Permanent(err)
		}
		return chatResponse{}, err
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return chatResponse{}, retry.Permanent(fmt.Errorf("%w: decoding ollama response: %v", models.ErrInvalidResponse, err))
	}
	return out, nil
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrInferenceTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", models.ErrInferenceTimeout, err)
	}
	return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  options   `json:"options,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type options struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Message   message   `json:"message"`
	Done      bool      `json:"done"`
}

var _ models.AIProvider = (*Provider)(nil)
