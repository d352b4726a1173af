// Package ai selects the inference provider used for window analysis.
package ai

import (
	"fmt"

	"github.com/kiranshivaraju/logsweep/internal/ai/anthropic"
	"github.com/kiranshivaraju/logsweep/internal/ai/ollama"
	"github.com/kiranshivaraju/logsweep/internal/ai/openai"
	"github.com/kiranshivaraju/logsweep/internal/ai/vllm"
	"github.com/kiranshivaraju/logsweep/internal/config"
	"github.com/kiranshivaraju/logsweep/internal/retry"
	"github.com/kiranshivaraju/logsweep/pkg/models"
)

// NewProvider constructs the appropriate AI provider based on config.
// Every provider retries transient transport failures with policy.
// Called once at startup.
func NewProvider(cfg config.AIConfig, policy retry.Policy) (models.AIProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewProvider(cfg.Ollama, ollama.WithRetry(policy)), nil
	case "vllm":
		return vllm.NewProvider(cfg.VLLM, openai.WithRetry(policy)), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI, openai.WithRetry(policy)), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic, anthropic.WithRetry(policy)), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai, anthropic", cfg.Provider)
	}
}
