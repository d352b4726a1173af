// Package vllm implements models.AIProvider against a vLLM server through its
// OpenAI-compatible endpoint.
package vllm

import (
	"github.com/kiranshivaraju/logsweep/internal/ai/openai"
	"github.com/kiranshivaraju/logsweep/internal/config"
)

// NewProvider returns an OpenAI-compatible provider named "vllm".
// vLLM accepts any bearer token unless started with --api-key.
func NewProvider(cfg config.VLLMConfig, opts ...openai.Option) *openai.Provider {
	key := cfg.APIKey
	if key == "" {
		key = "EMPTY"
	}
	opts = append([]openai.Option{openai.WithName("vllm")}, opts...)
	return openai.NewProvider(config.OpenAIConfig{
		APIKey:  key,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
	}, opts...)
}
