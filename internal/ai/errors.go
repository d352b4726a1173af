package ai

import "github.com/kiranshivaraju/logsweep/pkg/models"

// Provider errors, aliased so callers can classify without importing models.
var (
	ErrProviderUnavailable = models.ErrProviderUnavailable
	ErrInferenceTimeout    = models.ErrInferenceTimeout
	ErrInvalidResponse     = models.ErrInvalidResponse
)
