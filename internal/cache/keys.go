package cache

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/logsweep/pkg/models"
)

func WindowStatusKey(runID uuid.UUID, windowID int) string {
	return fmt.Sprintf("window:%s:%d", runID, windowID)
}

func RunCounterKey(runID uuid.UUID, status models.WindowStatus) string {
	return fmt.Sprintf("run:%s:%s", runID, status)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
