package cache

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/logsweep/pkg/models"
)

// Nop is the Cache used when REDIS_URL is unset. Reads always miss and
// writes are discarded.
type Nop struct{}

func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (Nop) Delete(context.Context, string) error { return nil }

func (Nop) Ping(context.Context) error { return nil }

func (Nop) SetWindowStatus(context.Context, uuid.UUID, int, models.WindowStatus, time.Duration) error {
	return nil
}

func (Nop) GetWindowStatus(context.Context, uuid.UUID, int) (models.WindowStatus, bool, error) {
	return "", false, nil
}

func (Nop) AddRunCounter(context.Context, uuid.UUID, models.WindowStatus, int64, time.Duration) (int64, error) {
	return 0, nil
}

func (Nop) RunCounters(context.Context, uuid.UUID) (map[models.WindowStatus]int64, error) {
	return map[models.WindowStatus]int64{}, nil
}

// IncrWithExpiry returns 0 so callers enforcing limits never trip.
func (Nop) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) { return 0, nil }

var (
	_ Cache = Nop{}
	_ Cache = (*RedisCache)(nil)
)
