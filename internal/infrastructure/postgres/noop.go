package postgres

import (
	"context"
	"time"

	"github.com/pixelbridge/conversion-bridge/internal/domain"
)

// Noop satisfies the repository interface when no database is configured.
// Deliveries still happen; only the dashboard loses its data.
type Noop struct{}

func (Noop) Insert(ctx context.Context, d domain.Delivery) error { return nil }

func (Noop) Stats(ctx context.Context, since time.Time) (domain.PairingStats, error) {
	return domain.PairingStats{}, nil
}
