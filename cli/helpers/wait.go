package helpers

import (
	"context"
	"fmt"
	"time"

	"github.com/compozy/modelstore/engine/core"
	"github.com/compozy/modelstore/engine/infra/postgres"
	"github.com/compozy/modelstore/pkg/logger"
	"github.com/sethvargo/go-retry"
)

const (
	waitBaseBackoff = 250 * time.Millisecond
	waitMaxBackoff  = 5 * time.Second
)

// ProbeFunc checks that a database accepts connections.
type ProbeFunc func(ctx context.Context, cfg *postgres.Config) error

// WaitForDatabase retries probe with capped exponential backoff until it
// succeeds, fails with a non-connection error, or maxWait elapses.
func WaitForDatabase(ctx context.Context, cfg *postgres.Config, maxWait time.Duration, probe ProbeFunc) error {
	if probe == nil {
		probe = postgres.Probe
	}
	log := logger.FromContext(ctx)
	backoff := retry.NewExponential(waitBaseBackoff)
	backoff = retry.WithCappedDuration(waitMaxBackoff, backoff)
	backoff = retry.WithMaxDuration(maxWait, backoff)
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := probe(ctx, cfg); err != nil {
			if core.IsConnection(err) {
				log.Debug("Database not reachable yet", "attempt", attempt, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("database not ready after %d attempts: %w", attempt, err)
	}
	log.Info("Database reachable", "attempts", attempt)
	return nil
}
