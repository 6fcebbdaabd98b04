package gateway

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/552020/futura-alpha-icp-sub009/internal/platform"
	"github.com/552020/futura-alpha-icp-sub009/internal/secrets"
)

// Bootstrap is the init/upgrade glue. On first start it initializes the
// secret cell; on every later start it rotates, shifting the previous
// generation's key into the retained slot. Either way the
// skip-certification root is (re)applied to the certified-data slot.
func Bootstrap(log *zap.Logger, slot secrets.Slot, random platform.Random, clock platform.Clock, certifier platform.Certifier) (*secrets.Cell, error) {
	cell, fresh, err := secrets.Open(slot, random, clock, log)
	if err != nil {
		return nil, fmt.Errorf("opening secret cell: %w", err)
	}
	if !fresh {
		if _, err := cell.Rotate(random); err != nil {
			return nil, fmt.Errorf("rotating secret cell: %w", err)
		}
	}
	if err := certifier.SetCertifiedData(SkipCertificationRoot()); err != nil {
		return nil, fmt.Errorf("applying certified data: %w", err)
	}
	return cell, nil
}

// StartReseed replaces a deterministically seeded init key with host
// randomness in the background, retrying until it succeeds or the
// context ends. No-op when the key is already random.
func StartReseed(ctx context.Context, log *zap.Logger, cell *secrets.Cell, random platform.Random) {
	if !cell.Deterministic() {
		return
	}
	log.Warn("serving with a deterministic init key until reseed succeeds")
	go func() {
		policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
		if err := backoff.Retry(func() error { return cell.Reseed(random) }, policy); err != nil {
			log.Error("secret reseed abandoned, init key remains deterministic", zap.Error(err))
		}
	}()
}
