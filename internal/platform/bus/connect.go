package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ConnectWithRetry calls connect until it succeeds, retrying with exponential backoff
// starting at initial. Exhausting retries returns an error wrapping ErrBusUnavailable.
func ConnectWithRetry(ctx context.Context, retries int, initial time.Duration, connect func(context.Context) error) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = initial
	expo.MaxElapsedTime = 0

	var policy backoff.BackOff = expo
	if retries >= 0 {
		policy = backoff.WithMaxRetries(expo, uint64(retries))
	}

	err := backoff.Retry(func() error {
		return connect(ctx)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBusUnavailable, err)
	}
	return nil
}
