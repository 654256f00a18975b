package source

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// reconnectWithBackoff retries Open with exponential backoff starting at
// 500ms, capped at 30s, full jitter, up to s.ReconnectMax total elapsed
// time (no cap when ReconnectMax is zero). Implemented with backoff/v5's
// retry helper instead of a hand-rolled loop.
func (s *FrameSource) reconnectWithBackoff(ctx context.Context) error {
	if s.session != nil {
		_ = s.session.Close()
		s.session = nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 30 * time.Second
	policy.Multiplier = 2.0
	policy.RandomizationFactor = 1.0 // full jitter

	operation := func() (struct{}, error) {
		sess, err := s.opener(ctx, s.URL, s.Cred)
		if err != nil {
			if Fatal(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		s.session = sess
		s.seq = 0
		return struct{}{}, nil
	}

	opts := []backoff.RetryOption{backoff.WithBackOff(policy)}
	if s.ReconnectMax > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(s.ReconnectMax))
	}

	_, err := backoff.Retry(ctx, operation, opts...)
	return err
}
