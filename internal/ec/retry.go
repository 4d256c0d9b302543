package ec

import "time"

// RetryPolicy bounds a recovery operation to a fixed number of attempts
// with a constant backoff between them.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Do runs op until it succeeds or MaxAttempts is reached and returns the
// last error. A MaxAttempts below 1 is treated as a single attempt.
func (p RetryPolicy) Do(op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && p.Backoff > 0 {
			time.Sleep(p.Backoff)
		}
		if err = op(); err == nil {
			return nil
		}
	}
	return err
}
