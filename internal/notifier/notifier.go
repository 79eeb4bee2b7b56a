// Package notifier
package notifier

import (
	"context"
	"time"
)

// Notifier interface for sending notifications (e.g., Telegram, email).
type Notifier interface {
	Send(ctx context.Context, msg string) error
}

// SendWithRetry retries Send with exponential backoff, starting at delay.
func SendWithRetry(ctx context.Context, n Notifier, msg string, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = n.Send(ctx, msg); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
