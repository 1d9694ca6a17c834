// Package notify delivers scanner alerts to people.
package notify

import (
	"context"
	"errors"
)

// Notifier delivers a plain-text message.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
