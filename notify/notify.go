// Package notify delivers circuit breaker alerts.
package notify

import (
	"context"
	"errors"

	"github.com/rustyeddy/tradeguard/circuit"
	"go.uber.org/zap"
)

// Log writes alerts to a logger. It never fails.
type Log struct {
	log *zap.Logger
}

var _ circuit.Notifier = (*Log)(nil)

func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log.Named("alert")}
}

func (n *Log) Notify(_ context.Context, channel, message string) error {
	n.log.Warn(message, zap.String("channel", channel))
	return nil
}

// Multi fans an alert out to every notifier. All of them are tried; the
// errors are joined.
type Multi []circuit.Notifier

func (m Multi) Notify(ctx context.Context, channel, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, channel, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
