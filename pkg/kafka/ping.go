package kafka

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
)

// Ping returns a probe that succeeds when any configured broker accepts a
// connection.
func Ping(cfg config.KafkaConfig) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		for _, broker := range cfg.Brokers {
			conn, err := kafka.DialContext(ctx, "tcp", broker)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			return conn.Close()
		}
		if len(errs) == 0 {
			return errors.New("no brokers configured")
		}
		return errors.Join(errs...)
	}
}
