package common

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"

	"github.com/ahrav/dropscan/pkg/common/logger"
)

// ConnectKafkaWithRetry attempts to create a sync producer with exponential backoff.
// It will retry failed connection attempts for up to maxElapsed, starting with 5 second
// intervals. This helps handle temporary network issues or Kafka cluster
// unavailability during startup.
func ConnectKafkaWithRetry(
	ctx context.Context,
	log *logger.Logger,
	brokers []string,
	cfg *sarama.Config,
	maxElapsed time.Duration,
) (sarama.SyncProducer, error) {
	var producer sarama.SyncProducer

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = maxElapsed
	expBackoff.InitialInterval = 5 * time.Second

	operation := func() error {
		var err error
		producer, err = sarama.NewSyncProducer(brokers, cfg)
		if err != nil {
			log.Warn(ctx, "failed to connect to Kafka, will retry", "brokers", brokers, "error", err)
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka after retries: %w", err)
	}

	return producer, nil
}
