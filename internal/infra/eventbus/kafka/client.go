package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/ahrav/dropscan/pkg/common"
	"github.com/ahrav/dropscan/pkg/common/logger"
)

// ClientConfig contains all configuration needed for Kafka producer setup.
type ClientConfig struct {
	Brokers  []string
	ClientID string
	// ConnectTimeout bounds how long startup keeps retrying an unreachable cluster.
	ConnectTimeout time.Duration
}

// NewProducerConfig returns the sarama configuration used for status publishing.
func NewProducerConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID

	// Producer settings
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner

	// Version should be consistent across all components
	config.Version = sarama.V3_6_0_0

	return config
}

// Connect creates a sync producer, retrying with backoff while the brokers are
// unreachable.
func Connect(ctx context.Context, cfg *ClientConfig, log *logger.Logger) (sarama.SyncProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return common.ConnectKafkaWithRetry(ctx, log, cfg.Brokers, NewProducerConfig(cfg.ClientID), timeout)
}
