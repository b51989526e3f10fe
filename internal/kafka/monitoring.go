package kafka

import (
	"context"

	"github.com/Shopify/sarama"
	"github.com/flexprice/invoicer/internal/config"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/logger"
)

// ConsumerLag is how far a consumer group trails a topic
type ConsumerLag struct {
	Topic         string
	ConsumerGroup string
	TotalLag      int64
	PartitionLags map[int32]int64
}

// MonitoringService reads consumer group offsets from the brokers
type MonitoringService struct {
	config *config.Configuration
	logger *logger.Logger
}

func NewMonitoringService(cfg *config.Configuration, log *logger.Logger) *MonitoringService {
	return &MonitoringService{
		config: cfg,
		logger: log,
	}
}

// partitionLag returns the messages not yet committed by the group. A
// negative committed offset means the group has not committed yet.
func partitionLag(latest, committed int64) int64 {
	lag := latest
	if committed >= 0 {
		lag = latest - committed
	}
	if lag < 0 {
		return 0
	}
	return lag
}

// GetConsumerLag calculates the lag of consumerGroup on topic
func (m *MonitoringService) GetConsumerLag(ctx context.Context, topic string, consumerGroup string) (*ConsumerLag, error) {
	saramaConfig := GetSaramaConfig(m.config)

	admin, err := sarama.NewClusterAdmin(m.config.Kafka.Brokers, saramaConfig)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to create kafka admin client").
			Mark(ierr.ErrSystem)
	}
	defer admin.Close()

	client, err := sarama.NewClient(m.config.Kafka.Brokers, saramaConfig)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to create kafka client").
			Mark(ierr.ErrSystem)
	}
	defer client.Close()

	partitions, err := client.Partitions(topic)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Failed to get partitions for topic %s", topic).
			Mark(ierr.ErrSystem)
	}

	offsets, err := admin.ListConsumerGroupOffsets(consumerGroup, map[string][]int32{
		topic: partitions,
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list consumer group offsets").
			Mark(ierr.ErrSystem)
	}

	lag := &ConsumerLag{
		Topic:         topic,
		ConsumerGroup: consumerGroup,
		PartitionLags: make(map[int32]int64),
	}

	for _, partition := range partitions {
		latest, err := client.GetOffset(topic, partition, sarama.OffsetNewest)
		if err != nil {
			m.logger.Warnw("failed to get latest offset for partition",
				"error", err,
				"topic", topic,
				"partition", partition)
			continue
		}

		committed := int64(-1)
		if block := offsets.GetBlock(topic, partition); block != nil {
			committed = block.Offset
		}

		pl := partitionLag(latest, committed)
		lag.PartitionLags[partition] = pl
		lag.TotalLag += pl
	}

	m.logger.Debugw("consumer lag calculated",
		"topic", topic,
		"consumer_group", consumerGroup,
		"total_lag", lag.TotalLag,
		"partitions", len(partitions))

	return lag, nil
}
