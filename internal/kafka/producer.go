package kafka

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/invoicer/internal/config"
	ierr "github.com/flexprice/invoicer/internal/errors"
)

type Producer struct {
	publisher message.Publisher
}

func NewProducer(cfg *config.Configuration) (*Producer, error) {
	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               cfg.Kafka.Brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: GetSaramaConfig(cfg),
		},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to create kafka producer").
			Mark(ierr.ErrSystem)
	}

	return &Producer{publisher: publisher}, nil
}

func (p *Producer) Publish(topic string, msgs ...*message.Message) error {
	return p.publisher.Publish(topic, msgs...)
}

func (p *Producer) Close() error {
	return p.publisher.Close()
}
