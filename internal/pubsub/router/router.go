package router

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/flexprice/invoicer/internal/config"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/logger"
	"github.com/flexprice/invoicer/internal/pubsub"
	"github.com/flexprice/invoicer/internal/sentry"
)

// Router manages all message routing
type Router struct {
	router *message.Router
	logger *logger.Logger
	sentry *sentry.Service
}

// NewRouter creates a router whose failed messages are retried with
// exponential backoff and then moved to "<topic>_dlq" on dlq.
func NewRouter(cfg *config.Configuration, logger *logger.Logger, sentry *sentry.Service, dlq pubsub.Publisher) (*Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, watermill.NopLogger{})
	if err != nil {
		return nil, err
	}

	poisonQueue, err := middleware.PoisonQueue(publisherAdapter{dlq}, cfg.BillRun.Topic+"_dlq")
	if err != nil {
		return nil, err
	}

	router.AddMiddleware(
		poisonQueue,
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:          int(cfg.BillRun.MaxRetries),
			InitialInterval:     cfg.BillRun.InitialInterval,
			MaxInterval:         cfg.BillRun.MaxInterval,
			Multiplier:          2,
			RandomizationFactor: 0.5,
			Logger:              watermill.NopLogger{},
			OnRetryHook: func(retryNum int, delay time.Duration) {
				logger.Infow("retrying message",
					"retry_number", retryNum,
					"max_retries", cfg.BillRun.MaxRetries,
					"delay", delay,
				)
			},
		}.Middleware,
	)

	return &Router{
		router: router,
		logger: logger,
		sentry: sentry,
	}, nil
}

// AddNoPublishHandler adds a handler that doesn't publish messages. Errors
// that cannot succeed on redelivery are reported and the message is acked.
func (r *Router) AddNoPublishHandler(
	handlerName string,
	topicName string,
	subscriber message.Subscriber,
	handlerFunc func(msg *message.Message) error,
	middlewares ...message.HandlerMiddleware,
) {
	handler := r.router.AddNoPublisherHandler(
		handlerName,
		topicName,
		subscriber,
		func(msg *message.Message) error {
			err := handlerFunc(msg)
			if err == nil {
				return nil
			}

			r.sentry.CaptureException(err)
			r.logger.Errorw("handler failed",
				"handler", handlerName,
				"error", err,
				"correlation_id", middleware.MessageCorrelationID(msg),
				"message_uuid", msg.UUID,
			)
			if !shouldRetry(r.logger, err) {
				r.logger.Warnw("dropping message",
					"handler", handlerName,
					"message_uuid", msg.UUID,
					"detail", ierr.NewErrorDetail(err),
				)
				return nil
			}
			return err
		},
	)

	for _, mw := range middlewares {
		handler.AddMiddleware(mw)
	}
}

// Run blocks until ctx is cancelled or Close is called
func (r *Router) Run(ctx context.Context) error {
	r.logger.Info("starting router")
	return r.router.Run(ctx)
}

// Running is closed once all handlers are subscribed
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

// Close gracefully shuts down the router
func (r *Router) Close() error {
	r.logger.Info("closing router")
	return r.router.Close()
}

// publisherAdapter lets a context aware publisher back watermill middleware
type publisherAdapter struct {
	pubsub.Publisher
}

func (p publisherAdapter) Publish(topic string, msgs ...*message.Message) error {
	return p.Publisher.Publish(context.Background(), topic, msgs...)
}
