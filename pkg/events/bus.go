package events

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const topicPrefix = "chat."

func TopicForChat(id conversation.ChatID) string {
	return topicPrefix + id.String()
}

// Bus fans chat events out to the subscribers of each chat's topic, in
// publish order.
//
// Publishing waits until every subscriber has taken the event. Subscribers
// drop partial events they cannot buffer, so a slow stream reader does not
// hold up inference.
type Bus struct {
	pubSub    *gochannel.GoChannel
	publisher message.Publisher
	buffer    int

	mu             sync.Mutex
	sequenceNumber uint64
	closed         bool
}

type BusOption func(*busConfig)

type busConfig struct {
	logger watermill.LoggerAdapter
	buffer int
}

func WithLogger(logger watermill.LoggerAdapter) BusOption {
	return func(c *busConfig) {
		c.logger = logger
	}
}

func WithVerbose(verbose bool) BusOption {
	return func(c *busConfig) {
		if verbose {
			c.logger = NewWatermill(log.Logger)
		}
	}
}

// WithBuffer sets the per-subscriber channel buffer.
func WithBuffer(n int) BusOption {
	return func(c *busConfig) {
		c.buffer = n
	}
}

func NewBus(options ...BusOption) *Bus {
	cfg := &busConfig{
		logger: watermill.NopLogger{},
		buffer: 64,
	}
	for _, o := range options {
		o(cfg)
	}

	goPubSub := gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, cfg.logger)

	return &Bus{
		pubSub:    goPubSub,
		publisher: CorrelationPublisherDecorator{Publisher: goPubSub},
		buffer:    cfg.buffer,
	}
}

// Publish assigns the next sequence number to ev and sends it on its chat's
// topic.
func (b *Bus) Publish(ctx context.Context, ev *ChatEvent) error {
	if ev == nil {
		return errors.New("nil event")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("event bus is closed")
	}

	ev.Sequence = b.sequenceNumber
	b.sequenceNumber++

	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "could not encode chat event")
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("sequence_number", strconv.FormatUint(ev.Sequence, 10))
	msg.Metadata.Set("event_type", string(ev.Type))

	return b.publisher.Publish(TopicForChat(ev.ChatID), msg)
}

// PublishBlind publishes ev and only logs failures.
func (b *Bus) PublishBlind(ctx context.Context, ev *ChatEvent) {
	if err := b.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("chat", ev.ChatID.String()).Msg("failed to publish chat event")
	}
}

// Subscribe streams the events of one chat until ctx is done or the bus is
// closed.
func (b *Bus) Subscribe(ctx context.Context, chatID conversation.ChatID) (<-chan *ChatEvent, error) {
	messages, err := b.pubSub.Subscribe(ctx, TopicForChat(chatID))
	if err != nil {
		return nil, errors.Wrap(err, "could not subscribe to chat events")
	}

	out := make(chan *ChatEvent, b.buffer)
	go func() {
		defer close(out)
		for msg := range messages {
			msg.Ack()
			ev, err := NewEventFromJSON(msg.Payload)
			if err != nil {
				log.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping malformed chat event")
				continue
			}
			ev.CorrelationID = msg.Metadata.Get(correlationIDMetadataKey)

			if ev.Type == EventTypePartial {
				// drafts carry the accumulated text, the next one supersedes this
				select {
				case out <- ev:
				default:
					log.Trace().Str("chat", chatID.String()).Uint64("seq", ev.Sequence).Msg("subscriber busy, dropping draft")
				}
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	log.Debug().Msg("Closing event bus")
	return b.pubSub.Close()
}
