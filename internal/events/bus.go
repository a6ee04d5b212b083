package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Handler consumes one event. Errors are logged; delivery is not retried.
type Handler func(ctx context.Context, ev Event) error

// Bus publishes approval events fire-and-forget and fans them out to handlers.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *zap.Logger

	mu       sync.RWMutex
	handlers map[Kind][]Handler
	all      []Handler

	cancel context.CancelFunc
	done   chan struct{}
}

// NewBus builds a bus on an in-process gochannel pub/sub.
func NewBus(logger *zap.Logger) *Bus {
	logger = logger.Named("events")
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            1000,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		NewZapAdapter(logger),
	)
	return newBus(pubSub, pubSub, logger)
}

func newBus(pub message.Publisher, sub message.Subscriber, logger *zap.Logger) *Bus {
	return &Bus{
		publisher:  pub,
		subscriber: sub,
		logger:     logger,
		handlers:   make(map[Kind][]Handler),
	}
}

// NewLifecycleBus is the fx constructor: the bus starts consuming on app start
// and drains on stop.
func NewLifecycleBus(lc fx.Lifecycle, logger *zap.Logger) *Bus {
	bus := NewBus(logger)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return bus.Start()
		},
		OnStop: func(ctx context.Context) error {
			return bus.Close()
		},
	})
	return bus
}

// Handle registers h for events of the given kinds.
func (b *Bus) Handle(h Handler, kinds ...Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range kinds {
		b.handlers[k] = append(b.handlers[k], h)
	}
}

// HandleAll registers h for every event.
func (b *Bus) HandleAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Emit publishes ev. Failures are logged, never returned.
func (b *Bus) Emit(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = watermill.NewULID()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("marshal event", zap.String("request_id", ev.RequestID), zap.Error(err))
		return
	}

	msg := message.NewMessage(ev.ID, payload)
	msg.Metadata.Set(kindMetadataKey, string(ev.Kind))
	if err := b.publisher.Publish(Topic, msg); err != nil {
		b.logger.Error("publish event",
			zap.String("request_id", ev.RequestID),
			zap.String("event", string(ev.Kind)),
			zap.Error(err),
		)
	}
}

// Start subscribes to the topic and dispatches in a background goroutine.
func (b *Bus) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	messages, err := b.subscriber.Subscribe(ctx, Topic)
	if err != nil {
		cancel()
		return err
	}
	b.cancel = cancel
	b.done = make(chan struct{})

	go func() {
		defer close(b.done)
		for msg := range messages {
			b.dispatch(ctx, msg)
			msg.Ack()
		}
	}()
	return nil
}

func (b *Bus) dispatch(ctx context.Context, msg *message.Message) {
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		b.logger.Error("decode event", zap.String("message_uuid", msg.UUID), zap.Error(err))
		return
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.all)+len(b.handlers[ev.Kind]))
	handlers = append(handlers, b.all...)
	handlers = append(handlers, b.handlers[ev.Kind]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			b.logger.Warn("event handler failed",
				zap.String("request_id", ev.RequestID),
				zap.String("event", string(ev.Kind)),
				zap.Error(err),
			)
		}
	}
}

// Close stops consumption and closes the pub/sub.
func (b *Bus) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	err := b.publisher.Close()
	if b.done != nil {
		<-b.done
	}
	if any(b.subscriber) != any(b.publisher) {
		if cerr := b.subscriber.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
