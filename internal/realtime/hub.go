package realtime

import (
	"context"
	"sync"
	"time"

	apperrors "jobboard-realtime/internal/common/errors"
	"jobboard-realtime/internal/common/logger"
	"jobboard-realtime/internal/common/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Message is one event relayed to a subscriber, payload untouched.
type Message struct {
	Channel Channel
	Payload string
}

// Hub owns the per-channel handler registry. Every client stream gets its
// own Subscription backed by a dedicated Redis pub/sub connection; the hub
// records which subscriptions are live on which channel and unwinds them all
// on Close.
type Hub struct {
	client   *redis.Client
	logger   logger.Logger
	channels []Channel
	buffer   int

	mu       sync.Mutex
	handlers map[Channel]map[string]*Subscription
	closed   bool

	closeOnce sync.Once
}

// HubOption customizes a Hub.
type HubOption func(*Hub)

// WithBuffer sets the per-subscription message buffer.
func WithBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithChannels overrides the channel set each subscription joins.
func WithChannels(channels ...Channel) HubOption {
	return func(h *Hub) {
		if len(channels) > 0 {
			h.channels = append([]Channel(nil), channels...)
		}
	}
}

func NewHub(client *redis.Client, log logger.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		client:   client,
		logger:   log.WithFields(map[string]interface{}{"component": "hub"}),
		channels: AllChannels,
		buffer:   64,
		handlers: make(map[Channel]map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(h)
	}
	for _, ch := range h.channels {
		h.handlers[ch] = make(map[string]*Subscription)
	}
	return h
}

// Subscription is one stream's binding to the hub. It is owned by the
// goroutine serving the stream and must be released with Hub.Unsubscribe.
type Subscription struct {
	ID string

	pubsub    *redis.PubSub
	out       chan Message
	stop      chan struct{}
	relayDone chan struct{}
	release   sync.Once
}

// Messages yields relayed events in per-channel publish order. It is closed
// when the subscription is released or the transport connection drops.
func (s *Subscription) Messages() <-chan Message {
	return s.out
}

// Subscribe opens a pub/sub connection on every hub channel, waits until the
// server has confirmed each one, then registers the subscription.
func (h *Hub) Subscribe(ctx context.Context) (*Subscription, error) {
	if h.isClosed() {
		return nil, apperrors.NewHubClosedError()
	}

	names := channelNames(h.channels)
	ps := h.client.Subscribe(ctx, names...)

	pending, err := awaitConfirmations(ctx, ps, len(names))
	if err != nil {
		_ = ps.Close()
		return nil, apperrors.NewSubscribeFailedError(err)
	}

	sub := &Subscription{
		ID:        uuid.NewString(),
		pubsub:    ps,
		out:       make(chan Message, h.buffer),
		stop:      make(chan struct{}),
		relayDone: make(chan struct{}),
	}

	if !h.register(sub) {
		_ = ps.Close()
		return nil, apperrors.NewHubClosedError()
	}

	go sub.relay(ps.Channel(redis.WithChannelSize(h.buffer)), pending)

	h.logger.Debug("subscription opened", map[string]interface{}{
		"subscriptionId": sub.ID,
		"channels":       names,
	})
	return sub, nil
}

// awaitConfirmations reads replies until want subscribe acknowledgements
// arrived. Messages that slip in between are kept for the relay.
func awaitConfirmations(ctx context.Context, ps *redis.PubSub, want int) ([]Message, error) {
	var pending []Message
	confirmed := 0
	for confirmed < want {
		reply, err := ps.Receive(ctx)
		if err != nil {
			return nil, err
		}
		switch m := reply.(type) {
		case *redis.Subscription:
			if m.Kind == "subscribe" {
				confirmed++
			}
		case *redis.Message:
			pending = append(pending, Message{Channel: Channel(m.Channel), Payload: m.Payload})
		}
	}
	return pending, nil
}

func (s *Subscription) relay(in <-chan *redis.Message, pending []Message) {
	defer close(s.relayDone)
	defer close(s.out)

	for _, msg := range pending {
		select {
		case s.out <- msg:
		case <-s.stop:
			return
		}
	}

	for {
		select {
		case <-s.stop:
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- Message{Channel: Channel(m.Channel), Payload: m.Payload}:
			case <-s.stop:
				return
			}
		}
	}
}

// Unsubscribe tears a subscription down: the handler leaves the registry and
// its relay stops first, then the channel subscriptions are released and the
// connection closed. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.release.Do(func() {
		h.deregister(sub)

		close(sub.stop)
		<-sub.relayDone

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sub.pubsub.Unsubscribe(ctx, channelNames(h.channels)...); err != nil {
			h.logger.Debug("unsubscribe failed", map[string]interface{}{
				"subscriptionId": sub.ID,
				"error":          err,
			})
		}
		if err := sub.pubsub.Close(); err != nil {
			h.logger.Debug("pubsub close failed", map[string]interface{}{
				"subscriptionId": sub.ID,
				"error":          err,
			})
		}

		h.logger.Debug("subscription closed", map[string]interface{}{"subscriptionId": sub.ID})
	})
}

// HandlerCount returns the number of live handlers registered on ch.
func (h *Hub) HandlerCount(ch Channel) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handlers[ch])
}

// Channels returns the channel set every subscription joins.
func (h *Hub) Channels() []Channel {
	return append([]Channel(nil), h.channels...)
}

// Close rejects new subscriptions and releases every live one.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		live := make(map[string]*Subscription)
		for _, set := range h.handlers {
			for id, sub := range set {
				live[id] = sub
			}
		}
		h.mu.Unlock()

		for _, sub := range live {
			h.Unsubscribe(sub)
		}
		h.logger.Info("hub closed", map[string]interface{}{"released": len(live)})
	})
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Hub) register(sub *Subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	for _, ch := range h.channels {
		h.handlers[ch][sub.ID] = sub
		metrics.ChannelHandlers.WithLabelValues(string(ch)).Set(float64(len(h.handlers[ch])))
	}
	return true
}

func (h *Hub) deregister(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.channels {
		delete(h.handlers[ch], sub.ID)
		metrics.ChannelHandlers.WithLabelValues(string(ch)).Set(float64(len(h.handlers[ch])))
	}
}
