package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skillsync/session-server/internal/metrics"
	redisclient "github.com/skillsync/session-server/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
	clientBufferSize  = 100
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client is one connected channel (an SSE stream or a WebSocket) of a user.
type Client struct {
	UserID string
	Events chan Event
	Done   chan struct{}
}

// Broker maps users to their connected channels. It is created at process
// start and closed at shutdown; losing it loses registrations only, never
// session state. With Redis configured, events published on any instance
// reach the channels held by every instance.
type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool // userID -> set of clients
	relays  map[string]context.CancelFunc
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		relays:  make(map[string]context.CancelFunc),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Subscribe registers a new channel for userID.
func (b *Broker) Subscribe(userID string) *Client {
	client := &Client{
		UserID: userID,
		Events: make(chan Event, clientBufferSize),
		Done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[userID] == nil {
		b.clients[userID] = make(map[*Client]bool)
		if b.redis != nil {
			relayCtx, relayCancel := context.WithCancel(b.ctx)
			b.relays[userID] = relayCancel
			go b.subscribeToRedis(relayCtx, userID)
		}
	}
	b.clients[userID][client] = true
	clientCount := len(b.clients[userID])
	b.mu.Unlock()

	metrics.ChannelOpened()
	log.Info().
		Str("userId", userID).
		Int("clientCount", clientCount).
		Msg("realtime channel registered")

	return client
}

// Unsubscribe removes the channel. A disconnect never changes session state.
func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	clients, ok := b.clients[client.UserID]
	if !ok || !clients[client] {
		return
	}

	delete(clients, client)
	close(client.Done)
	metrics.ChannelClosed()

	if len(clients) == 0 {
		delete(b.clients, client.UserID)
		if relayCancel, ok := b.relays[client.UserID]; ok {
			relayCancel()
			delete(b.relays, client.UserID)
		}
	}

	log.Info().
		Str("userId", client.UserID).
		Int("clientCount", len(clients)).
		Msg("realtime channel unregistered")
}

// Send is best-effort: users without channels simply miss the push and
// reconcile through the read queries.
func (b *Broker) Send(ctx context.Context, userID string, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("failed to marshal realtime payload")
		return
	}

	if err := b.Publish(ctx, userID, Event{Type: eventType, Data: data}); err != nil {
		log.Warn().Err(err).
			Str("userId", userID).
			Str("event", eventType).
			Msg("realtime publish failed, delivering locally")
		b.broadcast(userID, Event{Type: eventType, Data: data})
	}
}

func (b *Broker) Publish(ctx context.Context, userID string, event Event) error {
	if b.redis == nil {
		b.broadcast(userID, event)
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := redisclient.UserChannel(userID)
	return b.redis.Publish(ctx, channel, data).Err()
}

func (b *Broker) subscribeToRedis(ctx context.Context, userID string) {
	channel := redisclient.UserChannel(userID)
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("userId", userID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(userID, event)
		}
	}
}

func (b *Broker) broadcast(userID string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	clients := b.clients[userID]
	if len(clients) == 0 {
		metrics.RecordEvent(event.Type, false)
		return
	}

	for client := range clients {
		select {
		case client.Events <- event:
			metrics.RecordEvent(event.Type, true)
		default:
			metrics.RecordEvent(event.Type, false)
			log.Warn().
				Str("userId", userID).
				Str("event", event.Type).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
			metrics.ChannelClosed()
		}
	}
	b.clients = make(map[string]map[*Client]bool)
	b.relays = make(map[string]context.CancelFunc)
}

func (b *Broker) ClientCount(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[userID])
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}
