package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Topic builds the channel topic for changes on a table, e.g.
// Topic("public", "messages") == "realtime:public:messages". Use "*" as the
// table to subscribe to a whole schema.
func Topic(schema, table string) string {
	return fmt.Sprintf("realtime:%s:%s", schema, table)
}

// Channel is a subscription to one topic. Obtain one from Client.Channel,
// join it, then consume Notifications.
type Channel struct {
	Topic string

	client *Client
	id     uuid.UUID

	notifications chan Notification

	mu     sync.Mutex
	joined bool
}

// Channel registers a channel for the topic. Each topic can only have one
// channel per client.
func (c *Client) Channel(topic string) (*Channel, error) {
	c.channelsLock.Lock()
	defer c.channelsLock.Unlock()

	if _, ok := c.channels[topic]; ok {
		return nil, fmt.Errorf("%w: %s", ErrTopicInUse, topic)
	}

	ch := &Channel{
		Topic:         topic,
		client:        c,
		id:            uuid.New(),
		notifications: make(chan Notification, 16),
	}
	c.channels[topic] = ch
	return ch, nil
}

// ID identifies this subscription across rejoins, e.g. in logs.
func (ch *Channel) ID() uuid.UUID { return ch.id }

// Notifications delivers the database changes for this topic. Each frame is
// dispatched on its own goroutine, so a slow consumer accumulates pending
// deliveries rather than blocking other topics, and ordering across frames is
// not guaranteed.
func (ch *Channel) Notifications() <-chan Notification {
	return ch.notifications
}

// Join subscribes the channel on the server. When a user token was set via
// SetAuth it is included so row level security applies from the first event.
func (ch *Channel) Join(ctx context.Context) error {
	payload := map[string]string{}
	ch.client.channelsLock.RLock()
	if tok := ch.client.accessToken; tok != "" {
		payload["access_token"] = tok
	}
	ch.client.channelsLock.RUnlock()

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	r, err := ch.client.send(ctx, Message{Topic: ch.Topic, Event: eventJoin, Payload: body})
	if err != nil {
		return err
	}
	if !r.ok() {
		return fmt.Errorf("%w: %s: %s", ErrJoinRejected, ch.Topic, r.Response)
	}

	ch.setJoined(true)
	ch.client.logger.Info("channel joined", "topic", ch.Topic, "channel_id", ch.id)
	return nil
}

// Leave unsubscribes the channel on the server and releases the topic so a
// new channel may be registered for it.
func (ch *Channel) Leave(ctx context.Context) error {
	r, err := ch.client.send(ctx, Message{Topic: ch.Topic, Event: eventLeave, Payload: json.RawMessage("{}")})
	if err != nil {
		return err
	}
	if !r.ok() {
		return fmt.Errorf("realtime: leave %s: %s", ch.Topic, r.Response)
	}

	ch.setJoined(false)

	ch.client.channelsLock.Lock()
	delete(ch.client.channels, ch.Topic)
	ch.client.channelsLock.Unlock()
	return nil
}

func (ch *Channel) deliver(n Notification) {
	ch.notifications <- n
}

func (ch *Channel) setJoined(v bool) {
	ch.mu.Lock()
	ch.joined = v
	ch.mu.Unlock()
}

func (ch *Channel) isJoined() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.joined
}
