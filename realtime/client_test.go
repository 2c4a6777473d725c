package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, s *phxServer, mutate func(*Config)) *Client {
	t.Helper()

	cfg := Config{
		URL:     s.URL(),
		APIKey:  "anon-key",
		Timeout: 2 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	c := NewClient(cfg)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c
}

func TestConnectRequiresConfig(t *testing.T) {
	err := NewClient(Config{}).Connect(context.Background())
	require.Error(t, err)
}

func TestJoinAndReceiveChanges(t *testing.T) {
	s := newPhxServer(t)
	c := newTestClient(t, s, nil)

	ch, err := c.Channel(Topic("public", "messages"))
	require.NoError(t, err)
	require.NoError(t, ch.Join(context.Background()))

	s.pushChange(ch.Topic, ActionInsert, map[string]any{"id": float64(1), "body": "hello"})

	select {
	case n := <-ch.Notifications():
		assert.Equal(t, ActionInsert, n.Action)
		assert.Equal(t, "realtime:public:messages", n.Topic)
		assert.Equal(t, "public", n.Schema)
		assert.Equal(t, "messages", n.Table)
		assert.Equal(t, float64(1), n.Record["id"])
		assert.Equal(t, 2024, n.CommitTimestamp.Year())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestDeleteCarriesOldRecord(t *testing.T) {
	s := newPhxServer(t)
	c := newTestClient(t, s, nil)

	ch, err := c.Channel(Topic("public", "messages"))
	require.NoError(t, err)
	require.NoError(t, ch.Join(context.Background()))

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	s.write(conn, Message{
		Topic:   ch.Topic,
		Event:   string(ActionDelete),
		Payload: []byte(`{"type":"DELETE","schema":"public","table":"messages","old_record":{"id":9},"commit_timestamp":"2024-06-01T12:00:00Z"}`),
	})

	select {
	case n := <-ch.Notifications():
		assert.Equal(t, ActionDelete, n.Action)
		assert.Empty(t, n.Record)
		assert.Equal(t, float64(9), n.OldRecord["id"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestJoinRejected(t *testing.T) {
	s := newPhxServer(t)
	s.rejectJoin = true
	c := newTestClient(t, s, nil)

	ch, err := c.Channel(Topic("public", "private_stuff"))
	require.NoError(t, err)

	err = ch.Join(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJoinRejected))
}

func TestJoinTimesOutWithoutReply(t *testing.T) {
	s := newPhxServer(t)
	s.muteJoin = true
	c := newTestClient(t, s, func(cfg *Config) {
		cfg.Timeout = 100 * time.Millisecond
	})

	ch, err := c.Channel(Topic("public", "messages"))
	require.NoError(t, err)

	err = ch.Join(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestDuplicateTopic(t *testing.T) {
	s := newPhxServer(t)
	c := newTestClient(t, s, nil)

	_, err := c.Channel("realtime:public:messages")
	require.NoError(t, err)

	_, err = c.Channel("realtime:public:messages")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTopicInUse))
}

func TestLeaveReleasesTopic(t *testing.T) {
	s := newPhxServer(t)
	c := newTestClient(t, s, nil)

	ch, err := c.Channel("realtime:public:messages")
	require.NoError(t, err)
	require.NoError(t, ch.Join(context.Background()))
	require.NoError(t, ch.Leave(context.Background()))

	_, err = c.Channel("realtime:public:messages")
	require.NoError(t, err)
}

func TestHeartbeat(t *testing.T) {
	s := newPhxServer(t)
	newTestClient(t, s, func(cfg *Config) {
		cfg.HeartbeatInterval = 50 * time.Millisecond
	})

	select {
	case hb := <-s.heartbeats:
		assert.Equal(t, topicHeartbeat, hb.Topic)
		assert.Equal(t, eventHeartbeat, hb.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat within deadline")
	}
}

func TestSetAuthPushesTokenToJoinedChannels(t *testing.T) {
	s := newPhxServer(t)
	c := newTestClient(t, s, nil)

	ch, err := c.Channel("realtime:public:messages")
	require.NoError(t, err)
	require.NoError(t, ch.Join(context.Background()))

	require.NoError(t, c.SetAuth(context.Background(), "user-jwt"))

	select {
	case msg := <-s.authEvents:
		assert.Equal(t, ch.Topic, msg.Topic)
		assert.Contains(t, string(msg.Payload), "user-jwt")
	case <-time.After(2 * time.Second):
		t.Fatal("no access_token event within deadline")
	}
}

func TestJoinIncludesTokenSetBeforehand(t *testing.T) {
	s := newPhxServer(t)
	c := newTestClient(t, s, nil)

	require.NoError(t, c.SetAuth(context.Background(), "user-jwt"))

	ch, err := c.Channel("realtime:public:messages")
	require.NoError(t, err)
	require.NoError(t, ch.Join(context.Background()))

	join := <-s.joins
	assert.Contains(t, string(join.Payload), "user-jwt")
}

func TestCloseThenJoinFails(t *testing.T) {
	s := newPhxServer(t)
	c := newTestClient(t, s, nil)

	ch, err := c.Channel("realtime:public:messages")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))
	assert.Equal(t, StateDisconnected, c.State())

	err = ch.Join(context.Background())
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestCloseAfterDroppedConnection(t *testing.T) {
	s := newPhxServer(t)
	c := newTestClient(t, s, nil)

	ch, err := c.Channel(Topic("public", "messages"))
	require.NoError(t, err)
	require.NoError(t, ch.Join(context.Background()))

	s.dropConnection()
	require.Eventually(t, func() bool { return c.State() == StateDisconnected },
		2*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))
	assert.Equal(t, StateDisconnected, c.State())

	// The close signal must have fired so the background loops exit.
	err = ch.Join(context.Background())
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestConnectAfterCloseFails(t *testing.T) {
	s := newPhxServer(t)
	c := newTestClient(t, s, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrClosed))
	assert.Equal(t, 1, s.connCount())
}

func TestRepeatedReadErrorsDropConnection(t *testing.T) {
	s := newPhxServer(t)
	c := newTestClient(t, s, nil)

	for i := 0; i < maxConsecutiveReadFailures; i++ {
		s.pushRaw("not json")
	}

	require.Eventually(t, func() bool { return c.State() == StateDisconnected },
		2*time.Second, 20*time.Millisecond)
}

func TestReconnectRejoinsChannels(t *testing.T) {
	s := newPhxServer(t)
	c := newTestClient(t, s, func(cfg *Config) {
		cfg.ReconnectInterval = 50 * time.Millisecond
	})

	ch, err := c.Channel(Topic("public", "messages"))
	require.NoError(t, err)
	require.NoError(t, ch.Join(context.Background()))
	<-s.joins

	s.dropConnection()

	// The client re-dials and re-joins on its own.
	select {
	case <-s.joins:
	case <-time.After(5 * time.Second):
		t.Fatal("no rejoin after dropped connection")
	}
	assert.GreaterOrEqual(t, s.connCount(), 2)

	require.Eventually(t, func() bool { return c.State() == StateConnected },
		2*time.Second, 20*time.Millisecond)

	s.pushChange(ch.Topic, ActionUpdate, map[string]any{"id": float64(2)})
	select {
	case n := <-ch.Notifications():
		assert.Equal(t, ActionUpdate, n.Action)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification after reconnect")
	}
}

func TestStateTransitions(t *testing.T) {
	valid := []struct{ from, to State }{
		{StateDisconnected, StateConnecting},
		{StateConnecting, StateConnected},
		{StateConnecting, StateDisconnecting},
		{StateConnecting, StateDisconnected},
		{StateConnected, StateDisconnecting},
		{StateConnected, StateDisconnected},
		{StateDisconnecting, StateDisconnected},
		{StateDisconnected, StateDisconnecting},
		{StateDisconnected, StateDisconnected},
	}
	for _, tc := range valid {
		got, err := tc.from.TransitionTo(tc.to)
		require.NoError(t, err, "%v -> %v", tc.from, tc.to)
		assert.Equal(t, tc.to, got)
	}

	invalid := []struct{ from, to State }{
		{StateDisconnected, StateConnected},
		{StateConnected, StateConnecting},
		{StateDisconnecting, StateConnecting},
		{StateDisconnecting, StateConnected},
	}
	for _, tc := range invalid {
		_, err := tc.from.TransitionTo(tc.to)
		require.Error(t, err, "%v -> %v", tc.from, tc.to)
	}
}
