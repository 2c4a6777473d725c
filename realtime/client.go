// Package realtime subscribes to live database changes over a websocket.
//
// The service speaks the Phoenix channel protocol: the client joins one topic
// per table (or schema) and receives INSERT/UPDATE/DELETE notifications until
// it leaves. A heartbeat keeps the socket alive, and an optional reconnect
// loop re-dials and re-joins every channel after a dropped connection.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/supa-community/supa.go/pkg/logger"
)

var (
	ErrNotConnected = errors.New("realtime: not connected")
	ErrClosed       = errors.New("realtime: connection closed")
	ErrTimeout      = errors.New("realtime: timeout waiting for reply")
	ErrRefInUse     = errors.New("realtime: reply ref already in use")
	ErrTopicInUse   = errors.New("realtime: topic already has a channel")
	ErrJoinRejected = errors.New("realtime: join rejected")
)

const (
	// DefaultTimeout bounds the wait for a phx_reply after a send.
	DefaultTimeout = 10 * time.Second
	// DefaultHeartbeatInterval matches the Phoenix server's expected cadence.
	DefaultHeartbeatInterval = 30 * time.Second

	closeMessageCode = 1000

	// maxConsecutiveReadFailures bounds non-fatal read errors before the
	// connection is treated as lost.
	maxConsecutiveReadFailures = 3
)

// DefaultDialer is the gorilla dialer used unless Config.Dialer overrides it.
// It is the default gorilla dialer with compression enabled.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
}

// Config configures a realtime Client.
type Config struct {
	// URL is the realtime endpoint, e.g. "wss://<project>.supabase.co/realtime/v1".
	URL string
	// APIKey is sent as a query parameter on the websocket handshake.
	APIKey string

	// HeartbeatInterval and Timeout default to the package constants when zero.
	HeartbeatInterval time.Duration
	Timeout           time.Duration

	// ReconnectInterval enables automatic reconnection when greater than zero:
	// after the socket drops, the client re-dials at this interval until it
	// succeeds, then re-joins every joined channel.
	ReconnectInterval time.Duration

	Dialer *gorilla.Dialer
	Logger logger.Logger
}

type Client struct {
	cfg    Config
	logger logger.Logger

	conn     *gorilla.Conn
	connLock sync.Mutex

	ref atomic.Uint64

	replyChannels map[string]chan Message
	replyLock     sync.RWMutex

	channels     map[string]*Channel
	channelsLock sync.RWMutex

	// accessToken is the user JWT propagated to joined channels, guarded by
	// channelsLock together with the channels it applies to.
	accessToken string

	state   State
	stateMu sync.Mutex

	// closeCh signals intentional shutdown to the read, heartbeat and
	// reconnect loops.
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewClient builds a realtime client. Call Connect before joining channels.
func NewClient(cfg Config) *Client {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = DefaultDialer
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop{}
	}
	return &Client{
		cfg:           cfg,
		logger:        cfg.Logger,
		replyChannels: make(map[string]chan Message),
		channels:      make(map[string]*Channel),
		state:         StateDisconnected,
		closeCh:       make(chan struct{}),
	}
}

// Connect dials the realtime endpoint and starts the read and heartbeat
// loops. The initial dial failing is returned to the caller; the reconnect
// loop only takes over for connections lost after a successful Connect.
// A closed client cannot be connected again; build a new one.
func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.URL == "" || c.cfg.APIKey == "" {
		return fmt.Errorf("realtime: endpoint URL and API key must be set")
	}

	select {
	case <-c.closeCh:
		return ErrClosed
	default:
	}

	if err := c.transitionTo(StateConnecting); err != nil {
		return err
	}

	if err := c.dial(ctx); err != nil {
		c.mustTransitionTo(StateDisconnected)
		return err
	}

	c.mustTransitionTo(StateConnected)

	go c.heartbeatLoop()
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/websocket?apikey=%s&vsn=%s",
		c.cfg.URL, url.QueryEscape(c.cfg.APIKey), protocolVersion)

	conn, res, err := c.cfg.Dialer.DialContext(ctx, endpoint, nil)
	if res != nil && res.Body != nil {
		// Gorilla hands back the handshake response on failure too.
		defer res.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("realtime: dial: %w", err)
	}

	c.connLock.Lock()
	c.conn = conn
	c.connLock.Unlock()

	go c.readLoop(conn)
	return nil
}

// State reports the current connection state.
func (c *Client) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// Close sends a close frame and tears down the connection. The context bounds
// the close-frame write; the underlying connection is closed either way.
func (c *Client) Close(ctx context.Context) error {
	if err := c.transitionTo(StateDisconnecting); err != nil {
		return fmt.Errorf("realtime: close already in progress: %w", err)
	}
	defer c.mustTransitionTo(StateDisconnected)

	c.closeOnce.Do(func() { close(c.closeCh) })

	c.connLock.Lock()
	conn := c.conn
	c.connLock.Unlock()
	if conn == nil {
		return nil
	}

	// Try to tell the server we are going away, but never block shutdown on
	// an unreliable network.
	writeErr := make(chan error, 1)
	go func() {
		writeErr <- conn.WriteMessage(gorilla.CloseMessage,
			gorilla.FormatCloseMessage(closeMessageCode, ""))
	}()
	select {
	case err := <-writeErr:
		if err != nil {
			c.logger.Error("failed to write close message", "error", err)
		}
	case <-ctx.Done():
	}

	return conn.Close()
}

// SetAuth stores a user access token and pushes it to every joined channel,
// so that row level security applies to subsequent notifications.
func (c *Client) SetAuth(ctx context.Context, token string) error {
	c.channelsLock.Lock()
	c.accessToken = token
	joined := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		if ch.isJoined() {
			joined = append(joined, ch)
		}
	}
	c.channelsLock.Unlock()

	for _, ch := range joined {
		payload, err := json.Marshal(map[string]string{"access_token": token})
		if err != nil {
			return err
		}
		if err := c.push(Message{Topic: ch.Topic, Event: eventAccessToken, Payload: payload}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) nextRef() string {
	return strconv.FormatUint(c.ref.Add(1), 10)
}

func (c *Client) createReplyChannel(ref string) (chan Message, error) {
	c.replyLock.Lock()
	defer c.replyLock.Unlock()
	if _, ok := c.replyChannels[ref]; ok {
		return nil, fmt.Errorf("%w: %s", ErrRefInUse, ref)
	}
	ch := make(chan Message, 1)
	c.replyChannels[ref] = ch
	return ch, nil
}

func (c *Client) removeReplyChannel(ref string) {
	c.replyLock.Lock()
	defer c.replyLock.Unlock()
	delete(c.replyChannels, ref)
}

func (c *Client) getReplyChannel(ref string) (chan Message, bool) {
	c.replyLock.RLock()
	defer c.replyLock.RUnlock()
	ch, ok := c.replyChannels[ref]
	return ch, ok
}

// push writes a frame without waiting for a reply. The ref is assigned here
// when the caller left it empty.
func (c *Client) push(msg Message) error {
	if msg.Ref == "" {
		msg.Ref = c.nextRef()
	}

	c.connLock.Lock()
	defer c.connLock.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(msg)
}

// send writes a frame and waits for the matching phx_reply.
func (c *Client) send(ctx context.Context, msg Message) (*reply, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	select {
	case <-c.closeCh:
		return nil, ErrClosed
	default:
	}

	msg.Ref = c.nextRef()
	replyCh, err := c.createReplyChannel(msg.Ref)
	if err != nil {
		return nil, err
	}
	defer c.removeReplyChannel(msg.Ref)

	if err := c.push(msg); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	case <-c.closeCh:
		return nil, ErrClosed
	case res := <-replyCh:
		var r reply
		if err := json.Unmarshal(res.Payload, &r); err != nil {
			return nil, fmt.Errorf("realtime: decoding reply: %w", err)
		}
		return &r, nil
	}
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
			msg := Message{Topic: topicHeartbeat, Event: eventHeartbeat, Payload: json.RawMessage("{}")}
			if err := c.push(msg); err != nil {
				c.logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

// readLoop consumes frames from one connection. It exits when the connection
// dies; a replacement loop is started for the new connection on reconnect.
func (c *Client) readLoop(conn *gorilla.Conn) {
	failures := 0
	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			failures++
			if c.handleReadError(err, failures) {
				return
			}
			continue
		}
		failures = 0
		go c.route(msg)
	}
}

// handleReadError reports whether the read loop should exit. failures is the
// count of consecutive read errors: gorilla keeps returning the same error
// once a connection is broken, so repeated failures are treated as a lost
// connection rather than spun on.
func (c *Client) handleReadError(err error, failures int) bool {
	select {
	case <-c.closeCh:
		return true
	default:
	}

	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF) ||
		gorilla.IsUnexpectedCloseError(err) {
		c.logger.Warn("connection lost", "error", err)
		c.onDisconnect()
		return true
	}

	if failures >= maxConsecutiveReadFailures {
		c.logger.Error("giving up after repeated read errors", "error", err, "failures", failures)
		c.onDisconnect()
		return true
	}

	c.logger.Error("read error", "error", err)
	return false
}

func (c *Client) route(msg Message) {
	switch {
	case msg.Event == eventReply:
		replyCh, ok := c.getReplyChannel(msg.Ref)
		if !ok {
			// Heartbeat acks arrive here; anything else is unexpected.
			c.logger.Debug("reply with no waiter", "ref", msg.Ref, "topic", msg.Topic)
			return
		}
		replyCh <- msg

	case isChangeEvent(msg.Event):
		var n Notification
		if err := json.Unmarshal(msg.Payload, &n); err != nil {
			c.logger.Error("malformed change payload", "topic", msg.Topic, "error", err)
			return
		}
		n.Topic = msg.Topic

		c.channelsLock.RLock()
		ch, ok := c.channels[msg.Topic]
		c.channelsLock.RUnlock()
		if !ok {
			c.logger.Error("change for unknown topic", "topic", msg.Topic)
			return
		}
		ch.deliver(n)

	case msg.Event == eventError, msg.Event == eventClose:
		c.logger.Warn("channel event", "event", msg.Event, "topic", msg.Topic)
	}
}
