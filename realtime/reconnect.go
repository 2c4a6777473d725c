package realtime

import (
	"context"
	"fmt"
	"time"
)

// State is the connection lifecycle state. Transitions are validated so that
// a misuse (closing twice, connecting while connected) fails loudly instead
// of corrupting the connection.
type State int

const (
	StateUnknown State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// TransitionTo validates the transition and returns the new state.
func (s State) TransitionTo(newState State) (State, error) {
	switch s {
	case StateConnecting:
		switch newState {
		case StateConnected, StateDisconnecting, StateDisconnected:
			return newState, nil
		}
	case StateConnected:
		switch newState {
		case StateDisconnecting, StateDisconnected:
			return newState, nil
		}
	case StateDisconnecting:
		if newState == StateDisconnected {
			return newState, nil
		}
	case StateDisconnected:
		// Closing an already-dropped client must still succeed so that its
		// heartbeat and reconnect loops get torn down.
		switch newState {
		case StateConnecting, StateDisconnecting, StateDisconnected:
			return newState, nil
		}
	}
	return StateUnknown, fmt.Errorf("invalid state transition from %v to %v", s, newState)
}

func (c *Client) transitionTo(newState State) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	next, err := c.state.TransitionTo(newState)
	if err != nil {
		return err
	}
	c.state = next
	c.logger.Debug("connection state changed", "state", next.String())
	return nil
}

func (c *Client) mustTransitionTo(newState State) {
	if err := c.transitionTo(newState); err != nil {
		panic(fmt.Sprintf("BUG: %v", err))
	}
}

// onDisconnect is called by the read loop when the connection dies outside an
// intentional Close. It hands over to the reconnect loop when one is
// configured.
func (c *Client) onDisconnect() {
	if err := c.transitionTo(StateDisconnected); err != nil {
		// Already closing; nothing to supervise.
		return
	}
	if c.cfg.ReconnectInterval <= 0 {
		return
	}
	go c.reconnectLoop()
}

// reconnectLoop re-dials at the configured interval until a dial succeeds,
// then re-joins every channel that was joined before the drop. Notification
// consumers keep their channels across the reconnect; changes committed while
// the socket was down are lost, which is inherent to the protocol.
func (c *Client) reconnectLoop() {
	ticker := time.NewTicker(c.cfg.ReconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
		}

		if err := c.transitionTo(StateConnecting); err != nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
		err := c.dial(ctx)
		cancel()
		if err != nil {
			c.logger.Warn("reconnect attempt failed", "error", err)
			c.mustTransitionTo(StateDisconnected)
			continue
		}

		c.mustTransitionTo(StateConnected)
		c.rejoinChannels()
		return
	}
}

func (c *Client) rejoinChannels() {
	c.channelsLock.RLock()
	joined := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		if ch.isJoined() {
			joined = append(joined, ch)
		}
	}
	c.channelsLock.RUnlock()

	for _, ch := range joined {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
		err := ch.Join(ctx)
		cancel()
		if err != nil {
			c.logger.Error("rejoin failed", "topic", ch.Topic, "error", err)
		}
	}
}
