package controlplane

import (
	"context"
	"fmt"
	"sync"
	"time"

	"voicebridge/core"
	"voicebridge/protocol"

	"github.com/gorilla/websocket"
)

const (
	defaultHeartbeatInterval = 5 * time.Second
	defaultSendBufferSize    = 256
	writeTimeout             = 10 * time.Second
)

// ClientConfig configures the control plane WebSocket client.
type ClientConfig struct {
	ConnectURL        string
	ClientID          string
	Version           string
	HeartbeatInterval time.Duration
	Logger            *core.Logger

	// StatsFunc, when set, supplies the load counters attached to every
	// heartbeat.
	StatsFunc func() (activeCalls, queuedCalls, cacheEntries int)
}

// Client is the outbound WebSocket client that connects to a monitoring UI's
// control plane. It mirrors logs, health probes, and load heartbeats upward,
// and receives endpoint overrides and control commands back.
type Client struct {
	config ClientConfig
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	logger *core.Logger

	// Callbacks set by the embedding application.
	OnConfigUpdate func(update protocol.ConfigUpdatePayload)
	OnCancelAll    func(reason string)
	OnShutdown     func(reason string)

	sendCh    chan []byte
	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
}

// NewClient creates a new control plane client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = core.GetLogger()
	}
	return &Client{
		config: cfg,
		logger: cfg.Logger.With(map[string]interface{}{"component": "controlplane"}),
		sendCh: make(chan []byte, defaultSendBufferSize),
		done:   make(chan struct{}),
	}
}

// Connect dials the UI server WebSocket endpoint, sends the registration
// message, and starts the read/write/heartbeat loops. The provided context
// controls the client's lifetime — cancelling it will close the connection.
func (c *Client) Connect(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.logger.With(map[string]interface{}{"url": c.config.ConnectURL}).Info("connecting to control plane")

	conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, c.config.ConnectURL, nil)
	if err != nil {
		c.cancel()
		return fmt.Errorf("controlplane: dial %q: %w", c.config.ConnectURL, err)
	}
	c.conn = conn

	services := make([]string, 0, len(core.Services))
	for _, svc := range core.Services {
		services = append(services, string(svc))
	}
	reg := protocol.RegisterPayload{
		ClientID:  c.config.ClientID,
		Version:   c.config.Version,
		Services:  services,
		Timestamp: time.Now().UTC(),
	}
	if err := c.send(protocol.MsgRegister, reg); err != nil {
		conn.Close()
		c.cancel()
		return fmt.Errorf("controlplane: send register: %w", err)
	}

	c.logger.With(map[string]interface{}{"client_id": c.config.ClientID}).Info("registered with control plane")

	go c.readLoop()
	go c.writeLoop()
	go c.heartbeatLoop()

	return nil
}

// SendLog mirrors a structured log record to the UI.
func (c *Client) SendLog(level, msg string, attrs map[string]interface{}) {
	payload := protocol.LogPayload{
		ClientID: c.config.ClientID,
		Level:    level,
		Message:  msg,
		Attrs:    attrs,
		Time:     time.Now().UTC(),
	}
	c.enqueue(protocol.MsgLog, payload)
}

// SendStatus sends the results of the latest health probe cycle.
func (c *Client) SendStatus(services []protocol.ServiceHealth) {
	payload := protocol.StatusPayload{
		ClientID: c.config.ClientID,
		Services: services,
	}
	c.enqueue(protocol.MsgStatus, payload)
}

// Wait blocks until the connection drops or the context is cancelled.
func (c *Client) Wait() error {
	<-c.done
	return nil
}

// Close shuts down the client.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			c.conn.Close()
		}
		c.doneOnce.Do(func() { close(c.done) })
	})
}

func (c *Client) send(msgType protocol.MessageType, payload interface{}) error {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) enqueue(msgType protocol.MessageType, payload interface{}) {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		c.logger.With(map[string]interface{}{"error": err, "type": string(msgType)}).Warn("failed to marshal message, dropping")
		return
	}
	select {
	case c.sendCh <- data:
	default:
		// Buffer full — drop oldest and push new.
		select {
		case <-c.sendCh:
		default:
		}
		select {
		case c.sendCh <- data:
		default:
		}
	}
}

func (c *Client) readLoop() {
	defer func() {
		c.doneOnce.Do(func() { close(c.done) })
		c.cancel()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.With(map[string]interface{}{"error": err}).Warn("control plane connection lost")
			}
			return
		}

		msgType, payload, err := protocol.Unmarshal(data)
		if err != nil {
			c.logger.With(map[string]interface{}{"error": err}).Warn("invalid message from control plane")
			continue
		}

		switch msgType {
		case protocol.MsgConfigUpdate:
			if c.OnConfigUpdate != nil {
				p, err := protocol.UnmarshalPayload[protocol.ConfigUpdatePayload](payload)
				if err != nil {
					c.logger.With(map[string]interface{}{"error": err}).Warn("invalid config_update payload")
					continue
				}
				c.OnConfigUpdate(p)
			}

		case protocol.MsgCancelAll:
			p, _ := protocol.UnmarshalPayload[protocol.CancelAllPayload](payload)
			c.logger.With(map[string]interface{}{"reason": p.Reason}).Info("cancel_all requested")
			if c.OnCancelAll != nil {
				c.OnCancelAll(p.Reason)
			}

		case protocol.MsgShutdown:
			p, _ := protocol.UnmarshalPayload[protocol.ShutdownPayload](payload)
			reason := p.Reason
			if reason == "" {
				reason = "shutdown requested by control plane"
			}
			c.logger.With(map[string]interface{}{"reason": reason}).Info("shutdown requested")
			if c.OnShutdown != nil {
				c.OnShutdown(reason)
			}
			return

		default:
			c.logger.With(map[string]interface{}{"type": string(msgType)}).Warn("unknown message type from control plane")
		}
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case data := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.With(map[string]interface{}{"error": err}).Warn("write to control plane failed")
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hb := protocol.HeartbeatPayload{
				ClientID:  c.config.ClientID,
				Timestamp: time.Now().UTC(),
			}
			if c.config.StatsFunc != nil {
				hb.ActiveCalls, hb.QueuedCalls, hb.CacheEntries = c.config.StatsFunc()
			}
			c.enqueue(protocol.MsgHeartbeat, hb)
		case <-c.ctx.Done():
			return
		}
	}
}
