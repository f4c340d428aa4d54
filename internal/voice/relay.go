package voice

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haasonsaas/frontdesk/internal/observability"
)

const (
	relayMaxPayloadBytes = 1 << 20
	relaySendBuffer      = 32
	relayPongWait        = 60 * time.Second
	relayPingPeriod      = (relayPongWait * 9) / 10
	relayWriteWait       = 10 * time.Second
)

// ErrConnectionClosed is returned by Send after the relay connection ended.
var ErrConnectionClosed = errors.New("voice: relay connection closed")

// RelayOption customizes a RelayHandler.
type RelayOption func(*RelayHandler)

// WithRelayLogger sets the logger.
func WithRelayLogger(logger *observability.Logger) RelayOption {
	return func(h *RelayHandler) { h.logger = logger }
}

// WithRelayMetrics sets the metrics sink.
func WithRelayMetrics(metrics *observability.Metrics) RelayOption {
	return func(h *RelayHandler) { h.metrics = metrics }
}

// RelayHandler serves the relay websocket. Each connection carries one call;
// its events are handled in arrival order.
type RelayHandler struct {
	manager  *Manager
	logger   *observability.Logger
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

// NewRelayHandler creates the websocket endpoint for manager.
func NewRelayHandler(manager *Manager, opts ...RelayOption) *RelayHandler {
	h := &RelayHandler{
		manager: manager,
		logger:  observability.NopLogger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "relay upgrade failed", "error", err)
		return
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(observability.AddConnectionID(context.WithoutCancel(r.Context()), id))
	conn := &relayConn{
		handler: h,
		ws:      ws,
		send:    make(chan []byte, relaySendBuffer),
		ctx:     ctx,
		cancel:  cancel,
		id:      id,
	}
	conn.run()
}

type relayConn struct {
	handler *RelayHandler
	ws      *websocket.Conn
	send    chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
	id      string

	// callSID is set by setup and only touched by the read loop.
	callSID string
	done    sync.WaitGroup
}

func (c *relayConn) run() {
	log := c.handler.logger
	log.Debug(c.ctx, "relay connected")

	c.done.Add(1)
	go func() {
		defer c.done.Done()
		c.writeLoop()
	}()
	c.readLoop()

	c.cancel()
	c.done.Wait()
	_ = c.ws.Close()

	c.handler.manager.Disconnect(c.ctx, c.callSID)
	log.Debug(c.ctx, "relay disconnected", "call_sid", c.callSID)
}

func (c *relayConn) readLoop() {
	c.ws.SetReadLimit(relayMaxPayloadBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(relayPongWait)) //nolint:errcheck
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(relayPongWait))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.handler.logger.Warn(c.ctx, "relay read failed", "call_sid", c.callSID, "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.handle(data)
		_ = c.ws.SetReadDeadline(time.Now().Add(relayPongWait)) //nolint:errcheck
	}
}

func (c *relayConn) handle(data []byte) {
	h := c.handler
	ctx := c.ctx
	if c.callSID != "" {
		ctx = observability.AddCallSID(ctx, c.callSID)
	}

	event, err := DecodeEvent(data)
	if err != nil {
		var decodeErr *DecodeError
		switch {
		case errors.Is(err, ErrUnknownEvent):
			h.metrics.RecordRelayEvent("unknown")
			h.logger.Warn(ctx, "ignoring unexpected relay event", "error", err)
		case errors.As(err, &decodeErr):
			h.metrics.RecordRelayEvent("invalid")
			h.logger.Warn(ctx, "ignoring malformed relay frame", "code", decodeErr.Code, "error", decodeErr.Message)
		default:
			h.logger.Error(ctx, "relay frame not decoded", "error", err)
		}
		return
	}
	h.metrics.RecordRelayEvent(string(event.Type()))

	switch ev := event.(type) {
	case SetupEvent:
		if err := h.manager.Setup(ctx, ev); err != nil {
			h.logger.Error(ctx, "call setup failed", "call_sid", ev.CallSID, "error", err)
			return
		}
		if c.callSID != "" && c.callSID != ev.CallSID {
			h.manager.Disconnect(ctx, c.callSID)
		}
		c.callSID = ev.CallSID
	case PromptEvent:
		// Errors are logged and answered inside Prompt.
		_ = h.manager.Prompt(ctx, c.callSID, ev, c) //nolint:errcheck
	case InterruptEvent:
		h.manager.Interrupt(ctx, c.callSID, ev)
	}
}

func (c *relayConn) writeLoop() {
	ticker := time.NewTicker(relayPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.ws.SetWriteDeadline(time.Now().Add(relayWriteWait)) //nolint:errcheck
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")) //nolint:errcheck
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(relayWriteWait)) //nolint:errcheck
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.cancel()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(relayWriteWait)) //nolint:errcheck
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}

// Send queues d for the write loop.
func (c *relayConn) Send(ctx context.Context, d Directive) error {
	data, err := EncodeDirective(d)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
