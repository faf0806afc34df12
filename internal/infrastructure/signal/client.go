package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"screenlink/internal/core/domain"
	"screenlink/internal/core/ports"
	"screenlink/internal/infrastructure/monitoring"
	"screenlink/pkg/retry"
)

// Options configures the signaling client.
type Options struct {
	URL               string
	Auth              Auth
	ConnectTimeout    time.Duration
	ReconnectInterval time.Duration
}

// Client maintains the websocket to the rendezvous server. It authenticates
// on connect, dispatches inbound events to registered handlers on a single
// loop, and reconnects indefinitely after a drop until Disconnect is called.
type Client struct {
	opts Options

	handlers map[string]ports.EventHandler

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool

	writeMu sync.Mutex

	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once

	metrics *monitoring.PrometheusCollector
	logger  *zap.SugaredLogger
}

// NewClient creates a signaling client. Register handlers with On before
// calling Connect.
func NewClient(opts Options, metrics *monitoring.PrometheusCollector, logger *zap.SugaredLogger) *Client {
	if opts.Auth.Type == "" {
		opts.Auth.Type = peerTypeAgent
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:       opts,
		handlers:   make(map[string]ports.EventHandler),
		lifeCtx:    ctx,
		lifeCancel: cancel,
		done:       make(chan struct{}),
		metrics:    metrics,
		logger:     logger,
	}
}

// On registers the handler for one event name. Not safe to call after
// Connect; the dispatch loop reads the map without locking.
func (c *Client) On(event string, handler ports.EventHandler) {
	c.handlers[event] = handler
}

// Connect dials the server, authenticates and starts the dispatch loop.
// Subsequent drops are handled internally; Connect only fails when the first
// attempt does.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.setConn(conn)
	go c.run(conn)

	c.logger.Infow("connected to signaling server", "url", c.opts.URL, "pc_id", c.opts.Auth.PCID)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial signaling server: %w", err)
	}

	env, err := newEnvelope(eventAuth, c.opts.Auth)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to encode auth payload: %w", err)
	}
	if err := conn.WriteJSON(env); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to send auth: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.opts.ConnectTimeout))
	var ack envelope
	if err := conn.ReadJSON(&ack); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: no ack within %s", domain.ErrConnectTimeout, c.opts.ConnectTimeout)
	}
	_ = conn.SetReadDeadline(time.Time{})

	if ack.Event != eventConnected {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: unexpected ack event %q", domain.ErrConnectTimeout, ack.Event)
	}
	return conn, nil
}

// run owns one connection at a time: it dispatches until the socket drops,
// then reconnects forever unless the client was closed.
func (c *Client) run(conn *websocket.Conn) {
	for {
		c.dispatch(conn)
		c.setConn(nil)

		select {
		case <-c.done:
			return
		default:
		}

		c.logger.Warnw("signaling connection lost, reconnecting",
			"interval", c.opts.ReconnectInterval,
		)

		var next *websocket.Conn
		err := retry.Do(c.lifeCtx, retry.Forever(c.opts.ReconnectInterval), func() error {
			c.metrics.Reconnect()
			dialed, err := c.dial(c.lifeCtx)
			if err != nil {
				return err
			}
			next = dialed
			return nil
		}, func(attempt int, err error) {
			c.logger.Warnw("reconnect attempt failed", "attempt", attempt, "error", err)
		})
		if err != nil {
			return
		}

		c.setConn(next)
		conn = next
		c.logger.Infow("reconnected to signaling server", "url", c.opts.URL)
	}
}

// dispatch reads envelopes until the connection fails. Handler errors are
// logged and the loop continues; one bad event never stalls signaling.
func (c *Client) dispatch(conn *websocket.Conn) {
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}

		handler, ok := c.handlers[env.Event]
		if !ok {
			c.logger.Debugw("unhandled signaling event", "event", env.Event)
			continue
		}
		if err := handler(c.lifeCtx, env.Data); err != nil {
			c.logger.Warnw("signaling handler failed", "event", env.Event, "error", err)
		}
	}
}

// Disconnect closes the connection and stops reconnecting. Idempotent.
func (c *Client) Disconnect() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.lifeCancel()

		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.connected = false
		c.mu.Unlock()

		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		}
		c.logger.Info("disconnected from signaling server")
	})
	return nil
}

// EmitOffer sends the local SDP offer for one viewer.
func (c *Client) EmitOffer(viewerID domain.ViewerID, sdp domain.SessionDescription) error {
	return c.emit(domain.EventOffer, offerPayload{ViewerID: viewerID, SDP: sdp})
}

// EmitICECandidate sends one locally gathered candidate for a viewer.
func (c *Client) EmitICECandidate(viewerID domain.ViewerID, candidate domain.ICECandidate) error {
	return c.emit(domain.EventICECandidate, candidatePayload{ViewerID: viewerID, Candidate: candidate})
}

func (c *Client) emit(event string, data interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return domain.ErrNotConnected
	}

	env, err := newEnvelope(event, data)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

// IsConnected reports whether the socket is currently established.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// WaitUntilDisconnected blocks until Disconnect is called or the context
// ends. The reconnect loop keeps transient drops invisible to the caller.
func (c *Client) WaitUntilDisconnected(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return nil
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.connected = conn != nil
	c.mu.Unlock()
}
