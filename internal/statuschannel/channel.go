package statuschannel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Defaults for the channel's recognized options
const (
	DefaultReconnectDelay       = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultPingInterval         = 30 * time.Second

	defaultTokenTimeout = 10 * time.Second
)

// ErrMaxAttemptsExceeded is recorded as the terminal error once automatic
// reconnection has exhausted its budget. Only a manual Reconnect clears it.
var ErrMaxAttemptsExceeded = errors.New("max reconnect attempts exceeded")

// Phase is the connection phase of a channel
type Phase string

const (
	// PhaseIdle means no connection exists and none is being attempted
	PhaseIdle Phase = "idle"

	// PhaseConnecting covers both the initial attempt and reconnect waits
	PhaseConnecting Phase = "connecting"

	// PhaseOpen means the transport is established
	PhaseOpen Phase = "open"

	// PhaseClosed means the channel stopped with a recorded error and will
	// take no further automatic action
	PhaseClosed Phase = "closed"
)

// Options configures a Channel. Zero values fall back to the package
// defaults.
type Options struct {
	// ReconnectDelay is the fixed wait before each reconnect attempt
	ReconnectDelay time.Duration

	// MaxReconnectAttempts bounds consecutive automatic reconnects
	MaxReconnectAttempts int

	// PingInterval is how often a liveness probe is sent while open
	PingInterval time.Duration

	// TokenTimeout bounds the credential fetch before each attempt
	TokenTimeout time.Duration

	// OnMessage, when set, is invoked for each update or error message
	// received in delivery order. It is called without the channel lock held.
	OnMessage func(StatusMessage)
}

func (o Options) withDefaults() Options {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.TokenTimeout <= 0 {
		o.TokenTimeout = defaultTokenTimeout
	}
	return o
}

// Health is a point-in-time snapshot of the channel state
type Health struct {
	Phase             Phase
	Connected         bool
	Connecting        bool
	ReconnectAttempts int
	LastError         error
	LastMessage       *StatusMessage
}

// Processing reports whether the last message shows the project still being
// worked on
func (h Health) Processing() bool {
	return h.LastMessage.Processing()
}

// Completed reports whether the last message shows the project finished
// successfully
func (h Health) Completed() bool {
	return h.LastMessage.Completed()
}

// Failed reports whether the last message shows the project failed
func (h Health) Failed() bool {
	return h.LastMessage.Failed()
}

// Channel maintains a best-effort live connection to the backend status
// stream for one project, transparently reconnecting on unexpected drops.
//
// A channel is owned by a single logical subscriber. Open, Close, Reconnect
// and Health are safe to call from that subscriber's goroutine while
// transport callbacks run in the background; all state transitions are
// serialized on one mutex. Failures never propagate as panics or returned
// errors from the public methods — they surface only through Health.
type Channel struct {
	opts    Options
	dialer  Dialer
	tokens  TokenSource
	baseURL string
	log     *zap.SugaredLogger

	mu             sync.Mutex
	gen            uint64
	projectID      string
	phase          Phase
	conn           Conn
	attempts       int
	lastMsg        *StatusMessage
	lastErr        error
	manualClose    bool
	reconnectTimer *time.Timer
	pingStop       chan struct{}
}

// New creates a channel against the given backend base URL.
// A nil dialer selects the production websocket dialer; a nil logger
// disables logging.
func New(baseURL string, tokens TokenSource, dialer Dialer, log *zap.SugaredLogger, opts Options) *Channel {
	if dialer == nil {
		dialer = &WebsocketDialer{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Channel{
		opts:    opts.withDefaults(),
		dialer:  dialer,
		tokens:  tokens,
		baseURL: baseURL,
		log:     log,
		phase:   PhaseIdle,
	}
}

// Open begins connecting the channel to the status stream for projectID and
// returns immediately; the connection completes asynchronously and progress
// is reported through Health. Calling Open while a connection for the same
// project is already connecting or open is a no-op. An empty project id
// never connects.
//
// Opening a different project id tears down the previous subscription first,
// resetting the attempt counter and the last message.
func (c *Channel) Open(projectID string) {
	if projectID == "" {
		return
	}

	c.mu.Lock()
	if c.projectID == projectID && (c.phase == PhaseConnecting || c.phase == PhaseOpen) {
		c.mu.Unlock()
		return
	}

	if c.projectID != "" && c.projectID != projectID {
		c.teardownLocked()
		c.attempts = 0
		c.lastMsg = nil
	}

	c.gen++
	gen := c.gen
	c.projectID = projectID
	c.manualClose = false
	c.phase = PhaseConnecting
	c.lastErr = nil
	c.mu.Unlock()

	go c.connect(gen, projectID)
}

// Close tears down the current subscription: it cancels any pending
// reconnect and liveness timers and closes the transport if open. It is
// idempotent, and after Close no automatic reconnect fires until Open is
// called again.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.manualClose = true
	c.gen++
	c.teardownLocked()
	c.phase = PhaseIdle
}

// Reconnect closes any current connection and starts over against the same
// project with the attempt counter reset to zero
func (c *Channel) Reconnect() {
	c.mu.Lock()
	projectID := c.projectID
	c.manualClose = true
	c.gen++
	c.teardownLocked()
	c.attempts = 0
	c.lastErr = nil
	c.phase = PhaseIdle
	c.mu.Unlock()

	if projectID != "" {
		c.Open(projectID)
	}
}

// Health returns a snapshot of the connection state, the last received
// message, and the last recorded error
func (c *Channel) Health() Health {
	c.mu.Lock()
	defer c.mu.Unlock()

	health := Health{
		Phase:             c.phase,
		Connected:         c.phase == PhaseOpen,
		Connecting:        c.phase == PhaseConnecting,
		ReconnectAttempts: c.attempts,
		LastError:         c.lastErr,
	}

	if c.lastMsg != nil {
		msg := *c.lastMsg
		health.LastMessage = &msg
	}

	return health
}

// ProjectID returns the project the channel is currently bound to
func (c *Channel) ProjectID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectID
}

// connect fetches a fresh credential and dials the stream. It runs outside
// the lock; gen guards against acting on a subscription that was closed or
// replaced while the attempt was in flight.
func (c *Channel) connect(gen uint64, projectID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.TokenTimeout)
	defer cancel()

	token, err := c.tokens.StreamToken(ctx, projectID)
	if err != nil {
		// Credential failures are terminal for this open; no reconnect is
		// scheduled until the caller opens or reconnects again.
		c.log.Errorw("Failed to fetch stream token", "projectId", projectID, "error", err)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen {
			return
		}
		c.phase = PhaseClosed
		c.lastErr = fmt.Errorf("fetch stream token: %w", err)
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.manualClose {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	conn, err := c.dialer.DialContext(ctx, StreamURL(c.baseURL, projectID, token))
	if err != nil {
		// A failed dial behaves like an unexpected close so it shares the
		// reconnect budget.
		c.log.Warnw("Status stream dial failed", "projectId", projectID, "error", err)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen || c.manualClose {
			return
		}
		c.lastErr = fmt.Errorf("dial status stream: %w", err)
		c.scheduleReconnectLocked(gen, projectID)
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.manualClose {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}

	c.conn = conn
	c.phase = PhaseOpen
	c.attempts = 0
	c.lastErr = nil
	stop := make(chan struct{})
	c.pingStop = stop
	c.mu.Unlock()

	c.log.Infow("Status stream open", "projectId", projectID)

	go c.pingLoop(conn, stop)
	go c.readLoop(gen, conn, projectID)
}

// readLoop delivers inbound frames until the transport reports an error,
// then hands off to the close handler
func (c *Channel) readLoop(gen uint64, conn Conn, projectID string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, projectID, err)
			return
		}

		msg, perr := ParseMessage(data)
		if perr != nil {
			c.log.Warnw("Discarding malformed status frame", "projectId", projectID, "error", perr)
			continue
		}

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.lastMsg = msg
		if msg.Type == MessageTypeError {
			c.lastErr = fmt.Errorf("backend error: %s", msg.Error)
		}
		notify := c.opts.OnMessage
		c.mu.Unlock()

		if notify != nil && msg.Type != MessageTypePong {
			notify(*msg)
		}
	}
}

// pingLoop sends a liveness probe each interval while the connection is up.
// Writes on a closed transport fail and end the loop; teardown ends it via
// the stop channel.
func (c *Channel) pingLoop(conn Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, pingFrame); err != nil {
				return
			}
		}
	}
}

// handleClose runs the reconnect decision after the transport drops
func (c *Channel) handleClose(gen uint64, projectID string, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return
	}

	c.stopPingLocked()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}

	if c.manualClose {
		c.phase = PhaseIdle
		return
	}

	c.log.Warnw("Status stream closed unexpectedly", "projectId", projectID, "error", cause)
	c.scheduleReconnectLocked(gen, projectID)
}

// scheduleReconnectLocked increments the attempt counter and arms the
// reconnect timer, or records the terminal error once the budget is spent.
// Callers must hold the lock.
func (c *Channel) scheduleReconnectLocked(gen uint64, projectID string) {
	if c.attempts >= c.opts.MaxReconnectAttempts {
		c.log.Errorw("Giving up on status stream",
			"projectId", projectID,
			"attempts", c.attempts)
		c.phase = PhaseClosed
		c.lastErr = ErrMaxAttemptsExceeded
		return
	}

	c.attempts++
	c.phase = PhaseConnecting
	c.log.Infow("Scheduling status stream reconnect",
		"projectId", projectID,
		"attempt", c.attempts,
		"delay", c.opts.ReconnectDelay)

	c.reconnectTimer = time.AfterFunc(c.opts.ReconnectDelay, func() {
		c.mu.Lock()
		stale := c.gen != gen || c.manualClose
		c.mu.Unlock()
		if stale {
			return
		}
		c.connect(gen, projectID)
	})
}

func (c *Channel) teardownLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.stopPingLocked()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Channel) stopPingLocked() {
	if c.pingStop != nil {
		close(c.pingStop)
		c.pingStop = nil
	}
}
