package session

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/TienVM2004/mai-live/internal/types"
)

const (
	defaultMaxRetries = 2
	defaultRetryDelay = 3 * time.Second

	handshakeMaxClients        = 4
	handshakeMaxConnectionTime = 6000
)

// ClientConfig controls the transport channel.
type ClientConfig struct {
	Host   string
	Port   int
	Name   string // requested speaker name
	Model  string
	UseVAD bool

	// MaxRetries is the number of silent automatic reconnect attempts after
	// a failure; the next consecutive failure is surfaced as terminal.
	MaxRetries int
	RetryDelay time.Duration
}

// handshake is the control message sent once per connection attempt.
type handshake struct {
	UID               string `json:"uid"`
	Name              string `json:"name"`
	Language          string `json:"language"`
	Task              string `json:"task"`
	Model             string `json:"model"`
	UseVAD            bool   `json:"use_vad"`
	MaxClients        int    `json:"max_clients"`
	MaxConnectionTime int    `json:"max_connection_time"`
}

type disconnectNotice struct {
	Type string `json:"type"`
	UID  string `json:"uid"`
}

// Client owns the persistent websocket connection to the transcription
// server. It sends audio frames and the handshake, receives JSON control and
// data events, and exposes the connection status state machine.
type Client struct {
	cfg ClientConfig

	mu         sync.Mutex
	conn       *websocket.Conn
	uid        string
	status     types.ConnectionStatus
	failures   int
	retryTimer *time.Timer
	closed     bool

	writeMu sync.Mutex

	onStatus func(types.StatusUpdate)
	onEvent  func(ServerEvent)
}

// NewClient creates a transport channel. Connect must be called to open it.
func NewClient(cfg ClientConfig) *Client {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &Client{
		cfg:    cfg,
		status: types.StatusDisconnected,
	}
}

// OnStatus registers the connection status observer. Must be set before
// Connect. The callback runs synchronously with the transition.
func (c *Client) OnStatus(fn func(types.StatusUpdate)) {
	c.onStatus = fn
}

// OnEvent registers the decoded-event observer for data events that passed
// the session identity check.
func (c *Client) OnEvent(fn func(ServerEvent)) {
	c.onEvent = fn
}

// Status returns the current connection status.
func (c *Client) Status() types.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// UID returns the identity of the current connection attempt.
func (c *Client) UID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uid
}

// Connect opens the channel. A manual call resets the retry budget, so a
// session stuck in a terminal error can always be retried externally.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.failures = 0
	c.closed = false
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.mu.Unlock()

	return c.dial(ctx)
}

func (c *Client) dial(ctx context.Context) error {
	c.setStatus(types.StatusUpdate{Status: types.StatusConnecting})

	target := c.serverURL()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		c.connectionFailed(ctx, fmt.Errorf("dial %s: %w", target, err))
		return err
	}

	uid := uuid.NewString()
	c.mu.Lock()
	c.conn = conn
	c.uid = uid
	c.mu.Unlock()

	hs := handshake{
		UID:               uid,
		Name:              c.cfg.Name,
		Language:          "en",
		Task:              "transcribe",
		Model:             c.cfg.Model,
		UseVAD:            c.cfg.UseVAD,
		MaxClients:        handshakeMaxClients,
		MaxConnectionTime: handshakeMaxConnectionTime,
	}
	c.writeMu.Lock()
	err = conn.WriteJSON(hs)
	c.writeMu.Unlock()
	if err != nil {
		_ = conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.connectionFailed(ctx, fmt.Errorf("send handshake: %w", err))
		return err
	}

	go c.readLoop(ctx, conn)
	return nil
}

// serverURL builds the connection target; plain ws for loopback hosts, wss
// otherwise.
func (c *Client) serverURL() string {
	scheme := "wss"
	if isLoopbackHost(c.cfg.Host) {
		scheme = "ws"
	}
	return scheme + "://" + net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// connectionFailed implements the retry policy: bounded silent reconnects
// with a fixed delay, then a terminal error that requires a manual Connect.
func (c *Client) connectionFailed(ctx context.Context, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.failures++
	n := c.failures
	retry := n <= c.cfg.MaxRetries
	if retry {
		c.retryTimer = time.AfterFunc(c.cfg.RetryDelay, func() {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed || ctx.Err() != nil {
				return
			}
			_ = c.dial(ctx)
		})
	}
	c.mu.Unlock()

	if retry {
		slog.Warn("connection failed, retrying", "attempt", n, "error", err)
		c.setStatus(types.StatusUpdate{Status: types.StatusError, Message: err.Error()})
		return
	}

	slog.Error("connection failed, retry budget exhausted", "attempts", n, "error", err)
	c.setStatus(types.StatusUpdate{Status: types.StatusError, Message: err.Error(), Terminal: true})
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			_ = conn.Close()

			if closed {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.setStatus(types.StatusUpdate{Status: types.StatusDisconnected})
				return
			}
			c.connectionFailed(ctx, fmt.Errorf("read: %w", err))
			return
		}

		// Binary frames from the server carry no meaning for this client.
		if msgType != websocket.TextMessage {
			continue
		}
		c.handleMessage(ctx, conn, data)
	}
}

func (c *Client) handleMessage(ctx context.Context, conn *websocket.Conn, data []byte) {
	ev := DecodeServerEvent(data)

	if m, ok := ev.(MalformedEvent); ok {
		slog.Warn("dropping malformed server message", "reason", m.Reason)
		return
	}

	// Messages addressed to another session identity are stale or duplicated
	// deliveries; drop them without side effects.
	c.mu.Lock()
	uid := c.uid
	c.mu.Unlock()
	if id := ev.SessionUID(); id != "" && id != uid {
		return
	}

	switch ev := ev.(type) {
	case ReadyEvent:
		c.mu.Lock()
		c.failures = 0
		c.mu.Unlock()
		slog.Info("server ready", "backend", ev.Backend)
		c.setStatus(types.StatusUpdate{Status: types.StatusConnected})
		c.emitEvent(ev)
	case StatusEvent:
		switch ev.Status {
		case statusWait:
			c.setStatus(types.StatusUpdate{
				Status:      types.StatusWaiting,
				Message:     ev.Message,
				WaitMinutes: ev.WaitMinutes,
			})
		case statusError:
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			_ = conn.Close()
			c.connectionFailed(ctx, fmt.Errorf("server error: %s", ev.Message))
		case statusWarning:
			slog.Warn("server warning", "message", ev.Message)
		default:
			slog.Warn("unknown status notice", "status", ev.Status, "message", ev.Message)
		}
		c.emitEvent(ev)
	case DisconnectEvent:
		c.mu.Lock()
		c.closed = true
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()
		c.setStatus(types.StatusUpdate{Status: types.StatusDisconnected})
	default:
		c.emitEvent(ev)
	}
}

func (c *Client) emitEvent(ev ServerEvent) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

func (c *Client) setStatus(update types.StatusUpdate) {
	c.mu.Lock()
	c.status = update.Status
	c.mu.Unlock()

	if c.onStatus != nil {
		c.onStatus(update)
	}
}

// SendAudio transmits one frame of raw float32 samples. It reports false and
// performs no partial send when the socket is not open; audio is a real-time
// stream, so the dropped frame is not buffered or retried.
func (c *Client) SendAudio(frame []float32) bool {
	c.mu.Lock()
	conn := c.conn
	status := c.status
	c.mu.Unlock()

	if conn == nil || status != types.StatusConnected {
		return false
	}

	c.writeMu.Lock()
	err := conn.WriteMessage(websocket.BinaryMessage, encodeFrame(frame))
	c.writeMu.Unlock()
	if err != nil {
		slog.Debug("audio frame dropped", "error", err)
		return false
	}
	return true
}

// encodeFrame serializes samples as little-endian IEEE 754 float32.
func encodeFrame(frame []float32) []byte {
	buf := make([]byte, len(frame)*4)
	for i, sample := range frame {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(sample))
	}
	return buf
}

// Disconnect closes the channel. If the socket is open a graceful disconnect
// notice is sent best-effort first. Safe to call in any state.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closed = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	conn := c.conn
	uid := c.uid
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteJSON(disconnectNotice{Type: "disconnect", UID: uid})
		c.writeMu.Unlock()
		_ = conn.Close()
	}

	c.setStatus(types.StatusUpdate{Status: types.StatusDisconnected})
}
