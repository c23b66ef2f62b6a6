package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and intervals for hardware communication.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultReadTimeout is the timeout for individual read operations.
	defaultReadTimeout = 30 * time.Second

	// defaultWriteTimeout is the timeout for command writes.
	defaultWriteTimeout = 5 * time.Second

	// defaultReconnectDelay is the initial delay between reconnection attempts.
	defaultReconnectDelay = 5 * time.Second

	// maxReconnectDelay is the maximum delay between reconnection attempts.
	maxReconnectDelay = 2 * time.Minute

	// maxLineLength bounds a single inbound line.
	maxLineLength = 512

	// lineQueueSize is the buffer size for the inbound line queue.
	lineQueueSize = 100
)

// Config holds hardware connection configuration.
type Config struct {
	// Connection is the serial bridge connection URL.
	// Supported formats:
	//   - "tcp://localhost:5331" (TCP)
	//   - "unix:///run/envsort/hw.sock" (Unix socket)
	Connection string

	// ConnectTimeout is the maximum time to wait for connection.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// ReadTimeout is the timeout for read operations.
	// Default: 30 seconds.
	ReadTimeout time.Duration

	// ReconnectDelay is the initial delay between reconnection attempts.
	// Default: 5 seconds.
	ReconnectDelay time.Duration
}

// Stats holds operational statistics.
type Stats struct {
	CommandsTx      uint64
	LinesRx         uint64
	LinesDropped    uint64 // Lines dropped due to full queue
	ErrorsTotal     uint64
	ReconnectsTotal uint64 // Successful reconnections
	LastActivity    time.Time
	Connected       bool
	Reconnecting    bool // True if currently attempting to reconnect
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Conn interface for testability.
// This allows mocking the hardware link in tests.
type Conn interface {
	SendCommand(ctx context.Context, cmd string) error
	SetOnLine(callback func(Line))
	IsConnected() bool
	Stats() Stats
	Close() error
}

// Ensure Client implements Conn.
var _ Conn = (*Client)(nil)

// Client provides the connection to the hardware controller.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - The line callback is invoked from a single worker goroutine, so
//     lines are delivered in arrival order.
//
// Auto-Reconnection:
//   - When the connection is lost, the client automatically attempts to
//     reconnect with exponential backoff starting at ReconnectDelay up
//     to maxReconnectDelay. Reconnection stops only when Close() is
//     called.
type Client struct {
	cfg    Config
	conn   net.Conn
	reader *bufio.Reader

	// Connection state
	connMu    sync.RWMutex
	connected bool

	// Reconnection state
	reconnecting   atomic.Bool
	reconnectCount atomic.Int32

	// Line handler callback
	onLine     func(Line)
	callbackMu sync.RWMutex

	// Inbound line queue (bounded, drop on overflow)
	lineQueue chan Line

	// Shutdown coordination (closeOnce prevents double-close panics)
	done *closeOnce
	wg   sync.WaitGroup

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	commandsTx      atomic.Uint64
	linesRx         atomic.Uint64
	linesDropped    atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64 // Unix timestamp
}

// Connect establishes the connection to the hardware controller.
//
// The connection URL determines the transport:
//   - "tcp://localhost:5331" → TCP socket
//   - "unix:///run/envsort/hw.sock" → Unix socket
//
// After connecting it starts a goroutine to receive incoming lines.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	// Apply defaults
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}

	network, address, err := parseConnectionURL(cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	connectCtx := ctx
	if connectCtx == nil {
		connectCtx = context.Background()
	}
	connectCtx, cancel := context.WithTimeout(connectCtx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(connectCtx, network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial failed: %w", ErrConnectionFailed, err)
	}

	client := &Client{
		cfg:       cfg,
		conn:      conn,
		reader:    bufio.NewReaderSize(conn, maxLineLength),
		done:      newCloseOnce(),
		lineQueue: make(chan Line, lineQueueSize),
	}
	client.lastActivity.Store(time.Now().Unix())

	client.connMu.Lock()
	client.connected = true
	client.connMu.Unlock()

	// Single callback worker preserves line ordering for the consumer.
	client.wg.Add(1)
	go client.callbackWorker()

	client.wg.Add(1)
	go client.receiveLoop()

	return client, nil
}

// parseConnectionURL parses a serial bridge URL into network and address.
func parseConnectionURL(connURL string) (network, address string, err error) {
	u, err := url.Parse(connURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "tcp":
		host := u.Host
		if host == "" {
			host = "localhost:5331"
		}
		return "tcp", host, nil
	case "unix":
		return "unix", u.Path, nil
	default:
		return "", "", fmt.Errorf("unsupported scheme %q (use tcp or unix)", u.Scheme)
	}
}

// receiveLoop continuously reads lines from the hardware controller.
// On connection loss it automatically attempts reconnection with
// exponential backoff.
func (c *Client) receiveLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			return
		default:
		}

		raw, err := c.readLine()
		if err != nil {
			if c.handleReadError(err) {
				if c.isClosed() {
					return // Shutdown requested, exit cleanly
				}

				if !c.reconnect() {
					return // Shutdown during reconnection, exit cleanly
				}

				continue
			}
			continue // Recoverable error, retry
		}

		if raw == "" {
			continue
		}

		c.handleLine(raw)
	}
}

// readLine reads a single newline-terminated line from the connection.
// Trailing CR/LF is stripped. An overlong line returns ErrLineTooLong,
// which is fatal and forces a reconnect.
func (c *Client) readLine() (string, error) {
	c.connMu.RLock()
	conn := c.conn
	reader := c.reader
	c.connMu.RUnlock()

	if conn == nil || reader == nil {
		return "", ErrNotConnected
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		c.logError("set read deadline failed", err)
		return "", fmt.Errorf("set deadline: %w", err)
	}

	raw, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			c.errorsTotal.Add(1)
			return "", ErrLineTooLong
		}
		return "", fmt.Errorf("read line: %w", err)
	}

	return strings.TrimRight(raw, "\r\n"), nil
}

// handleReadError processes a read error and returns true if the loop
// should stop and reconnect.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if c.isClosed() {
		return true // Clean shutdown
	}

	// An overlong line means the stream framing cannot be trusted.
	// Close the socket immediately and force a clean reconnect.
	if errors.Is(err, ErrLineTooLong) {
		c.logError("oversized line, closing connection to resync", err)
		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()
		if conn != nil {
			conn.Close()
		}
		c.handleDisconnect()
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false // Timeout is normal, continue
	}

	c.logError("read failed", err)
	c.errorsTotal.Add(1)
	c.handleDisconnect()
	return true
}

// handleLine parses an inbound line and queues it for the callback worker.
func (c *Client) handleLine(raw string) {
	c.linesRx.Add(1)
	c.lastActivity.Store(time.Now().Unix())

	line := ParseLine(raw)
	if line.Kind == LineUnknown {
		c.logInfo("unrecognised hardware line", "raw", raw)
	}

	c.callbackMu.RLock()
	hasCallback := c.onLine != nil
	c.callbackMu.RUnlock()

	if !hasCallback {
		return
	}

	select {
	case c.lineQueue <- line:
		// Queued successfully
	default:
		// Queue full, drop line to prevent memory exhaustion
		c.logError("line queue full, dropping line", nil)
		c.linesDropped.Add(1)
		c.errorsTotal.Add(1)
	}
}

// callbackWorker delivers queued lines to the registered callback.
func (c *Client) callbackWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			c.drainLineQueue()
			return
		case line := <-c.lineQueue:
			c.callbackMu.RLock()
			callback := c.onLine
			c.callbackMu.RUnlock()

			if callback != nil {
				func() {
					defer func() {
						if r := recover(); r != nil {
							c.logError("line callback panic", fmt.Errorf("%v", r))
						}
					}()
					callback(line)
				}()
			}
		}
	}
}

// handleDisconnect marks the connection as lost.
func (c *Client) handleDisconnect() {
	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.connMu.Unlock()

	if wasConnected {
		c.logInfo("hardware connection lost, will attempt reconnection")
	}
}

// reconnect attempts to re-establish the connection with exponential
// backoff. Returns true if reconnection succeeded, false if shutdown
// was signalled.
func (c *Client) reconnect() bool {
	// Prevent multiple concurrent reconnection attempts
	if !c.reconnecting.CompareAndSwap(false, true) {
		return c.waitForReconnection()
	}
	defer c.reconnecting.Store(false)

	network, address, err := parseConnectionURL(c.cfg.Connection)
	if err != nil {
		c.logError("reconnect: invalid connection URL", err)
		return false
	}

	backoff := c.cfg.ReconnectDelay
	if backoff == 0 {
		backoff = defaultReconnectDelay
	}

	for {
		if c.isClosed() {
			return false
		}

		attempt := c.reconnectCount.Add(1)
		c.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())

		c.closeOldConnection()

		conn, err := c.dialWithTimeout(network, address)
		if err != nil {
			backoff = c.handleReconnectFailure(err, backoff)
			if backoff == 0 {
				return false // Shutdown signalled
			}
			continue
		}

		c.connMu.Lock()
		c.conn = conn
		c.reader = bufio.NewReaderSize(conn, maxLineLength)
		c.connected = true
		c.connMu.Unlock()

		c.reconnectCount.Store(0)
		c.reconnectsTotal.Add(1)
		c.lastActivity.Store(time.Now().Unix())

		c.logInfo("reconnection successful", "total_reconnects", c.reconnectsTotal.Load())
		return true
	}
}

// waitForReconnection waits for another goroutine to complete reconnection.
func (c *Client) waitForReconnection() bool {
	for c.reconnecting.Load() && !c.isClosed() {
		time.Sleep(100 * time.Millisecond)
	}
	return !c.isClosed() && c.IsConnected()
}

// closeOldConnection closes the existing connection if any.
func (c *Client) closeOldConnection() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
	c.connMu.Unlock()
}

// dialWithTimeout attempts to dial the network address with timeout.
func (c *Client) dialWithTimeout(network, address string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s://%s: %w", network, address, err)
	}
	return conn, nil
}

// handleReconnectFailure handles a failed reconnection attempt.
// Returns the new backoff duration, or 0 if shutdown was signalled.
func (c *Client) handleReconnectFailure(err error, backoff time.Duration) time.Duration {
	c.logError("reconnect: dial failed", err)
	c.errorsTotal.Add(1)

	select {
	case <-c.done.Done():
		return 0 // Signal shutdown
	case <-time.After(backoff):
	}

	// Exponential backoff with cap
	newBackoff := time.Duration(float64(backoff) * 1.5)
	if newBackoff > maxReconnectDelay {
		newBackoff = maxReconnectDelay
	}
	return newBackoff
}

// drainLineQueue removes and discards any remaining queued lines.
// Called during shutdown to prevent goroutines blocking on send.
func (c *Client) drainLineQueue() {
	for {
		select {
		case <-c.lineQueue:
			// Discard item
		default:
			return // Queue is empty
		}
	}
}

// isClosed returns true if the client has been closed.
func (c *Client) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// Close gracefully closes the connection.
//
// It signals the receive loop to stop and closes the underlying network
// connection. Safe to call multiple times (uses sync.Once).
func (c *Client) Close() error {
	c.done.Close()

	c.connMu.Lock()
	c.connected = false
	conn := c.conn
	c.connMu.Unlock()

	// Close connection (this will unblock any pending reads)
	if conn != nil {
		conn.Close()
	}

	c.wg.Wait()

	c.logInfo("hardware connection closed")
	return nil
}

// SendCommand writes a single command line to the hardware controller.
//
// The newline terminator is appended here; cmd must not contain one.
func (c *Client) SendCommand(ctx context.Context, cmd string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCommandFailed, ctx.Err())
	default:
	}

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrCommandFailed, err)
	}

	if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: write: %w", ErrCommandFailed, err)
	}

	c.commandsTx.Add(1)
	c.lastActivity.Store(time.Now().Unix())

	return nil
}

// SetOnLine sets the callback for inbound hardware lines.
//
// The callback is invoked from a single worker goroutine in arrival
// order. Panics in the callback are recovered and logged.
func (c *Client) SetOnLine(callback func(Line)) {
	c.callbackMu.Lock()
	c.onLine = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// IsConnected returns true if connected to the hardware controller.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	return Stats{
		CommandsTx:      c.commandsTx.Load(),
		LinesRx:         c.linesRx.Load(),
		LinesDropped:    c.linesDropped.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		LastActivity:    time.Unix(c.lastActivity.Load(), 0),
		Connected:       c.IsConnected(),
		Reconnecting:    c.reconnecting.Load(),
	}
}

// HealthCheck verifies the connection is alive.
func (c *Client) HealthCheck(_ context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Noop returns a disabled hardware link. Every command returns
// ErrNotConnected and inbound lines never arrive.
func Noop() Conn {
	return noopConn{}
}

type noopConn struct{}

func (noopConn) SendCommand(_ context.Context, _ string) error { return ErrNotConnected }
func (noopConn) SetOnLine(_ func(Line))                        {}
func (noopConn) IsConnected() bool                             { return false }
func (noopConn) Stats() Stats                                  { return Stats{} }
func (noopConn) Close() error                                  { return nil }

// logInfo logs an info message if logger is set.
func (c *Client) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (c *Client) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
