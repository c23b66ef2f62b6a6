package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/envsort/envsort-core/internal/audit"
	"github.com/envsort/envsort-core/internal/batch"
	"github.com/envsort/envsort-core/internal/infrastructure/config"
	"github.com/envsort/envsort-core/internal/infrastructure/mqtt"
	"github.com/envsort/envsort-core/internal/scan"
	"github.com/envsort/envsort-core/internal/session"
	"github.com/envsort/envsort-core/internal/timer"
	"github.com/envsort/envsort-core/internal/transport"
	"github.com/envsort/envsort-core/internal/validate"
)

// eventQueueSize bounds the dispatcher input queue. Producers drop with
// a warning when it is full rather than block.
const eventQueueSize = 256

// itemIDModulus keeps item identifiers at five digits, matching the
// hardware protocol's expectations.
const itemIDModulus = 100000

// persistTimeout bounds the sqlite writes performed inside the
// dispatcher loop.
const persistTimeout = 5 * time.Second

// MQTTClient is the interface for publishing kiosk events to off-box
// subscribers.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// WSHub is the interface for broadcasting WebSocket events to the
// kiosk UI.
type WSHub interface {
	Broadcast(channel string, payload any)
}

// HardwareConn is the command sink towards the sorter hardware.
type HardwareConn interface {
	SendCommand(ctx context.Context, cmd string) error
}

// BatchClient is the upstream batch logging API.
type BatchClient interface {
	Start(ctx context.Context, scannersUsed []int) (int, error)
	Finish(ctx context.Context, batchID int, items []batch.ItemReport) error
}

// Telemetry receives throughput and result measurements.
type Telemetry interface {
	WriteScanEvent(channel int, accepted bool)
	WriteItemResult(sessionID string, overall string, fallback bool, durationMS int64)
	WriteSessionSummary(sessionID string, totalItems int, durationSec float64)
}

// SessionStore persists session history alongside the JSON files.
type SessionStore interface {
	CreateSession(ctx context.Context, id string, startedAt time.Time) error
	FinishSession(ctx context.Context, id string, endedAt time.Time, totalItems int, filePath string) error
	AddItem(ctx context.Context, sessionID string, item session.Item, completedAt time.Time) error
}

// Logger interface for controller logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ItemState is the lifecycle state of the current item.
type ItemState string

// Item states. Completed is transient: the controller resets to Idle in
// the same dispatch step that emits the result.
const (
	StateIdle ItemState = "idle"
	StateOpen ItemState = "open"
)

// Status is a point-in-time snapshot of the controller for the API.
type Status struct {
	Running        bool              `json:"running"`
	SessionID      string            `json:"session_id,omitempty"`
	BatchID        int               `json:"batch_id,omitempty"`
	ItemState      ItemState         `json:"item_state"`
	ItemID         int64             `json:"item_id,omitempty"`
	ItemsCompleted int               `json:"items_completed"`
	Settings       validate.Settings `json:"settings"`
	EventsDropped  uint64            `json:"events_dropped"`
}

// Deps holds the dependencies required by the session controller.
//
// Hardware, Batch, MQTT, Hub, Telemetry, Store and Audit are optional;
// a nil value disables the corresponding output.
type Deps struct {
	Config    config.ControllerConfig
	Timers    timer.Service
	Validator *validate.Validator
	Sessions  *session.Log
	Store     SessionStore
	Audit     audit.Repository
	Hardware  HardwareConn
	Batch     BatchClient
	MQTT      MQTTClient
	Hub       WSHub
	Telemetry Telemetry
	Logger    Logger

	// Now overrides the clock. Nil means time.Now; tests pair it with a
	// virtual timer service.
	Now func() time.Time
}

// item is the in-progress item record. Channel values are write-once
// until the item resets.
type item struct {
	id              int64
	createdAt       time.Time
	values          map[scan.Channel]string
	fallbackApplied bool
	fallbackHandle  timer.Handle
	fallbackArmed   bool
}

func (it *item) filled(ch scan.Channel) bool {
	_, ok := it.values[ch]
	return ok
}

// SessionController owns the kiosk's aggregation and validation state.
//
// All state mutation happens under mu. The dispatcher loop (Run) drains
// the event queue; API entry points (StartSession, StopSession,
// UpdateSettings) take the same lock directly, serialising them against
// event processing.
type SessionController struct {
	cfg       config.ControllerConfig
	timers    timer.Service
	validator *validate.Validator
	sessions  *session.Log
	store     SessionStore
	auditRepo audit.Repository
	hardware  HardwareConn
	batch     BatchClient
	mqtt      MQTTClient
	hub       WSHub
	telemetry Telemetry
	logger    Logger
	now       func() time.Time
	topics    mqtt.Topics

	events  chan Event
	dropped atomic.Uint64

	mu       sync.Mutex
	running  bool
	batchID  int
	settings validate.Settings
	debounce *scan.Debouncer
	current  *item
	keyBuf   []rune
	flushing timer.Handle
	armed    bool // flush timer armed
}

// New creates a session controller.
func New(deps Deps) *SessionController {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	hardware := deps.Hardware
	if hardware == nil {
		hardware = transport.Noop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &SessionController{
		cfg:       deps.Config,
		timers:    deps.Timers,
		validator: deps.Validator,
		sessions:  deps.Sessions,
		store:     deps.Store,
		auditRepo: deps.Audit,
		hardware:  hardware,
		batch:     deps.Batch,
		mqtt:      deps.MQTT,
		hub:       deps.Hub,
		telemetry: deps.Telemetry,
		logger:    logger,
		now:       now,
		events:    make(chan Event, eventQueueSize),
		settings: validate.Settings{
			Scanner1: deps.Config.Scanners.Scanner1,
			Scanner2: deps.Config.Scanners.Scanner2,
			Scanner3: deps.Config.Scanners.Scanner3,
		},
		debounce: scan.NewDebouncer(deps.Config.DebounceCooldown()),
	}
}

// Run drains the event queue until ctx is cancelled.
//
// It is the only consumer of the queue; run it exactly once.
func (c *SessionController) Run(ctx context.Context) error {
	c.logger.Info("controller loop started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("controller loop stopped")
			return nil
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// handle routes one event. Timer callbacks lock internally; the other
// handlers lock here.
func (c *SessionController) handle(ev Event) {
	switch ev.Kind {
	case EventKeyChar:
		c.onKey(ev.Char)
	case EventEnterPressed:
		c.onEnter()
	case EventLineReceived:
		c.onLine(ev.Line)
	case EventTimerFired:
		if ev.Fn != nil {
			ev.Fn()
		}
	}
}

// submit enqueues an event, dropping with a warning when the queue is
// full.
func (c *SessionController) submit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.dropped.Add(1)
		c.logger.Warn("event queue full, dropping event", "kind", ev.Kind.String())
	}
}

// SubmitKey enqueues a keyboard-wedge character. CR and LF are treated
// as enter presses.
func (c *SessionController) SubmitKey(r rune) {
	if r == '\r' || r == '\n' {
		c.SubmitEnter()
		return
	}
	c.submit(Event{Kind: EventKeyChar, Char: r})
}

// SubmitEnter enqueues an enter press, flushing the keystroke buffer.
func (c *SessionController) SubmitEnter() {
	c.submit(Event{Kind: EventEnterPressed})
}

// SubmitLine enqueues an inbound hardware line. Wire this to the
// transport client's SetOnLine.
func (c *SessionController) SubmitLine(line transport.Line) {
	c.submit(Event{Kind: EventLineReceived, Line: line})
}

// SubmitScan enqueues a complete scan value, bypassing the keystroke
// buffer. Used by the API's scan injection endpoint.
func (c *SessionController) SubmitScan(value string) {
	c.submit(Event{Kind: EventLineReceived, Line: transport.Line{Kind: transport.LineUnknown, Raw: value}})
}

// Dispatch marshals a timer callback onto the dispatcher loop. Pass it
// to timer.NewScheduler.
func (c *SessionController) Dispatch(fn func()) {
	c.submit(Event{Kind: EventTimerFired, Fn: fn})
}

// ─── Session lifecycle ──────────────────────────────────────────────────────

// StartSession opens a session.
//
// When a batch client is configured, the upstream start call must
// succeed first: a failed start leaves the controller stopped. On
// success the session log opens, the hardware receives the start
// command and a session_start audit record is written.
func (c *SessionController) StartSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return "", ErrAlreadyRunning
	}

	batchID := 0
	if c.batch != nil {
		id, err := c.batch.Start(ctx, c.settings.EnabledNumbers())
		if err != nil {
			c.logger.Error("batch start failed, refusing to start session", "error", err)
			return "", fmt.Errorf("starting batch: %w", err)
		}
		batchID = id
		c.audit(ctx, audit.ActionBatchStart, "batch", fmt.Sprintf("%d", batchID), map[string]any{
			"scanners": c.settings.EnabledNumbers(),
		})
	}

	now := c.now()
	sessionID := c.sessions.Start(now)

	if c.store != nil {
		pctx, cancel := context.WithTimeout(ctx, persistTimeout)
		if err := c.store.CreateSession(pctx, sessionID, now); err != nil {
			c.logger.Error("failed to persist session start", "error", err, "session_id", sessionID)
		}
		cancel()
	}

	c.running = true
	c.batchID = batchID
	c.resetItemLocked()
	c.clearKeyBufLocked()

	c.sendHardware(ctx, transport.CmdStart)
	c.audit(ctx, audit.ActionSessionStart, "session", sessionID, map[string]any{
		"batch_id": batchID,
		"scanners": c.settings.EnabledNumbers(),
	})
	c.publishSessionEvent("started", sessionID, 0)

	c.logger.Info("session started", "session_id", sessionID, "batch_id", batchID)
	return sessionID, nil
}

// StopSession closes the session and writes the session file.
//
// A failed batch finish is logged and does not prevent the local file
// write. Stopping when no session is open is a logged no-op.
func (c *SessionController) StopSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		c.logger.Warn("stop requested with no session open")
		return "", nil
	}

	sessionID := c.sessions.ID()
	items := c.sessions.Items()
	startedAt := c.sessions.StartedAt()

	if c.batch != nil {
		ferr := c.batch.Finish(ctx, c.batchID, itemReports(items))
		if ferr != nil {
			c.logger.Error("batch finish failed, session file still written", "error", ferr, "batch_id", c.batchID)
		}
		c.audit(ctx, audit.ActionBatchFinish, "batch", fmt.Sprintf("%d", c.batchID), map[string]any{
			"total_items": len(items),
			"success":     ferr == nil,
		})
	}

	now := c.now()
	path, err := c.sessions.Stop(now)
	if err != nil {
		c.logger.Error("failed to write session file", "error", err, "session_id", sessionID)
	}

	if c.store != nil {
		pctx, cancel := context.WithTimeout(ctx, persistTimeout)
		if serr := c.store.FinishSession(pctx, sessionID, now, len(items), path); serr != nil {
			c.logger.Error("failed to persist session finish", "error", serr, "session_id", sessionID)
		}
		cancel()
	}

	if c.telemetry != nil {
		c.telemetry.WriteSessionSummary(sessionID, len(items), now.Sub(startedAt).Seconds())
	}

	c.cancelFallbackLocked()
	c.cancelFlushLocked()
	c.running = false
	c.batchID = 0
	c.resetItemLocked()
	c.clearKeyBufLocked()

	// Stop halts the sorter; reset clears the display and servo state
	// left over from the last item.
	c.sendHardware(ctx, transport.CmdStop)
	c.sendHardware(ctx, transport.CmdReset)
	c.audit(ctx, audit.ActionSessionEnd, "session", sessionID, map[string]any{
		"total_items": len(items),
		"file_path":   path,
	})
	c.publishSessionEvent("stopped", sessionID, len(items))

	c.logger.Info("session stopped", "session_id", sessionID, "total_items", len(items), "file", path)
	return path, err
}

// itemReports converts session items into the batch finish payload.
func itemReports(items []session.Item) []batch.ItemReport {
	reports := make([]batch.ItemReport, 0, len(items))
	for _, it := range items {
		reports = append(reports, batch.ItemReport{
			ItemID:   it.ItemID,
			Scanner1: channelReport(it.Scanner1),
			Scanner2: channelReport(it.Scanner2),
			Scanner3: channelReport(it.Scanner3),
			Result:   it.ValidationResult,
			Fallback: it.Fallback,
		})
	}
	return reports
}

func channelReport(v session.ChannelValue) batch.ChannelReport {
	valid := v.Valid != nil && *v.Valid
	return batch.ChannelReport{Value: v.Value, Valid: valid}
}

// ─── Settings ───────────────────────────────────────────────────────────────

// Settings returns the active validation settings.
func (c *SessionController) Settings() validate.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// UpdateSettings replaces the validation settings.
//
// Settings never change mid-item: an update while an item is open
// returns ErrItemInFlight.
func (c *SessionController) UpdateSettings(ctx context.Context, s validate.Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		return ErrItemInFlight
	}

	c.settings = s
	c.audit(ctx, audit.ActionSettingsUpdate, "settings", "", map[string]any{
		"scanner1": s.Scanner1,
		"scanner2": s.Scanner2,
		"scanner3": s.Scanner3,
	})

	if c.mqtt != nil {
		payload, err := json.Marshal(s)
		if err == nil {
			if perr := c.mqtt.Publish(c.topics.SettingsChanged(), payload, 1, true); perr != nil {
				c.logger.Error("failed to publish settings change", "error", perr)
			}
		}
	}

	c.logger.Info("validation settings updated",
		"scanner1", s.Scanner1, "scanner2", s.Scanner2, "scanner3", s.Scanner3)
	return nil
}

// Status returns a snapshot for the API.
func (c *SessionController) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Running:        c.running,
		ItemState:      StateIdle,
		ItemsCompleted: c.sessions.Count(),
		Settings:       c.settings,
		EventsDropped:  c.dropped.Load(),
	}
	if c.running {
		st.SessionID = c.sessions.ID()
		st.BatchID = c.batchID
	}
	if c.current != nil {
		st.ItemState = StateOpen
		st.ItemID = c.current.id
	}
	return st
}

// SendTest sends a commissioning test command to the hardware.
func (c *SessionController) SendTest(ctx context.Context, pass bool) error {
	cmd := transport.CmdTestFail
	if pass {
		cmd = transport.CmdTestPass
	}
	if err := c.hardware.SendCommand(ctx, cmd); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			c.logger.Warn("test command dropped, hardware not connected", "command", cmd)
			return nil
		}
		return err
	}
	return nil
}

// SendStatus asks the hardware to report its state. The reply arrives
// as SCAN_STATE and DATA lines on the normal inbound path and is
// broadcast to subscribers.
func (c *SessionController) SendStatus(ctx context.Context) error {
	if err := c.hardware.SendCommand(ctx, transport.CmdStatus); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			c.logger.Warn("status command dropped, hardware not connected")
			return nil
		}
		return err
	}
	return nil
}

// ─── Keystroke buffer ───────────────────────────────────────────────────────

// onKey appends a wedge character and re-arms the flush timer. A
// keystroke reschedules the timer rather than stacking a second one.
func (c *SessionController) onKey(r rune) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}

	c.keyBuf = append(c.keyBuf, r)

	c.cancelFlushLocked()
	c.flushing = c.timers.Schedule(c.cfg.FlushDelay(), c.onFlushTimer)
	c.armed = true
}

// onEnter flushes the keystroke buffer immediately.
func (c *SessionController) onEnter() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelFlushLocked()
	c.flushKeyBufLocked()
}

// onFlushTimer fires after the keystroke inactivity window.
func (c *SessionController) onFlushTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.armed = false
	c.flushing = 0
	c.flushKeyBufLocked()
}

func (c *SessionController) flushKeyBufLocked() {
	if len(c.keyBuf) == 0 {
		return
	}
	raw := string(c.keyBuf)
	c.keyBuf = c.keyBuf[:0]
	c.processScanLocked(raw)
}

func (c *SessionController) cancelFlushLocked() {
	if c.armed {
		c.timers.Cancel(c.flushing)
		c.armed = false
		c.flushing = 0
	}
}

func (c *SessionController) clearKeyBufLocked() {
	c.keyBuf = c.keyBuf[:0]
}

// ─── Hardware lines ─────────────────────────────────────────────────────────

// onLine processes one inbound hardware line. Lines with no recognised
// prefix are candidate scan payloads from serial-attached scanners.
func (c *SessionController) onLine(line transport.Line) {
	switch line.Kind {
	case transport.LineUnknown:
		c.mu.Lock()
		c.processScanLocked(line.Raw)
		c.mu.Unlock()

	case transport.LineResult:
		c.logger.Info("hardware result", "verdict", line.Verdict, "item_id", line.Arg)
		c.audit(context.Background(), audit.ActionItemCompleted, "hardware", line.Arg, map[string]any{
			"verdict": line.Verdict,
		})
		c.broadcastHardware("result", line)

	case transport.LineScanTimeout:
		c.logger.Warn("hardware scan timeout", "item_id", line.Arg)
		c.audit(context.Background(), audit.ActionTimeout, "hardware", line.Arg, nil)
		c.broadcastHardware("scan_timeout", line)

	case transport.LineScanOK, transport.LineServo, transport.LineComplete,
		transport.LineScanState, transport.LineData:
		c.logger.Debug("hardware event", "kind", line.Kind.String(), "arg", line.Arg)
		c.broadcastHardware(line.Kind.String(), line)
	}
}

// broadcastHardware relays a hardware event to the UI and MQTT.
func (c *SessionController) broadcastHardware(event string, line transport.Line) {
	payload := map[string]any{
		"event":   event,
		"raw":     line.Raw,
		"arg":     line.Arg,
		"verdict": line.Verdict,
	}
	if c.hub != nil {
		c.hub.Broadcast("hardware."+event, payload)
	}
	if c.mqtt != nil {
		body, err := json.Marshal(payload)
		if err == nil {
			if perr := c.mqtt.Publish(c.topics.HardwareEvent(event), body, 0, false); perr != nil {
				c.logger.Debug("hardware event publish failed", "error", perr)
			}
		}
	}
}

// ─── Scan pipeline ──────────────────────────────────────────────────────────

// processScanLocked runs classify → debounce → assemble for one raw
// scan string.
func (c *SessionController) processScanLocked(raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}

	if !c.running {
		c.logger.Debug("scan ignored", "error", ErrNotRunning, "value", raw)
		return
	}

	now := c.now()

	ch := scan.Classify(raw)
	if ch == scan.ChannelUnknown {
		c.logger.Warn("scan discarded", "error", ErrUnknownCode, "value", raw, "length", len(raw))
		return
	}

	if !c.debounce.Accept(ch, raw, now) {
		c.logger.Info("scan discarded", "error", ErrDuplicateScan, "channel", ch.String(), "value", raw)
		if c.telemetry != nil {
			c.telemetry.WriteScanEvent(ch.Number(), false)
		}
		return
	}

	if c.telemetry != nil {
		c.telemetry.WriteScanEvent(ch.Number(), true)
	}
	c.publishScan(ch, raw)

	c.applyScanLocked(scan.Event{Channel: ch, RawValue: raw, Timestamp: now})
}

// applyScanLocked writes an accepted scan into the current item and
// evaluates fallback and completion.
func (c *SessionController) applyScanLocked(ev scan.Event) {
	if c.current == nil {
		c.openItemLocked(ev.Timestamp)
	}

	if c.current.filled(ev.Channel) {
		c.logger.Warn("scan rejected", "error", ErrChannelFilled,
			"channel", ev.Channel.String(), "item_id", c.current.id)
		return
	}

	c.current.values[ev.Channel] = ev.RawValue
	c.logger.Info("channel filled",
		"channel", ev.Channel.String(), "item_id", c.current.id, "value", ev.RawValue)

	c.sendHardware(context.Background(), transport.ScanCommand(ev.Channel.Number(), c.current.id, ev.RawValue))

	// A genuine channel-1 read wins the race: disable the timer path.
	if ev.Channel == scan.Channel1 {
		c.cancelFallbackLocked()
	}

	c.evaluateFallbackLocked(ev.Channel)
	c.checkCompletionLocked(ev.Timestamp)
}

// openItemLocked starts a fresh item. The id is derived from wall-clock
// milliseconds, truncated to five digits for the hardware protocol.
func (c *SessionController) openItemLocked(now time.Time) {
	c.current = &item{
		id:        now.UnixMilli() % itemIDModulus,
		createdAt: now,
		values:    make(map[scan.Channel]string, 3),
	}
	c.logger.Info("item opened", "item_id", c.current.id)
}

// evaluateFallbackLocked applies the channel-1 fallback rules after a
// channel write.
//
// When channels 2 and 3 are both filled and channel 1 is not, the
// sentinel is substituted immediately. Otherwise a 2-or-3 write arms
// the fallback timer once; the timer performs the identical
// substitution when it fires.
func (c *SessionController) evaluateFallbackLocked(wrote scan.Channel) {
	it := c.current
	if it == nil || it.fallbackApplied {
		return
	}
	if !c.settings.Enabled(scan.Channel1) || it.filled(scan.Channel1) {
		return
	}

	if it.filled(scan.Channel2) && it.filled(scan.Channel3) {
		c.applyFallbackLocked("direct")
		return
	}

	if (wrote == scan.Channel2 || wrote == scan.Channel3) && !it.fallbackArmed {
		itemID := it.id
		it.fallbackHandle = c.timers.Schedule(c.cfg.FallbackTimeout(), func() {
			c.onFallbackTimer(itemID)
		})
		it.fallbackArmed = true
		c.logger.Debug("fallback timer armed", "item_id", itemID)
	}
}

// onFallbackTimer fires when channel 1 never reported inside the
// fallback window.
func (c *SessionController) onFallbackTimer(itemID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it := c.current
	if it == nil || it.id != itemID {
		return // Stale timer from a previous item
	}

	it.fallbackArmed = false
	it.fallbackHandle = 0
	c.applyFallbackLocked("timeout")
	c.checkCompletionLocked(c.now())
}

// applyFallbackLocked substitutes the no-scan sentinel for channel 1.
// The fallbackApplied flag guarantees at most one substitution per
// item, whichever trigger fires first.
func (c *SessionController) applyFallbackLocked(trigger string) {
	it := c.current
	if it == nil || it.fallbackApplied || it.filled(scan.Channel1) {
		return
	}

	it.values[scan.Channel1] = c.cfg.NoScanSentinel
	it.fallbackApplied = true
	c.cancelFallbackLocked()

	c.logger.Info("channel 1 fallback applied",
		"item_id", it.id, "trigger", trigger, "sentinel", c.cfg.NoScanSentinel)

	if trigger == "timeout" {
		c.audit(context.Background(), audit.ActionTimeout, "item", fmt.Sprintf("%d", it.id), map[string]any{
			"sentinel": c.cfg.NoScanSentinel,
		})
	}
}

func (c *SessionController) cancelFallbackLocked() {
	it := c.current
	if it != nil && it.fallbackArmed {
		c.timers.Cancel(it.fallbackHandle)
		it.fallbackArmed = false
		it.fallbackHandle = 0
	}
}

// checkCompletionLocked completes the item when every enabled channel
// holds a value.
func (c *SessionController) checkCompletionLocked(now time.Time) {
	it := c.current
	if it == nil {
		return
	}

	for _, ch := range c.settings.EnabledChannels() {
		if !it.filled(ch) {
			return
		}
	}

	c.completeItemLocked(now)
}

// completeItemLocked validates the item, emits exactly one result, and
// resets to idle.
func (c *SessionController) completeItemLocked(now time.Time) {
	it := c.current
	c.cancelFallbackLocked()

	result := c.validator.Validate(it.values, c.settings)

	record := session.Item{
		ItemID:           it.id,
		Timestamp:        now.Format("2006-01-02 15:04:05"),
		Scanner1:         channelValue(it.values, result, scan.Channel1),
		Scanner2:         channelValue(it.values, result, scan.Channel2),
		Scanner3:         channelValue(it.values, result, scan.Channel3),
		ValidationResult: string(result.Overall),
		Fallback:         it.fallbackApplied,
	}

	c.sessions.Append(record)

	sessionID := c.sessions.ID()
	if c.store != nil {
		pctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := c.store.AddItem(pctx, sessionID, record, now); err != nil {
			c.logger.Error("failed to persist item", "error", err, "item_id", it.id)
		}
		cancel()
	}

	cmd := transport.CmdTestFail
	if result.Overall == validate.VerdictPass {
		cmd = transport.CmdTestPass
	}
	c.sendHardware(context.Background(), cmd)

	durationMS := now.Sub(it.createdAt).Milliseconds()
	c.audit(context.Background(), audit.ActionItemCompleted, "item", fmt.Sprintf("%d", it.id), map[string]any{
		"overall":     string(result.Overall),
		"fallback":    it.fallbackApplied,
		"duration_ms": durationMS,
	})

	if c.telemetry != nil {
		c.telemetry.WriteItemResult(sessionID, string(result.Overall), it.fallbackApplied, durationMS)
	}

	payload := map[string]any{
		"item_id":          it.id,
		"session_id":       sessionID,
		"overall":          string(result.Overall),
		"fallback":         it.fallbackApplied,
		"scanner_1":        record.Scanner1,
		"scanner_2":        record.Scanner2,
		"scanner_3":        record.Scanner3,
		"display_reset_ms": c.cfg.DisplayResetMS,
		"completed_at":     now.UTC().Format(time.RFC3339),
	}
	if c.hub != nil {
		c.hub.Broadcast("item.result", payload)
	}
	if c.mqtt != nil {
		body, err := json.Marshal(payload)
		if err == nil {
			if perr := c.mqtt.Publish(c.topics.ItemResult(), body, 1, false); perr != nil {
				c.logger.Error("failed to publish item result", "error", perr)
			}
		}
	}

	c.logger.Info("item completed",
		"item_id", it.id, "overall", string(result.Overall),
		"fallback", it.fallbackApplied, "duration_ms", durationMS)

	c.resetItemLocked()
}

// channelValue builds the per-channel session record field.
func channelValue(values map[scan.Channel]string, result validate.Result, ch scan.Channel) session.ChannelValue {
	return session.ChannelValue{
		Value: values[ch],
		Valid: result.PerChannel[ch],
	}
}

func (c *SessionController) resetItemLocked() {
	c.cancelFallbackLocked()
	c.current = nil
}

// ─── Output helpers ─────────────────────────────────────────────────────────

// sendHardware writes a command, treating a missing connection as a
// logged no-op.
func (c *SessionController) sendHardware(ctx context.Context, cmd string) {
	if err := c.hardware.SendCommand(ctx, cmd); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			c.logger.Debug("hardware command dropped, not connected", "command", cmd)
			return
		}
		c.logger.Error("hardware command failed", "error", err, "command", cmd)
	}
}

// publishScan publishes an accepted scan event.
func (c *SessionController) publishScan(ch scan.Channel, value string) {
	if c.mqtt == nil {
		return
	}
	body, err := json.Marshal(map[string]any{
		"channel": ch.Number(),
		"value":   value,
	})
	if err != nil {
		return
	}
	if perr := c.mqtt.Publish(c.topics.ScanAccepted(ch.Number()), body, 0, false); perr != nil {
		c.logger.Debug("scan publish failed", "error", perr)
	}
}

// publishSessionEvent publishes a session lifecycle event and mirrors
// it to the UI.
func (c *SessionController) publishSessionEvent(event, sessionID string, totalItems int) {
	payload := map[string]any{
		"session_id":  sessionID,
		"total_items": totalItems,
	}
	if c.hub != nil {
		c.hub.Broadcast("session."+event, payload)
	}
	if c.mqtt == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if perr := c.mqtt.Publish(c.topics.SessionEvent(event), body, 1, false); perr != nil {
		c.logger.Error("failed to publish session event", "error", perr, "event", event)
	}
}

// audit writes an audit record, tolerating a nil repository.
func (c *SessionController) audit(ctx context.Context, action, entityType, entityID string, details map[string]any) {
	if c.auditRepo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	err := c.auditRepo.Create(ctx, &audit.AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Source:     "controller",
		Details:    details,
	})
	if err != nil {
		c.logger.Error("failed to write audit record", "error", err, "action", action)
	}
}
