package z21

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Client defaults.
const (
	// defaultKeepaliveInterval is how often LAN_X_GET_STATUS is sent.
	defaultKeepaliveInterval = 30 * time.Second

	// defaultSystemStatePollInterval is how often system state is requested.
	defaultSystemStatePollInterval = 5 * time.Second

	// defaultMaxKeepaliveFailures is the number of consecutive failed
	// keepalives after which the connection is considered lost.
	defaultMaxKeepaliveFailures = 3

	// defaultSendTimeout bounds sends issued by the client's own timers.
	defaultSendTimeout = 2 * time.Second

	// versionRequestGap separates the serial number and hardware info requests.
	versionRequestGap = 50 * time.Millisecond

	// callbackQueueSize is the buffer size for each event queue.
	callbackQueueSize = 100

	// callbackWorkerCount is the number of workers for non-feedback events.
	callbackWorkerCount = 4

	// maxSimulatedPort is the highest port SimulateFeedback accepts.
	maxSimulatedPort = 255
)

// Pauses in the recovery sequence.
var recoveryPauses = []time.Duration{
	100 * time.Millisecond, // after emergency stop
	150 * time.Millisecond, // after logoff
	100 * time.Millisecond, // after serial number
	100 * time.Millisecond, // after handshake
	100 * time.Millisecond, // after broadcast flags
}

// ClientConfig holds protocol client settings.
type ClientConfig struct {
	// KeepaliveInterval is the LAN_X_GET_STATUS period.
	// Default: 30 seconds. Negative disables keepalive.
	KeepaliveInterval time.Duration

	// SystemStatePollInterval is the LAN_SYSTEMSTATE_GETDATA period.
	// Default: 5 seconds. Negative disables polling.
	SystemStatePollInterval time.Duration

	// MaxKeepaliveFailures is the consecutive failure limit before the
	// connection is declared lost. Default: 3.
	MaxKeepaliveFailures int

	// BroadcastFlags are registered on connect. Default: BroadcastBasic.
	BroadcastFlags uint32
}

// Sender is the narrow interface for sending raw command frames.
type Sender interface {
	SendCommand(ctx context.Context, data []byte) error
}

// Ensure Client implements Sender.
var _ Sender = (*Client)(nil)

// ClientStats holds operational statistics.
type ClientStats struct {
	State             ConnectionState `json:"state"`
	Confirmed         bool            `json:"confirmed"`
	Address           string          `json:"address"`
	CommandsTx        uint64          `json:"commands_tx"`
	DatagramsRx       uint64          `json:"datagrams_rx"`
	FeedbackRx        uint64          `json:"feedback_rx"`
	EventsDropped     uint64          `json:"events_dropped"`
	UnknownRx         uint64          `json:"unknown_rx"`
	SendErrors        uint64          `json:"send_errors"`
	KeepaliveFailures int64           `json:"keepalive_failures"`
	LastActivity      time.Time       `json:"last_activity"`
}

// session holds the timers of one connection.
type session struct {
	done *closeOnce
	wg   sync.WaitGroup
}

// Client is the Z21 protocol client.
//
// It composes a Transport with the encoder and parser, keeps the
// connection alive, and raises typed events. Feedback events are delivered
// by a single worker in arrival order; other events use a small worker pool.
// Observer panics are recovered and logged.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	transport Transport
	cfg       ClientConfig

	stateMu sync.Mutex
	state   ConnectionState
	addr    string
	session *session
	// attempt identifies the Connect call that owns StateConnecting.
	attempt uint64

	confirmed atomic.Bool

	dataMu    sync.RWMutex
	status    BusStatus
	telemetry SystemTelemetry
	version   VersionInfo

	feedbackSubs subscribers[FeedbackEvent]
	statusSubs   subscribers[BusStatus]
	systemSubs   subscribers[SystemTelemetry]
	versionSubs  subscribers[VersionInfo]
	connSubs     subscribers[bool]

	feedbackQueue chan FeedbackEvent
	eventQueue    chan func()
	workersDone   *closeOnce
	workersWG     sync.WaitGroup
	closeOnce     sync.Once
	closed        atomic.Bool

	logger   Logger
	loggerMu sync.RWMutex

	commandsTx        atomic.Uint64
	datagramsRx       atomic.Uint64
	feedbackRx        atomic.Uint64
	eventsDropped     atomic.Uint64
	unknownRx         atomic.Uint64
	sendErrors        atomic.Uint64
	keepaliveFailures atomic.Int64
	lastActivity      atomic.Int64
}

// NewClient creates a disconnected client on top of transport.
// Event workers start immediately; call Close to release them.
func NewClient(transport Transport, cfg ClientConfig) *Client {
	if cfg.KeepaliveInterval == 0 {
		cfg.KeepaliveInterval = defaultKeepaliveInterval
	}
	if cfg.SystemStatePollInterval == 0 {
		cfg.SystemStatePollInterval = defaultSystemStatePollInterval
	}
	if cfg.MaxKeepaliveFailures <= 0 {
		cfg.MaxKeepaliveFailures = defaultMaxKeepaliveFailures
	}
	if cfg.BroadcastFlags == 0 {
		cfg.BroadcastFlags = BroadcastBasic
	}

	c := &Client{
		transport:     transport,
		cfg:           cfg,
		state:         StateDisconnected,
		feedbackQueue: make(chan FeedbackEvent, callbackQueueSize),
		eventQueue:    make(chan func(), callbackQueueSize),
		workersDone:   newCloseOnce(),
	}

	transport.SetReceiveHandler(c.onDatagram)

	c.workersWG.Add(1)
	go c.feedbackWorker()
	for range callbackWorkerCount {
		c.workersWG.Add(1)
		go c.eventWorker()
	}

	return c
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// Connect opens the transport and runs the startup sequence: handshake,
// broadcast flags, status query and version requests, in that order.
//
// The startup sequence is best effort. A failed send is logged and counted
// but neither aborts the remaining sends nor rolls back the connection.
// Confirmed reports whether the station has answered since.
//
// Parameters:
//   - ctx: Context for cancellation of the dial and startup sends
//   - addr: Station address as "host:port"
//
// Returns:
//   - error: ErrConnectionFailed if the transport cannot be opened,
//     ErrClosed after Close, ErrNotConnected when Disconnect ran before
//     the startup sequence finished
func (c *Client) Connect(ctx context.Context, addr string) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.stateMu.Lock()
	if c.state != StateDisconnected {
		c.stateMu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.attempt++
	attempt := c.attempt
	c.stateMu.Unlock()

	if err := c.transport.Connect(ctx, addr); err != nil {
		c.stateMu.Lock()
		if c.attempt == attempt && c.state == StateConnecting {
			c.state = StateDisconnected
		}
		c.stateMu.Unlock()
		return err
	}

	c.logInfo("z21 transport open, sending startup sequence", "address", addr)
	c.runStartupSequence(ctx)

	// Disconnect or Close may have run while the startup frames were sent.
	c.stateMu.Lock()
	if c.attempt != attempt || c.state != StateConnecting || c.closed.Load() {
		superseded, state := c.attempt != attempt, c.state
		c.stateMu.Unlock()
		switch {
		case superseded && state == StateConnected:
			// Recover finished the connection meanwhile.
			return nil
		case !superseded:
			c.transport.Close() //nolint:errcheck // already closed by Disconnect
		}
		c.logWarn("z21 connect abandoned, disconnected during startup", "address", addr)
		if c.closed.Load() {
			return ErrClosed
		}
		return ErrNotConnected
	}
	c.addr = addr
	c.state = StateConnected
	c.session = c.startSession()
	c.stateMu.Unlock()

	c.keepaliveFailures.Store(0)
	c.emitConnection(true)
	return nil
}

func (c *Client) runStartupSequence(ctx context.Context) {
	steps := []struct {
		name  string
		frame []byte
		pause time.Duration
	}{
		{"handshake", BuildHandshake(), 0},
		{"broadcast flags", BuildBroadcastFlags(c.cfg.BroadcastFlags), 0},
		{"status request", BuildGetStatus(), 0},
		{"serial number request", BuildGetSerialNumber(), 0},
		{"hardware info request", BuildGetHardwareInfo(), versionRequestGap},
	}

	for _, step := range steps {
		if step.pause > 0 && !sleepCtx(ctx, step.pause) {
			c.logWarn("startup sequence interrupted", "step", step.name)
			return
		}
		if err := c.send(ctx, step.frame); err != nil {
			c.logWarn("startup send failed", "step", step.name, "error", err)
		}
	}
}

// startSession launches keepalive and system-state polling.
// Caller must hold stateMu.
func (c *Client) startSession() *session {
	s := &session{done: newCloseOnce()}

	if c.cfg.KeepaliveInterval > 0 {
		s.wg.Add(1)
		go c.keepaliveLoop(s)
	}
	if c.cfg.SystemStatePollInterval > 0 {
		s.wg.Add(1)
		go c.pollLoop(s)
	}
	return s
}

// keepaliveLoop sends LAN_X_GET_STATUS periodically and declares the
// connection lost after too many consecutive failures.
func (c *Client) keepaliveLoop(s *session) {
	defer s.wg.Done()

	ticker := time.NewTicker(c.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), defaultSendTimeout)
			err := c.send(ctx, BuildGetStatus())
			cancel()

			if err == nil {
				c.keepaliveFailures.Store(0)
				continue
			}

			failures := c.keepaliveFailures.Add(1)
			c.logWarn("keepalive failed", "failures", failures, "error", err)
			if failures >= int64(c.cfg.MaxKeepaliveFailures) {
				c.connectionLost(s)
				return
			}
		}
	}
}

// pollLoop requests system state periodically.
func (c *Client) pollLoop(s *session) {
	defer s.wg.Done()

	ticker := time.NewTicker(c.cfg.SystemStatePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), defaultSendTimeout)
			if err := c.send(ctx, BuildHandshake()); err != nil {
				c.logDebug("system state poll failed", "error", err)
			}
			cancel()
		}
	}
}

// connectionLost tears down the session from inside one of its own loops.
func (c *Client) connectionLost(s *session) {
	c.stateMu.Lock()
	if c.session != s {
		c.stateMu.Unlock()
		return
	}
	c.session = nil
	c.state = StateDisconnected
	c.stateMu.Unlock()

	s.done.Close()
	if err := c.transport.Close(); err != nil {
		c.logError("closing transport after connection loss", err)
	}
	c.confirmed.Store(false)

	c.logError("z21 connection lost", fmt.Errorf("%d consecutive keepalive failures", c.cfg.MaxKeepaliveFailures))
	c.emitConnection(false)
}

// Disconnect sends LAN_LOGOFF, stops the timers and closes the transport.
// Subscriptions are kept. Calling Disconnect on a disconnected client is a no-op.
func (c *Client) Disconnect(ctx context.Context) error {
	c.stateMu.Lock()
	if c.state == StateDisconnected {
		c.stateMu.Unlock()
		return nil
	}
	s := c.session
	c.session = nil
	c.state = StateDisconnected
	c.stateMu.Unlock()

	if err := c.send(ctx, BuildLogoff()); err != nil {
		c.logDebug("logoff failed", "error", err)
	}

	if s != nil {
		s.done.Close()
		s.wg.Wait()
	}

	err := c.transport.Close()
	c.confirmed.Store(false)
	c.logInfo("z21 disconnected")
	c.emitConnection(false)
	if err != nil {
		return fmt.Errorf("closing transport: %w", err)
	}
	return nil
}

// Close disconnects and stops the event workers. Pending events are discarded.
// Safe to call multiple times.
func (c *Client) Close() error {
	err := c.Disconnect(context.Background())
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.workersDone.Close()
		c.workersWG.Wait()
	})
	return err
}

// Recover runs the wake-up sequence for a station that stopped answering:
// emergency stop, logoff, serial number, handshake, broadcast flags and a
// status request, with short pauses in between. The transport is reopened
// first if it was closed.
func (c *Client) Recover(ctx context.Context, addr string) error {
	c.logWarn("attempting z21 recovery", "address", addr)

	if !c.transport.IsConnected() {
		if err := c.transport.Connect(ctx, addr); err != nil {
			return err
		}
	}

	frames := [][]byte{
		BuildEmergencyStop(),
		BuildLogoff(),
		BuildGetSerialNumber(),
		BuildHandshake(),
		BuildBroadcastFlags(c.cfg.BroadcastFlags),
		BuildGetStatus(),
	}
	for i, frame := range frames {
		if err := c.send(ctx, frame); err != nil {
			return fmt.Errorf("recovery step %d: %w", i+1, err)
		}
		if i < len(recoveryPauses) && !sleepCtx(ctx, recoveryPauses[i]) {
			return fmt.Errorf("recovery interrupted: %w", ctx.Err())
		}
	}

	c.keepaliveFailures.Store(0)

	c.stateMu.Lock()
	becameConnected := c.state != StateConnected
	if becameConnected {
		c.attempt++
		c.addr = addr
		c.state = StateConnected
		c.session = c.startSession()
	}
	c.stateMu.Unlock()

	if becameConnected {
		c.emitConnection(true)
	}
	c.logInfo("z21 recovery sequence completed")
	return nil
}

// send writes a frame if the transport is open.
func (c *Client) send(ctx context.Context, data []byte) error {
	if !c.transport.IsConnected() {
		return ErrNotConnected
	}
	if err := c.transport.Send(ctx, data); err != nil {
		c.sendErrors.Add(1)
		return err
	}
	c.commandsTx.Add(1)
	c.logDebug("z21 sent", "bytes", ToHex(data))
	return nil
}

// SendCommand sends raw command bytes to the station.
//
// Returns:
//   - error: ErrNotConnected when disconnected, ErrSendFailed on write errors
func (c *Client) SendCommand(ctx context.Context, data []byte) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	return c.send(ctx, data)
}

// SetTurnout switches an accessory decoder output.
func (c *Client) SetTurnout(ctx context.Context, address, output int, activate, queue bool) error {
	frame, err := BuildSetTurnout(address, output, activate, queue)
	if err != nil {
		return err
	}
	return c.SendCommand(ctx, frame)
}

// RequestTurnoutInfo asks the station for a turnout's position.
func (c *Client) RequestTurnoutInfo(ctx context.Context, address int) error {
	frame, err := BuildGetTurnoutInfo(address)
	if err != nil {
		return err
	}
	return c.SendCommand(ctx, frame)
}

// TrackPowerOn switches track power on.
func (c *Client) TrackPowerOn(ctx context.Context) error {
	if err := c.SendCommand(ctx, BuildTrackPowerOn()); err != nil {
		return err
	}
	c.logInfo("track power on command sent")
	return nil
}

// TrackPowerOff switches track power off.
func (c *Client) TrackPowerOff(ctx context.Context) error {
	if err := c.SendCommand(ctx, BuildTrackPowerOff()); err != nil {
		return err
	}
	c.logInfo("track power off command sent")
	return nil
}

// EmergencyStop stops all locomotives. Track power stays on.
func (c *Client) EmergencyStop(ctx context.Context) error {
	if err := c.SendCommand(ctx, BuildEmergencyStop()); err != nil {
		return err
	}
	c.logInfo("emergency stop command sent")
	return nil
}

// RequestStatus sends LAN_X_GET_STATUS.
func (c *Client) RequestStatus(ctx context.Context) error {
	return c.SendCommand(ctx, BuildGetStatus())
}

// SimulateFeedback injects a synthetic R-Bus datagram for port through the
// normal inbound path. It works without a connection.
func (c *Client) SimulateFeedback(port int) error {
	if port < 0 || port > maxSimulatedPort {
		return fmt.Errorf("%w: simulated port %d (want 0..%d)", ErrInvalidArgument, port, maxSimulatedPort)
	}
	datagram := []byte{
		0x0F, 0x00, 0x80, 0x00, // length, LAN_RMBUS_DATACHANGED
		0x00,       // group
		byte(port), // input port
		0x01,       // occupied
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
	c.logInfo("simulating feedback", "port", port)
	c.onDatagram(datagram)
	return nil
}

// onDatagram dispatches one inbound datagram to the parsers in turn.
// It runs on the transport's receive goroutine and must not block.
func (c *Client) onDatagram(data []byte) {
	c.datagramsRx.Add(1)
	c.lastActivity.Store(time.Now().UnixNano())

	if _, ok := Header(data); !ok {
		c.unknownRx.Add(1)
		c.logDebug("short datagram dropped", "bytes", ToHex(data))
		return
	}

	if IsXBus(data) {
		if status, ok := TryParseXBusStatus(data); ok {
			c.confirm()
			c.dataMu.Lock()
			c.status = status
			c.dataMu.Unlock()
			emit(c, &c.statusSubs, status)
		}
		return
	}

	if ev, ok := TryParseFeedback(data); ok {
		ev.ReceivedAt = time.Now()
		c.feedbackRx.Add(1)
		c.enqueueFeedback(ev)
		return
	}

	if telemetry, ok := TryParseSystemState(data); ok {
		c.confirm()
		c.dataMu.Lock()
		c.telemetry = telemetry
		c.dataMu.Unlock()
		emit(c, &c.systemSubs, telemetry)
		return
	}

	if serial, ok := TryParseSerialNumber(data); ok {
		c.confirm()
		c.dataMu.Lock()
		c.version.SerialNumber = serial
		version := c.version
		c.dataMu.Unlock()
		c.logInfo("z21 serial number", "serial", serial)
		emit(c, &c.versionSubs, version)
		return
	}

	if hw, ok := TryParseHardwareInfo(data); ok {
		c.dataMu.Lock()
		c.version.HardwareTypeCode = hw.TypeCode
		c.version.FirmwareCode = hw.FirmwareCode
		version := c.version
		c.dataMu.Unlock()
		c.logInfo("z21 hardware info", "hardware", version.HardwareType(), "firmware", version.FirmwareVersion())
		emit(c, &c.versionSubs, version)
		return
	}

	c.unknownRx.Add(1)
	c.logDebug("unknown datagram", "bytes", ToHex(data))
}

// confirm records the first valid response of the station.
func (c *Client) confirm() {
	if c.confirmed.CompareAndSwap(false, true) {
		c.logInfo("z21 is responding")
	}
}

func (c *Client) enqueueFeedback(ev FeedbackEvent) {
	if c.feedbackSubs.len() == 0 {
		return
	}
	select {
	case c.feedbackQueue <- ev:
	default:
		c.eventsDropped.Add(1)
		c.logWarn("feedback queue full, dropping event", "port", ev.Port)
	}
}

// emit queues delivery of v to every current observer of subs.
func emit[T any](c *Client, subs *subscribers[T], v T) {
	fns := subs.snapshot()
	if len(fns) == 0 {
		return
	}
	job := func() {
		for _, fn := range fns {
			c.safeCall(func() { fn(v) })
		}
	}
	select {
	case c.eventQueue <- job:
	default:
		c.eventsDropped.Add(1)
		c.logWarn("event queue full, dropping event")
	}
}

func (c *Client) emitConnection(connected bool) {
	emit(c, &c.connSubs, connected)
}

// feedbackWorker delivers feedback events in arrival order.
func (c *Client) feedbackWorker() {
	defer c.workersWG.Done()
	for {
		select {
		case <-c.workersDone.Done():
			return
		case ev := <-c.feedbackQueue:
			for _, fn := range c.feedbackSubs.snapshot() {
				c.safeCall(func() { fn(ev) })
			}
		}
	}
}

// eventWorker runs queued observer calls for non-feedback events.
func (c *Client) eventWorker() {
	defer c.workersWG.Done()
	for {
		select {
		case <-c.workersDone.Done():
			return
		case job := <-c.eventQueue:
			job()
		}
	}
}

func (c *Client) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logError("event subscriber panic", fmt.Errorf("%v", r))
		}
	}()
	fn()
}

// OnFeedback registers an observer for R-Bus feedback.
// The returned function unsubscribes.
func (c *Client) OnFeedback(fn func(FeedbackEvent)) func() {
	return c.feedbackSubs.add(fn)
}

// OnStatusChanged registers an observer for X-Bus status changes.
func (c *Client) OnStatusChanged(fn func(BusStatus)) func() {
	return c.statusSubs.add(fn)
}

// OnSystemState registers an observer for system state telemetry.
func (c *Client) OnSystemState(fn func(SystemTelemetry)) func() {
	return c.systemSubs.add(fn)
}

// OnVersionInfo registers an observer for serial number and hardware info.
func (c *Client) OnVersionInfo(fn func(VersionInfo)) func() {
	return c.versionSubs.add(fn)
}

// OnConnectionChanged registers an observer for connect/disconnect transitions.
func (c *Client) OnConnectionChanged(fn func(bool)) func() {
	return c.connSubs.add(fn)
}

// State returns the connection state.
func (c *Client) State() ConnectionState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// IsConnected reports whether the client is in the Connected state.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Confirmed reports whether the station has answered since Connect.
func (c *Client) Confirmed() bool {
	return c.confirmed.Load()
}

// Status returns the last decoded bus status.
func (c *Client) Status() BusStatus {
	c.dataMu.RLock()
	defer c.dataMu.RUnlock()
	return c.status
}

// SystemState returns the last decoded system telemetry.
func (c *Client) SystemState() SystemTelemetry {
	c.dataMu.RLock()
	defer c.dataMu.RUnlock()
	return c.telemetry
}

// VersionInfo returns the identification data received so far.
func (c *Client) VersionInfo() VersionInfo {
	c.dataMu.RLock()
	defer c.dataMu.RUnlock()
	return c.version
}

// Stats returns current operational statistics.
func (c *Client) Stats() ClientStats {
	c.stateMu.Lock()
	state, addr := c.state, c.addr
	c.stateMu.Unlock()

	var last time.Time
	if ns := c.lastActivity.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}

	return ClientStats{
		State:             state,
		Confirmed:         c.confirmed.Load(),
		Address:           addr,
		CommandsTx:        c.commandsTx.Load(),
		DatagramsRx:       c.datagramsRx.Load(),
		FeedbackRx:        c.feedbackRx.Load(),
		EventsDropped:     c.eventsDropped.Load(),
		UnknownRx:         c.unknownRx.Load(),
		SendErrors:        c.sendErrors.Load(),
		KeepaliveFailures: c.keepaliveFailures.Load(),
		LastActivity:      last,
	}
}

// HealthCheck returns ErrNotConnected unless the client is connected.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("z21 health check: %w", ctx.Err())
	default:
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// sleepCtx waits for d or until ctx is done. It reports whether d elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logError(msg string, err error) {
	if l := c.getLogger(); l != nil {
		l.Error(msg, "error", err)
	}
}
