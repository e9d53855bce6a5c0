package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Default timings for the controller.
const (
	// defaultBackoff is the wait between closing a faulted connection and
	// reopening it.
	defaultBackoff = 5 * time.Second

	// defaultReadTimeout bounds each ReadFrame call so the reader notices
	// shutdown promptly.
	defaultReadTimeout = time.Second

	// defaultOpenTimeout bounds opening the transport plus the init sequence.
	defaultOpenTimeout = 10 * time.Second
)

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	Transport Transport
	Port      string
	Speed     int

	// NewDecoder creates the decoder paired with each new connection.
	NewDecoder func() Decoder

	// Init replays the protocol initialisation sequence on a freshly opened
	// connection. It runs under the write gate. Optional.
	Init func(ctx context.Context, conn Connection) error

	Router *Router
	Status StatusSink // optional

	Backoff     time.Duration // default 5s
	ReadTimeout time.Duration // default 1s
	OpenTimeout time.Duration // default 10s
}

// ControllerStats holds connection statistics.
type ControllerStats struct {
	State            ConnectionState
	FramesRx         uint64
	FramesTx         uint64
	ReadErrors       uint64 // read faults that started a recovery
	WriteErrors      uint64
	DecodeErrors     uint64 // recovered decoder panics
	ReopenAttempts   uint64
	Recoveries       uint64 // successful reopens after a fault
	RecoveryFailures uint64 // reopens that ended in Faulted
	LastActivity     time.Time
}

// Controller owns the bridge connection. It opens the transport, runs the
// reader goroutine and, on a read fault, replaces the connection while
// holding the write gate.
type Controller struct {
	cfg    ControllerConfig
	gate   WriteGate
	router *Router

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	disposeOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex

	framesRx         atomic.Uint64
	framesTx         atomic.Uint64
	readErrors       atomic.Uint64
	writeErrors      atomic.Uint64
	decodeErrors     atomic.Uint64
	reopenAttempts   atomic.Uint64
	recoveries       atomic.Uint64
	recoveryFailures atomic.Uint64
	lastActivity     atomic.Int64
}

// NewController validates cfg and creates a controller in state Closed.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Transport == nil {
		return nil, errors.New("transport is required")
	}
	if cfg.NewDecoder == nil {
		return nil, errors.New("decoder factory is required")
	}
	if cfg.Router == nil {
		return nil, errors.New("router is required")
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaultOpenTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		cfg:    cfg,
		router: cfg.Router,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Initialize opens the transport, replays the init sequence and starts the
// reader. It is valid from Closed and from Faulted; calling it while Open
// is a no-op.
//
// On failure the controller stays Closed with no connection held and the
// error wraps ErrConnectionFailed.
func (c *Controller) Initialize(ctx context.Context) error {
	c.gate.mu.Lock()
	defer c.gate.mu.Unlock()

	if c.ctx.Err() != nil {
		return ErrDisposed
	}
	if c.gate.state == StateOpen {
		return nil
	}

	c.gate.setStateLocked(StateOpening)
	a, err := c.open(ctx)
	if err != nil {
		c.gate.adapter = nil
		c.gate.setStateLocked(StateClosed)
		c.report(Offline("connection failed: " + err.Error()))
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.gate.adapter = a
	c.gate.setStateLocked(StateOpen)
	c.report(Online)
	c.logInfo("connection open", "port", c.cfg.Port, "speed", c.cfg.Speed)

	c.wg.Add(1)
	go c.readLoop(a)
	return nil
}

// open creates a new adapter. The caller must hold the gate.
func (c *Controller) open(ctx context.Context) (*adapter, error) {
	openCtx, cancel := context.WithTimeout(ctx, c.cfg.OpenTimeout)
	defer cancel()

	conn, err := c.cfg.Transport.Open(openCtx, c.cfg.Port, c.cfg.Speed)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.cfg.Port, err)
	}

	if c.cfg.Init != nil {
		if err := c.cfg.Init(openCtx, conn); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("init sequence: %w", err)
		}
	}

	c.lastActivity.Store(time.Now().Unix())
	return &adapter{conn: conn, decoder: c.cfg.NewDecoder()}, nil
}

// readLoop is the only goroutine that reads from the connection and the
// only one that starts a recovery.
func (c *Controller) readLoop(a *adapter) {
	defer c.wg.Done()

	for {
		if c.ctx.Err() != nil {
			return
		}

		frame, err := a.conn.ReadFrame(c.cfg.ReadTimeout)
		if err != nil {
			if errors.Is(err, ErrReadTimeout) {
				continue
			}
			if c.ctx.Err() != nil {
				return
			}
			next := c.recoverConnection(a, err)
			if next == nil {
				return
			}
			a = next
			continue
		}

		c.framesRx.Add(1)
		c.lastActivity.Store(time.Now().Unix())
		c.decode(a.decoder, frame)
	}
}

// decode runs the decoder, containing panics so a bad frame cannot kill
// the reader.
func (c *Controller) decode(d Decoder, frame []byte) {
	defer func() {
		if p := recover(); p != nil {
			c.decodeErrors.Add(1)
			c.logError("decoder panic", fmt.Errorf("%v", p), "frame", string(frame))
		}
	}()
	d.Decode(frame, c.router.Dispatch)
}

// recoverConnection replaces a faulted connection. It holds the write gate
// for the whole close, backoff, reopen and init sequence and makes exactly
// one reopen attempt. It returns the new adapter, or nil when the reader
// should stop.
func (c *Controller) recoverConnection(faulted *adapter, cause error) *adapter {
	c.gate.mu.Lock()
	defer c.gate.mu.Unlock()

	// Someone else already replaced or released this connection.
	if c.gate.adapter != faulted {
		return nil
	}

	c.readErrors.Add(1)
	c.logError("read failed, recovering connection", cause, "backoff", c.cfg.Backoff.String())
	c.gate.setStateLocked(StateOpening)
	c.report(Offline("recovering: " + cause.Error()))

	_ = faulted.conn.Close()
	c.gate.adapter = nil

	if !c.sleep(c.cfg.Backoff) {
		c.gate.setStateLocked(StateClosed)
		return nil
	}

	c.reopenAttempts.Add(1)
	a, err := c.open(c.ctx)
	if err != nil {
		if c.ctx.Err() != nil {
			c.gate.setStateLocked(StateClosed)
			return nil
		}
		c.recoveryFailures.Add(1)
		c.gate.setStateLocked(StateFaulted)
		c.report(Offline("communication error: " + err.Error()))
		c.logError("reopen failed, connection faulted", err)
		return nil
	}

	c.gate.adapter = a
	c.gate.setStateLocked(StateOpen)
	c.recoveries.Add(1)
	c.report(Online)
	c.logInfo("connection recovered", "recoveries", c.recoveries.Load())
	return a
}

// sleep waits d or until the controller is disposed. It reports whether
// the full wait elapsed.
func (c *Controller) sleep(d time.Duration) bool {
	if d <= 0 {
		return c.ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-c.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// WithLock runs fn with exclusive access to the open connection. See
// WriteGate.WithLock.
func (c *Controller) WithLock(fn func(conn Connection) error) error {
	return c.gate.WithLock(fn)
}

// Write sends frames in order under the write gate. The first failing
// write aborts the rest and is returned to the caller.
func (c *Controller) Write(frames ...[]byte) error {
	return c.gate.WithLock(func(conn Connection) error {
		for _, f := range frames {
			if err := conn.Write(f); err != nil {
				c.writeErrors.Add(1)
				return err
			}
			c.framesTx.Add(1)
		}
		c.lastActivity.Store(time.Now().Unix())
		return nil
	})
}

// ReplayInit runs the init sequence again on the open connection.
func (c *Controller) ReplayInit(ctx context.Context) error {
	if c.cfg.Init == nil {
		return nil
	}
	return c.gate.WithLock(func(conn Connection) error {
		return c.cfg.Init(ctx, conn)
	})
}

// State returns the current connection state.
func (c *Controller) State() ConnectionState {
	return c.gate.State()
}

// Router returns the router fed by this controller.
func (c *Controller) Router() *Router {
	return c.router
}

// Dispose shuts the controller down for good. It cancels any pending
// backoff, closes and releases the connection, waits for the reader and
// clears the device registry. Safe to call multiple times.
func (c *Controller) Dispose() {
	c.disposeOnce.Do(func() {
		c.cancel()

		c.gate.mu.Lock()
		if c.gate.adapter != nil {
			_ = c.gate.adapter.conn.Close()
			c.gate.adapter = nil
		}
		c.gate.setStateLocked(StateClosed)
		c.gate.mu.Unlock()

		c.wg.Wait()

		c.router.Relay().SetInactive()
		c.router.Registry().Clear()
		c.report(Offline("disposed"))
		c.logInfo("controller disposed")
	})
}

// Stats returns current connection statistics.
func (c *Controller) Stats() ControllerStats {
	return ControllerStats{
		State:            c.State(),
		FramesRx:         c.framesRx.Load(),
		FramesTx:         c.framesTx.Load(),
		ReadErrors:       c.readErrors.Load(),
		WriteErrors:      c.writeErrors.Load(),
		DecodeErrors:     c.decodeErrors.Load(),
		ReopenAttempts:   c.reopenAttempts.Load(),
		Recoveries:       c.recoveries.Load(),
		RecoveryFailures: c.recoveryFailures.Load(),
		LastActivity:     time.Unix(c.lastActivity.Load(), 0),
	}
}

// SetLogger sets the logger for this controller.
func (c *Controller) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// report forwards a status transition to the status sink.
func (c *Controller) report(s Status) {
	if c.cfg.Status == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			c.logError("status sink panic", fmt.Errorf("%v", p))
		}
	}()
	c.cfg.Status.SetStatus(s)
}

func (c *Controller) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *Controller) logError(msg string, err error, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
