package core

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// RouterStats holds routing counters.
type RouterStats struct {
	Routed        uint64 // messages delivered to a handler
	Unroutable    uint64 // messages routed to nobody (no handler, discovery inactive)
	Offered       uint64 // messages passed to the discovery relay
	EchoesDropped uint64 // bridge-originated FHT frames discarded
	HandlerErrors uint64 // handler errors and recovered panics
	Diagnostics   uint64 // side events seen
}

// Router is the decoder callback. It routes each device message to the
// handler registered for its address, or to the discovery relay.
type Router struct {
	registry *DeviceRegistry
	relay    *DiscoveryRelay

	diag   DiagnosticSink
	diagMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex

	routed        atomic.Uint64
	unroutable    atomic.Uint64
	offered       atomic.Uint64
	echoesDropped atomic.Uint64
	handlerErrors atomic.Uint64
	diagnostics   atomic.Uint64
}

// NewRouter creates a router over registry and relay.
func NewRouter(registry *DeviceRegistry, relay *DiscoveryRelay) *Router {
	if registry == nil {
		registry = NewDeviceRegistry()
	}
	if relay == nil {
		relay = NewDiscoveryRelay()
	}
	return &Router{registry: registry, relay: relay}
}

// Registry returns the device registry the router looks handlers up in.
func (r *Router) Registry() *DeviceRegistry { return r.registry }

// Relay returns the discovery relay used for unmatched messages.
func (r *Router) Relay() *DiscoveryRelay { return r.relay }

// SetDiagnosticSink sets the optional receiver of side events.
func (r *Router) SetDiagnosticSink(sink DiagnosticSink) {
	r.diagMu.Lock()
	r.diag = sink
	r.diagMu.Unlock()
}

// SetLogger sets the logger for this router.
func (r *Router) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// Dispatch routes one decoded event. It never panics and never blocks on
// I/O other than what handlers and sinks do themselves.
func (r *Router) Dispatch(ev Event) {
	switch e := ev.(type) {
	case FHTMessage:
		r.dispatchFHT(e)
	case FHT80TFMessage:
		r.route(e)
	case EvoHomeMessage:
		r.route(e)
	case EMMessage:
		r.route(e)
	case HMSMessage:
		r.route(e)
	case OneWireMessage:
		r.route(e)
	case SignalStrength, RawFrame, BufferMarker, DecodeFault:
		r.diagnostic(e)
	case nil:
		return
	default:
		r.logDebug("dropping unsupported event", "type", fmt.Sprintf("%T", ev))
	}
}

// dispatchFHT discards frames the bridge sent itself and keeps partial
// frames away from handlers. A partial frame of a registered device is not
// a discovery candidate either.
func (r *Router) dispatchFHT(m FHTMessage) {
	if m.Direction == FromBridge {
		r.echoesDropped.Add(1)
		return
	}
	if m.Partial {
		if _, ok := r.registry.Lookup(m.Address()); ok {
			r.unroutable.Add(1)
			return
		}
		r.unmatched(m)
		return
	}
	r.route(m)
}

func (r *Router) route(msg DeviceMessage) {
	h, ok := r.registry.Lookup(msg.Address())
	if !ok {
		r.unmatched(msg)
		return
	}
	r.deliver(h, msg)
	r.routed.Add(1)
}

func (r *Router) unmatched(msg DeviceMessage) {
	if r.relay.Offer(msg) {
		r.offered.Add(1)
		return
	}
	r.unroutable.Add(1)
	r.logDebug("no handler for device", "address", msg.Address().String(), "kind", msg.Kind())
}

// deliver calls the handler, containing errors and panics.
func (r *Router) deliver(h Handler, msg DeviceMessage) {
	defer func() {
		if p := recover(); p != nil {
			r.handlerErrors.Add(1)
			r.logError("device handler panic", fmt.Errorf("%v", p), "address", msg.Address().String())
		}
	}()
	if err := h.Update(msg); err != nil {
		r.handlerErrors.Add(1)
		r.logError("device handler failed", err, "address", msg.Address().String())
	}
}

func (r *Router) diagnostic(ev Event) {
	r.diagnostics.Add(1)

	r.diagMu.RLock()
	sink := r.diag
	r.diagMu.RUnlock()
	if sink == nil {
		return
	}

	defer func() {
		if p := recover(); p != nil {
			r.logError("diagnostic sink panic", fmt.Errorf("%v", p))
		}
	}()
	sink.OnDiagnostic(ev)
}

// Stats returns a snapshot of the routing counters.
func (r *Router) Stats() RouterStats {
	return RouterStats{
		Routed:        r.routed.Load(),
		Unroutable:    r.unroutable.Load(),
		Offered:       r.offered.Load(),
		EchoesDropped: r.echoesDropped.Load(),
		HandlerErrors: r.handlerErrors.Load(),
		Diagnostics:   r.diagnostics.Load(),
	}
}

func (r *Router) logDebug(msg string, keysAndValues ...any) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (r *Router) logError(msg string, err error, keysAndValues ...any) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
