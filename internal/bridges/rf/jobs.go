package rf

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
	"github.com/nerrad567/gray-logic-rfbridge/internal/protocol/culfw"
	"github.com/nerrad567/gray-logic-rfbridge/internal/protocol/onewire"
)

// startJobs launches the event loop and the scheduled writers enabled for
// the bridge's protocol. Every writer goes through the write gate.
func (b *Bridge) startJobs() {
	b.wg.Add(1)
	go b.eventLoop()

	if b.fhtEnabled() {
		if d := b.cfg.GetReportPingInterval(); d > 0 {
			b.runEvery(d, "fht report ping", b.reportPing)
		}
		if d := b.cfg.GetDebugInterval(); d > 0 && b.cfg.Serial.LogTraffic {
			b.runEvery(d, "debug request", b.requestDebugInfo)
		}
	}

	if p, ok := b.protocol.(Poller); ok {
		if d := b.cfg.GetPollInterval(); d > 0 {
			b.runEvery(d, "sensor poll", func(ctx context.Context) error {
				return b.poll(ctx, p)
			})
		}
	}
}

// eventLoop serves work that must not run on the reader goroutine or
// under the write gate.
func (b *Bridge) eventLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-b.healthKick:
			if err := b.health.PublishNow(); err != nil {
				b.logError("failed to publish health", err)
			}
		case <-b.debugKick:
			if err := b.requestDebugInfo(b.ctx); err != nil {
				b.logError("debug request failed", err)
			}
		}
	}
}

func (b *Bridge) runEvery(interval time.Duration, name string, fn func(ctx context.Context) error) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-b.ctx.Done():
				return
			case <-ticker.C:
				if err := fn(b.ctx); err != nil && !errors.Is(err, context.Canceled) {
					b.logError(name+" failed", err)
				}
			}
		}
	}()
}

func (b *Bridge) fhtEnabled() bool {
	return b.protocol.Name() == ProtocolCUL && slices.Contains(b.protocol.Families(), core.FamilyFHT)
}

// reportPing sets the clock of every registered FHT80b and asks it to
// report its state. Without this the devices fall silent after a while.
func (b *Bridge) reportPing(ctx context.Context) error {
	if b.State() != core.StateOpen {
		return nil
	}

	var errs []error
	for _, addr := range b.router.Registry().AddressesOf(core.FamilyFHT) {
		for _, cmd := range []string{culfw.CmdSetClock, culfw.CmdInitReporting} {
			if err := b.SendCommand(ctx, addr, cmd, nil); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// requestDebugInfo asks the transceiver for its version and FHT buffer so
// they show up in the traffic log.
func (b *Bridge) requestDebugInfo(_ context.Context) error {
	dr, ok := b.protocol.(DebugRequester)
	if !ok || b.State() != core.StateOpen {
		return nil
	}
	return b.controller.Write(dr.DebugRequest()...)
}

// poll reads every registered sensor. While a discovery scan runs, sensors
// found by bus searches are read too so they surface as candidates.
func (b *Bridge) poll(ctx context.Context, p Poller) error {
	if b.State() != core.StateOpen {
		return nil
	}

	targets := b.router.Registry().AddressesOf(core.FamilyOneWire)
	err := p.Poll(ctx, b.controller.Write, targets, b.DiscoveryActive())
	if errors.Is(err, onewire.ErrNoReading) {
		b.logWarn("sensors did not answer", "bridge_id", b.cfg.Bridge.ID, "error", err)
		return nil
	}
	return err
}
