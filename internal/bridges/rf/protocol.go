package rf

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
	"github.com/nerrad567/gray-logic-rfbridge/internal/protocol/culfw"
	"github.com/nerrad567/gray-logic-rfbridge/internal/protocol/onewire"
)

// Protocol is the firmware codec a bridge speaks. It is implemented by
// *culfw.Protocol and *onewire.Protocol.
type Protocol interface {
	// Name returns "cul" or "onewire".
	Name() string

	// Families returns the device families the protocol can address.
	Families() []core.Family

	// NewDecoder returns a fresh decoder for a new connection.
	NewDecoder() core.Decoder

	// InitSequence returns the lines written after every (re)open.
	InitSequence() [][]byte

	// EncodeCommand renders a device command into frames.
	EncodeCommand(addr core.DeviceAddress, name string, params map[string]any, now time.Time) ([][]byte, error)
}

// DebugRequester is implemented by protocols that can ask the transceiver
// for diagnostic output.
type DebugRequester interface {
	DebugRequest() [][]byte
}

// Poller is implemented by protocols whose devices must be polled.
type Poller interface {
	Poll(ctx context.Context, write func(frames ...[]byte) error, targets []core.DeviceAddress, discover bool) error
}

// Compile-time checks.
var (
	_ Protocol       = (*culfw.Protocol)(nil)
	_ DebugRequester = (*culfw.Protocol)(nil)
	_ Protocol       = (*onewire.Protocol)(nil)
	_ Poller         = (*onewire.Protocol)(nil)
)

// NewProtocol builds the protocol selected by cfg.Bridge.Protocol.
func NewProtocol(cfg *Config) (Protocol, error) {
	switch cfg.Bridge.Protocol {
	case ProtocolCUL:
		hc, err := cfg.Housecode()
		if err != nil {
			return nil, fmt.Errorf("housecode: %w", err)
		}
		flags := NormalizeProtocols(cfg.Protocols)
		return culfw.New(culfw.Options{
			FHT:       flags.FHT,
			EvoHome:   flags.EvoHome,
			Housecode: hc,
			RSSI:      flags.RSSI,
		}), nil
	case ProtocolOneWire:
		return onewire.New(onewire.Options{
			Tries: cfg.Schedule.PollRetries,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, cfg.Bridge.Protocol)
	}
}

// initFunc returns the controller init hook writing p's init sequence.
func initFunc(p Protocol) func(ctx context.Context, conn core.Connection) error {
	return func(ctx context.Context, conn core.Connection) error {
		for _, line := range p.InitSequence() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := conn.Write(line); err != nil {
				return fmt.Errorf("writing %q: %w", line, err)
			}
		}
		return nil
	}
}
