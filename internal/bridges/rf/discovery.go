package rf

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
	"github.com/nerrad567/gray-logic-rfbridge/internal/discovery"
)

// recordTimeout bounds one candidate write to the discovery store.
const recordTimeout = 2 * time.Second

// CandidateStore persists discovery candidates.
// Satisfied by *discovery.Store.
type CandidateStore interface {
	Record(ctx context.Context, c discovery.Candidate) error
}

// Broadcaster pushes events to live clients.
// Satisfied by the API websocket hub.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Broadcast channels.
const (
	BroadcastState     = "state"
	BroadcastDiscovery = "discovery"
	BroadcastHealth    = "health"
)

// Label returns a display name for a device heard during a scan.
func Label(addr core.DeviceAddress, hint string) string {
	switch addr.Family {
	case core.FamilyFHT:
		return "FHT80b " + addr.Hex()
	case core.FamilyFHT80TF:
		return fmt.Sprintf("FHT80 TF 0x%06x", addr.ID)
	case core.FamilyEvoHome:
		switch hint {
		case core.EvoHomeRadiatorController:
			return fmt.Sprintf("EvoHome Radiator 0x%06x", addr.ID)
		case core.EvoHomeSingleZoneThermostat:
			return fmt.Sprintf("EvoHome Single Zone Thermostat 0x%06x", addr.ID)
		case core.EvoHomeMultiZoneController:
			return fmt.Sprintf("EvoHome Multi Zone Controller 0x%06x", addr.ID)
		default:
			return fmt.Sprintf("EvoHome Device 0x%06x", addr.ID)
		}
	case core.FamilyEM:
		return "EM 1000 EM " + addr.Hex()
	case core.FamilyHMS:
		return "HMS 100 TF " + addr.Hex()
	case core.FamilyOneWire:
		if hint == core.KindOneWireHumidity {
			return "OneWire Humidity " + addr.Hex()
		}
		return "OneWire Temperature " + addr.Hex()
	default:
		return addr.String()
	}
}

// candidateSink fans candidates out to MQTT, the store and live clients.
// It implements core.CandidateSink.
type candidateSink struct {
	b *Bridge
}

// OnCandidate is called by the discovery relay from the reader goroutine.
// Store writes are bounded so a slow database cannot stall decoding for long.
func (s candidateSink) OnCandidate(addr core.DeviceAddress, hint string) {
	b := s.b
	now := time.Now().UTC()
	label := Label(addr, hint)

	b.discoveredTotal.Add(1)
	b.logInfo("discovery candidate",
		"address", addr.String(),
		"hint", hint,
		"label", label)

	device := DiscoveredDevice{
		Protocol:      addr.Family.String(),
		Address:       addr.Hex(),
		Type:          hint,
		SuggestedName: label,
	}

	msg := DiscoveryMessage{
		Timestamp: now,
		Bridge:    b.cfg.Bridge.ID,
		Devices:   []DiscoveredDevice{device},
	}
	if payload, err := json.Marshal(msg); err != nil {
		b.logError("failed to marshal discovery message", err)
	} else if err := b.mqtt.Publish(b.topics.BridgeDiscovery(b.cfg.Bridge.ID), payload, 1, false); err != nil {
		b.logError("failed to publish discovery candidate", err)
	}

	if b.store != nil {
		ctx, cancel := context.WithTimeout(b.ctx, recordTimeout)
		err := b.store.Record(ctx, discovery.Candidate{
			Family:   addr.Family.String(),
			Address:  addr.Hex(),
			Bridge:   b.cfg.Bridge.ID,
			Hint:     hint,
			Label:    label,
			LastSeen: now,
		})
		cancel()
		if err != nil {
			b.logError("failed to record discovery candidate", err)
		}
	}

	if b.broadcaster != nil {
		b.broadcaster.Broadcast(BroadcastDiscovery, msg)
	}
}
