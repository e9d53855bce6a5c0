package api

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/rf"
	"github.com/nerrad567/gray-logic-rfbridge/internal/infrastructure/mqtt"
)

const metricsNamespace = "rfbridge"

// bridgeMetric reads one value from a bridge metrics snapshot.
type bridgeMetric struct {
	name  string
	help  string
	value func(m rf.BridgeMetrics) float64
}

var bridgeCounters = []bridgeMetric{
	{"frames_received_total", "Frames read from the transceiver.",
		func(m rf.BridgeMetrics) float64 { return float64(m.Controller.FramesRx) }},
	{"frames_sent_total", "Frames written to the transceiver.",
		func(m rf.BridgeMetrics) float64 { return float64(m.Controller.FramesTx) }},
	{"write_errors_total", "Failed frame writes.",
		func(m rf.BridgeMetrics) float64 { return float64(m.Controller.WriteErrors) }},
	{"decode_errors_total", "Frames whose decoding panicked.",
		func(m rf.BridgeMetrics) float64 { return float64(m.Controller.DecodeErrors) }},
	{"recoveries_total", "Successful reopens after a communication fault.",
		func(m rf.BridgeMetrics) float64 { return float64(m.Controller.Recoveries) }},
	{"recovery_failures_total", "Recoveries that left the connection faulted.",
		func(m rf.BridgeMetrics) float64 { return float64(m.Controller.RecoveryFailures) }},
	{"messages_routed_total", "Device messages delivered to a registered handler.",
		func(m rf.BridgeMetrics) float64 { return float64(m.Router.Routed) }},
	{"messages_unroutable_total", "Device messages with no handler outside discovery.",
		func(m rf.BridgeMetrics) float64 { return float64(m.Router.Unroutable) }},
	{"echoes_dropped_total", "FHT frames sent by the bridge and heard back.",
		func(m rf.BridgeMetrics) float64 { return float64(m.Router.EchoesDropped) }},
	{"handler_errors_total", "Handler errors and recovered handler panics.",
		func(m rf.BridgeMetrics) float64 { return float64(m.Router.HandlerErrors) }},
	{"commands_sent_total", "Device commands written.",
		func(m rf.BridgeMetrics) float64 { return float64(m.CommandsSent) }},
	{"command_errors_total", "Device commands that failed.",
		func(m rf.BridgeMetrics) float64 { return float64(m.CommandErrors) }},
	{"discovery_candidates_total", "Candidates reported by discovery scans.",
		func(m rf.BridgeMetrics) float64 { return float64(m.Discovered) }},
}

var bridgeGauges = []bridgeMetric{
	{"connected", "1 when the serial connection is open.",
		func(m rf.BridgeMetrics) float64 { return boolGauge(m.Connected) }},
	{"devices", "Registered devices.",
		func(m rf.BridgeMetrics) float64 { return float64(m.DevicesManaged) }},
	{"discovery_active", "1 while a discovery scan runs.",
		func(m rf.BridgeMetrics) float64 { return boolGauge(m.DiscoveryActive) }},
	{"signal_strength_dbm", "RSSI of the last received frame, NaN before the first.",
		func(m rf.BridgeMetrics) float64 {
			if m.SignalStrength == nil {
				return math.NaN()
			}
			return *m.SignalStrength
		}},
}

// newMetricsRegistry builds a registry exposing the Go runtime, the
// WebSocket hub, the MQTT link when broker is set, and one labelled series
// per bridge and counter.
func newMetricsRegistry(bridges []Bridge, hub *Hub, broker Broker) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()

	collectorsToRegister := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients.",
		}, func() float64 { return float64(hub.ClientCount()) }),
	}

	if broker != nil {
		collectorsToRegister = append(collectorsToRegister, brokerCollectors(broker)...)
	}

	for _, b := range bridges {
		labels := prometheus.Labels{"bridge": b.ID(), "protocol": b.ProtocolName()}

		for _, m := range bridgeCounters {
			collectorsToRegister = append(collectorsToRegister, prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace:   metricsNamespace,
				Name:        m.name,
				Help:        m.help,
				ConstLabels: labels,
			}, snapshotValue(b, m.value)))
		}
		for _, m := range bridgeGauges {
			collectorsToRegister = append(collectorsToRegister, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace:   metricsNamespace,
				Name:        m.name,
				Help:        m.help,
				ConstLabels: labels,
			}, snapshotValue(b, m.value)))
		}
	}

	for _, c := range collectorsToRegister {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func brokerCollectors(broker Broker) []prometheus.Collector {
	counter := func(name, help string, value func(mqtt.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "mqtt",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(broker.Stats())) })
	}
	return []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "mqtt",
			Name:      "connected",
			Help:      "1 while the broker connection is up.",
		}, func() float64 { return boolGauge(broker.IsConnected()) }),
		counter("messages_received_total", "Commands and requests received.",
			func(s mqtt.Stats) uint64 { return s.Received }),
		counter("handler_failures_total", "Received messages whose handler failed.",
			func(s mqtt.Stats) uint64 { return s.HandlerFailures }),
		counter("publish_failures_total", "Publishes the broker did not accept.",
			func(s mqtt.Stats) uint64 { return s.PublishFailures }),
	}
}

func snapshotValue(b Bridge, value func(rf.BridgeMetrics) float64) func() float64 {
	return func() float64 { return value(b.GetMetrics()) }
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
