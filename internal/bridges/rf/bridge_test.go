package rf

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
)

func TestNewBridge_RequiresDependencies(t *testing.T) {
	mqtt := NewMockMQTTClient()
	transport := &fakeTransport{}

	tests := []struct {
		name string
		opts BridgeOptions
	}{
		{"missing config", BridgeOptions{MQTTClient: mqtt, Transport: transport}},
		{"missing mqtt", BridgeOptions{Config: createTestConfig(), Transport: transport}},
		{"missing transport", BridgeOptions{Config: createTestConfig(), MQTTClient: mqtt}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBridge(tt.opts); err == nil {
				t.Error("NewBridge() should fail")
			}
		})
	}
}

func TestNewBridge_UnknownProtocol(t *testing.T) {
	cfg := createTestConfig()
	cfg.Bridge.Protocol = "zigbee"

	_, err := NewBridge(BridgeOptions{Config: cfg, MQTTClient: NewMockMQTTClient(), Transport: &fakeTransport{}})
	if !errors.Is(err, ErrUnknownProtocol) {
		t.Errorf("NewBridge() error = %v, want ErrUnknownProtocol", err)
	}
}

func TestBridge_StartOpensAndSubscribes(t *testing.T) {
	tb := startTestBridge(t, nil)

	if got := tb.State(); got != core.StateOpen {
		t.Fatalf("State() = %v, want open", got)
	}
	if !tb.Status().Online {
		t.Errorf("Status() = %+v, want online", tb.Status())
	}

	subs := tb.mqtt.GetSubscriptions()
	for _, want := range []string{
		"graylogic/command/fht/+",
		"graylogic/command/fht80tf/+",
		"graylogic/command/evohome/+",
		"graylogic/request/cul-test/+",
	} {
		if !slices.Contains(subs, want) {
			t.Errorf("subscriptions %v missing %s", subs, want)
		}
	}

	want := []string{"X21", "T011234", "vr"}
	if got := tb.transport.last().written(); !slices.Equal(got, want) {
		t.Errorf("init writes = %v, want %v", got, want)
	}

	health := tb.mqtt.GetPublished("graylogic/health/cul-test")
	if len(health) < 2 {
		t.Fatalf("health messages = %d, want starting and current", len(health))
	}
	first := decode[HealthMessage](t, health[0].Payload)
	if first.Status != HealthStarting || !health[0].Retained {
		t.Errorf("first health = %+v retained=%v, want retained starting", first, health[0].Retained)
	}
}

func TestBridge_FHTDesiredTemperature(t *testing.T) {
	tb := startTestBridge(t, func(o *BridgeOptions) {
		o.Config.Devices = []DeviceConfig{{ID: "living-room", Name: "Living Room", Family: "fht", Address: "4321"}}
	})
	conn := tb.transport.last()

	conn.feed("T432141692B30")
	waitFor(t, "first routed frame", func() bool { return tb.router.Stats().Routed == 1 })
	conn.feed("T432141692B30")
	waitFor(t, "second routed frame", func() bool { return tb.router.Stats().Routed == 2 })

	d, ok := tb.Device(core.FHTAddress(0x4321))
	if !ok {
		t.Fatal("device not registered")
	}
	if got := d.State()[ChannelDesiredTemperature]; got != 21.5 {
		t.Errorf("desired-temperature = %v, want 21.5", got)
	}

	states := tb.mqtt.GetPublished("graylogic/state/fht/4321")
	if len(states) != 1 {
		t.Fatalf("state messages = %d, want exactly 1", len(states))
	}
	msg := decode[StateMessage](t, states[0].Payload)
	if msg.DeviceID != "living-room" || !slices.Equal(msg.Changed, []string{ChannelDesiredTemperature}) {
		t.Errorf("state message = %+v", msg)
	}
	if !states[0].Retained {
		t.Error("state should be retained")
	}

	if stats := tb.router.Stats(); stats.Offered != 0 || stats.Unroutable != 0 {
		t.Errorf("router stats = %+v, want no discovery traffic", stats)
	}
	if got := len(tb.mqtt.GetPublished("graylogic/discovery/cul-test")); got != 0 {
		t.Errorf("discovery messages = %d, want 0", got)
	}

	if rssi, ok := tb.SignalStrength(); !ok || rssi != -50 {
		t.Errorf("SignalStrength() = %v, %v, want -50", rssi, ok)
	}
	if v, ok := tb.series.find(ChannelDesiredTemperature); !ok || v != 21.5 {
		t.Errorf("time series desired-temperature = %v, %v", v, ok)
	}
	if tb.broadcaster.count(BroadcastState) != 1 {
		t.Errorf("state broadcasts = %d, want 1", tb.broadcaster.count(BroadcastState))
	}
}

func TestBridge_EvoHomeDiscoveryCandidate(t *testing.T) {
	tb := startTestBridge(t, nil)
	conn := tb.transport.last()

	if _, err := tb.StartDiscovery(0); err != nil {
		t.Fatalf("StartDiscovery() error: %v", err)
	}

	conn.feed("v067AEC0430C900080230", "v067AEC0430C900080230")
	waitFor(t, "both frames offered", func() bool { return tb.router.Stats().Offered == 2 })

	msgs := tb.mqtt.GetPublished("graylogic/discovery/cul-test")
	if len(msgs) != 1 {
		t.Fatalf("discovery messages = %d, want exactly 1", len(msgs))
	}
	got := decode[DiscoveryMessage](t, msgs[0].Payload)
	want := DiscoveredDevice{
		Protocol:      "evohome",
		Address:       "067aec",
		Type:          core.EvoHomeRadiatorController,
		SuggestedName: "EvoHome Radiator 0x067aec",
	}
	if len(got.Devices) != 1 || got.Devices[0] != want {
		t.Errorf("discovered = %+v, want %+v", got.Devices, want)
	}

	stored := tb.store.all()
	if len(stored) != 1 || stored[0].Address != "067aec" || stored[0].Bridge != "cul-test" {
		t.Errorf("stored candidates = %+v", stored)
	}
	if tb.GetMetrics().Discovered != 1 {
		t.Errorf("Discovered = %d, want 1", tb.GetMetrics().Discovered)
	}
}

func TestBridge_NoCandidatesWhileDiscoveryInactive(t *testing.T) {
	tb := startTestBridge(t, nil)
	conn := tb.transport.last()

	conn.feed("v067AEC0430C900080230")
	waitFor(t, "frame dropped", func() bool { return tb.router.Stats().Unroutable == 1 })

	if got := len(tb.mqtt.GetPublished("graylogic/discovery/cul-test")); got != 0 {
		t.Errorf("discovery messages = %d, want 0", got)
	}
	if len(tb.store.all()) != 0 {
		t.Error("candidate stored while discovery inactive")
	}
}

func TestBridge_DiscoveryStopsAfterDuration(t *testing.T) {
	tb := startTestBridge(t, nil)

	if _, err := tb.StartDiscovery(20 * time.Millisecond); err != nil {
		t.Fatalf("StartDiscovery() error: %v", err)
	}
	if !tb.DiscoveryActive() {
		t.Fatal("discovery should be active")
	}
	waitFor(t, "scan timeout", func() bool { return !tb.DiscoveryActive() })
	if !tb.DiscoveryUntil().IsZero() {
		t.Errorf("DiscoveryUntil() = %v, want zero", tb.DiscoveryUntil())
	}
}

func TestBridge_CommandAccepted(t *testing.T) {
	tb := startTestBridge(t, func(o *BridgeOptions) {
		o.Config.Devices = []DeviceConfig{{ID: "living-room", Family: "fht", Address: "4321"}}
	})

	tb.mqtt.SimulateMessage("graylogic/command/fht/+", "graylogic/command/fht/4321",
		[]byte(`{"id":"cmd-1","command":"set_desired_temperature","parameters":{"temperature":21.5}}`))

	writes := tb.transport.last().written()
	if writes[len(writes)-1] != "T4321412B" {
		t.Errorf("last write = %s, want T4321412B", writes[len(writes)-1])
	}

	acks := tb.mqtt.GetPublished("graylogic/ack/fht/4321")
	if len(acks) != 1 {
		t.Fatalf("acks = %d, want 1", len(acks))
	}
	ack := decode[AckMessage](t, acks[0].Payload)
	if ack.CommandID != "cmd-1" || ack.Status != AckAccepted || ack.Error != nil {
		t.Errorf("ack = %+v", ack)
	}
	if tb.GetMetrics().CommandsSent != 1 {
		t.Errorf("CommandsSent = %d, want 1", tb.GetMetrics().CommandsSent)
	}
}

func TestBridge_CommandFailures(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		topic    string
		payload  string
		ackTopic string
		wantCode string
	}{
		{
			name:     "unregistered device",
			pattern:  "graylogic/command/fht/+",
			topic:    "graylogic/command/fht/1111",
			payload:  `{"command":"set_clock"}`,
			ackTopic: "graylogic/ack/fht/1111",
			wantCode: ErrCodeNotConfigured,
		},
		{
			name:     "invalid address",
			pattern:  "graylogic/command/fht/+",
			topic:    "graylogic/command/fht/zz",
			payload:  `{"command":"set_clock"}`,
			ackTopic: "graylogic/ack/fht/zz",
			wantCode: ErrCodeInvalidAddress,
		},
		{
			name:     "unknown command",
			pattern:  "graylogic/command/fht/+",
			topic:    "graylogic/command/fht/4321",
			payload:  `{"command":"self_destruct"}`,
			ackTopic: "graylogic/ack/fht/4321",
			wantCode: ErrCodeInvalidCommand,
		},
		{
			name:     "bad parameter",
			pattern:  "graylogic/command/fht/+",
			topic:    "graylogic/command/fht/4321",
			payload:  `{"command":"set_desired_temperature","parameters":{"temperature":40}}`,
			ackTopic: "graylogic/ack/fht/4321",
			wantCode: ErrCodeInvalidParameters,
		},
		{
			name:     "malformed payload",
			pattern:  "graylogic/command/fht/+",
			topic:    "graylogic/command/fht/4321",
			payload:  `{not json`,
			ackTopic: "graylogic/ack/fht/4321",
			wantCode: ErrCodeInvalidCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := startTestBridge(t, func(o *BridgeOptions) {
				o.Config.Devices = []DeviceConfig{{ID: "living-room", Family: "fht", Address: "4321"}}
			})

			tb.mqtt.SimulateMessage(tt.pattern, tt.topic, []byte(tt.payload))

			acks := tb.mqtt.GetPublished(tt.ackTopic)
			if len(acks) != 1 {
				t.Fatalf("acks on %s = %d, want 1", tt.ackTopic, len(acks))
			}
			ack := decode[AckMessage](t, acks[0].Payload)
			if ack.Status != AckFailed || ack.Error == nil || ack.Error.Code != tt.wantCode {
				t.Errorf("ack = %+v, want code %s", ack, tt.wantCode)
			}
			if ack.CommandID == "" {
				t.Error("ack should carry a generated command id")
			}
		})
	}
}

func TestBridge_SendCommandWhileClosed(t *testing.T) {
	tb := startTestBridge(t, func(o *BridgeOptions) {
		o.Transport = &fakeTransport{openErrs: []error{errors.New("no such device")}}
	})

	if got := tb.State(); got != core.StateClosed {
		t.Fatalf("State() = %v, want closed after failed open", got)
	}
	if tb.Status().Online {
		t.Error("Status() should be offline")
	}

	err := tb.SendCommand(context.Background(), core.FHTAddress(0x4321), "set_clock", nil)
	if !errors.Is(err, core.ErrNotConnected) {
		t.Errorf("SendCommand() error = %v, want ErrNotConnected", err)
	}

	if err := tb.Reinitialize(context.Background()); err != nil {
		t.Fatalf("Reinitialize() error: %v", err)
	}
	if got := tb.State(); got != core.StateOpen {
		t.Errorf("State() = %v, want open after reinitialize", got)
	}
	if err := tb.SendCommand(context.Background(), core.FHTAddress(0x4321), "set_clock", nil); err != nil {
		t.Errorf("SendCommand() after reinitialize error: %v", err)
	}
}

func TestBridge_ClearFHTBufferReplaysInit(t *testing.T) {
	tb := startTestBridge(t, nil)
	conn := tb.transport.last()

	if err := tb.SendCommand(context.Background(), core.FHTAddress(0x4321), CmdClearFHTBuffer, nil); err != nil {
		t.Fatalf("SendCommand() error: %v", err)
	}

	want := []string{"X21", "T011234", "vr", "X21", "T011234", "vr"}
	if got := conn.written(); !slices.Equal(got, want) {
		t.Errorf("writes = %v, want %v", got, want)
	}
}

func TestBridge_TrafficLoggingWrapsFHTCommands(t *testing.T) {
	tb := startTestBridge(t, func(o *BridgeOptions) {
		o.Config.Serial.LogTraffic = true
	})
	conn := tb.transport.last()

	if err := tb.SendCommand(context.Background(), core.FHTAddress(0x4321), "init_reporting", nil); err != nil {
		t.Fatalf("SendCommand() error: %v", err)
	}

	writes := conn.written()
	want := []string{"V", "T02", "T432166FF", "V", "T02"}
	if got := writes[len(writes)-len(want):]; !slices.Equal(got, want) {
		t.Errorf("writes = %v, want suffix %v", writes, want)
	}
}

func TestBridge_BufferMarkerRequestsDebugInfo(t *testing.T) {
	tb := startTestBridge(t, func(o *BridgeOptions) {
		o.Config.Serial.LogTraffic = true
	})
	conn := tb.transport.last()

	conn.feed(core.MarkerLimitOverflow)
	waitFor(t, "debug request", func() bool {
		return slices.Contains(conn.written(), "T02")
	})
}

func TestBridge_BufferMarkerIgnoredWithoutTrafficLog(t *testing.T) {
	tb := startTestBridge(t, nil)
	conn := tb.transport.last()

	conn.feed(core.MarkerLimitOverflow, core.MarkerEndOfBuffer)
	waitFor(t, "markers routed", func() bool {
		return tb.GetMetrics().Router.Diagnostics >= 2
	})
	time.Sleep(50 * time.Millisecond)

	if slices.Contains(conn.written(), "T02") {
		t.Errorf("writes = %v, want no debug request without traffic logging", conn.written())
	}
}

func TestBridge_Register(t *testing.T) {
	tb := startTestBridge(t, nil)

	h := core.HandlerFunc(func(core.DeviceMessage) error { return nil })

	if err := tb.Register(core.EvoHomeAddress(0x067aec), h); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := tb.Register(core.EvoHomeAddress(0x067aec), h); !errors.Is(err, core.ErrDuplicateAddress) {
		t.Errorf("duplicate Register() error = %v, want ErrDuplicateAddress", err)
	}
	if err := tb.Register(core.OneWireAddress(1), h); !errors.Is(err, ErrUnsupportedFamily) {
		t.Errorf("Register(onewire) error = %v, want ErrUnsupportedFamily", err)
	}

	tb.Unregister(core.EvoHomeAddress(0x067aec))
	tb.Unregister(core.EvoHomeAddress(0x067aec))
	if tb.DeviceCount() != 0 {
		t.Errorf("DeviceCount() = %d, want 0", tb.DeviceCount())
	}
}

func TestBridge_StartRejectsDuplicateDevices(t *testing.T) {
	cfg := createTestConfig()
	cfg.Devices = []DeviceConfig{
		{ID: "a", Family: "fht", Address: "4321"},
		{ID: "b", Family: "fht", Address: "4321"},
	}
	b, err := NewBridge(BridgeOptions{Config: cfg, MQTTClient: NewMockMQTTClient(), Transport: &fakeTransport{}})
	if err != nil {
		t.Fatalf("NewBridge() error: %v", err)
	}
	defer b.Stop()

	if err := b.Start(context.Background()); !errors.Is(err, core.ErrDuplicateAddress) {
		t.Errorf("Start() error = %v, want ErrDuplicateAddress", err)
	}
}

func TestBridge_Requests(t *testing.T) {
	tb := startTestBridge(t, func(o *BridgeOptions) {
		o.Config.Devices = []DeviceConfig{{ID: "living-room", Family: "fht", Address: "4321"}}
	})
	pattern := "graylogic/request/cul-test/+"

	t.Run("list devices", func(t *testing.T) {
		tb.mqtt.SimulateMessage(pattern, "graylogic/request/cul-test/list_devices", []byte(`{"request_id":"req-1"}`))

		resp := tb.mqtt.GetPublished("graylogic/response/cul-test/req-1")
		if len(resp) != 1 {
			t.Fatalf("responses = %d, want 1", len(resp))
		}
		msg := decode[ResponseMessage](t, resp[0].Payload)
		devices, _ := msg.Data["devices"].([]any)
		if !msg.Success || msg.Action != ActionListDevices || len(devices) != 1 {
			t.Errorf("response = %+v", msg)
		}
	})

	t.Run("discovery start with empty payload", func(t *testing.T) {
		tb.mqtt.SimulateMessage(pattern, "graylogic/request/cul-test/discovery_start", nil)

		resp := tb.mqtt.GetPublishedPrefix("graylogic/response/cul-test/")
		last := decode[ResponseMessage](t, resp[len(resp)-1].Payload)
		if !last.Success || last.RequestID == "" || last.Action != ActionDiscoveryStart {
			t.Errorf("response = %+v", last)
		}
		if !tb.DiscoveryActive() {
			t.Error("discovery should be active")
		}
	})

	t.Run("discovery stop", func(t *testing.T) {
		tb.mqtt.SimulateMessage(pattern, "graylogic/request/cul-test/discovery_stop", []byte(`{"request_id":"req-2"}`))
		if tb.DiscoveryActive() {
			t.Error("discovery should be inactive")
		}
	})

	t.Run("reinitialize while open", func(t *testing.T) {
		tb.mqtt.SimulateMessage(pattern, "graylogic/request/cul-test/reinitialize", []byte(`{"request_id":"req-3"}`))
		msg := decode[ResponseMessage](t, tb.mqtt.GetPublished("graylogic/response/cul-test/req-3")[0].Payload)
		if !msg.Success || msg.Data["state"] != "open" {
			t.Errorf("response = %+v", msg)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		tb.mqtt.SimulateMessage(pattern, "graylogic/request/cul-test/self_destruct", []byte(`{"request_id":"req-4"}`))
		msg := decode[ResponseMessage](t, tb.mqtt.GetPublished("graylogic/response/cul-test/req-4")[0].Payload)
		if msg.Success || msg.Error == nil || msg.Error.Code != ErrCodeInvalidCommand {
			t.Errorf("response = %+v", msg)
		}
	})
}

func TestBridge_StopClosesConnection(t *testing.T) {
	tb := startTestBridge(t, func(o *BridgeOptions) {
		o.Config.Devices = []DeviceConfig{{ID: "living-room", Family: "fht", Address: "4321"}}
	})
	conn := tb.transport.last()

	tb.Stop()
	tb.Stop()

	if got := tb.State(); got != core.StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
	if err := conn.Write([]byte("x")); !errors.Is(err, errConnClosed) {
		t.Error("connection should be closed")
	}
	if tb.DeviceCount() != 0 || len(tb.Devices()) != 0 {
		t.Error("devices should be cleared")
	}

	health := tb.mqtt.GetPublished("graylogic/health/cul-test")
	last := decode[HealthMessage](t, health[len(health)-1].Payload)
	if last.Status != HealthStopping {
		t.Errorf("last health status = %s, want stopping", last.Status)
	}

	if err := tb.SendCommand(context.Background(), core.FHTAddress(0x4321), "set_clock", nil); !errors.Is(err, ErrStopped) {
		t.Errorf("SendCommand() after Stop error = %v, want ErrStopped", err)
	}
	if _, err := tb.StartDiscovery(0); !errors.Is(err, ErrStopped) {
		t.Errorf("StartDiscovery() after Stop error = %v, want ErrStopped", err)
	}
}

func TestCommandErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrDeviceNotRegistered, ErrCodeNotConfigured},
		{ErrUnsupportedFamily, ErrCodeNotConfigured},
		{core.ErrNotConnected, ErrCodeDeviceUnreachable},
		{errors.New("write: broken pipe"), ErrCodeDeviceUnreachable},
		{ErrStopped, ErrCodeBridgeError},
	}
	for _, tt := range tests {
		if got := commandErrorCode(tt.err); got != tt.want {
			t.Errorf("commandErrorCode(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
