// Package mqtt provides the MQTT client shared by the RF bridges.
//
// It wraps paho.mqtt.golang with:
//   - auto-reconnect and subscription restore
//   - a retained online/offline status per process, with an LWT
//   - panic recovery around message handlers
//   - topic builders for device state, commands, acks, bridge health,
//     discovery and requests
//
// Device topics are keyed by protocol family and hex address:
//
//	graylogic/state/fht/4321
//	graylogic/command/evohome/067aec
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.DeviceCommands("fht"), 1,
//	    func(topic string, payload []byte) error {
//	        return bridge.HandleCommand(topic, payload)
//	    })
package mqtt
