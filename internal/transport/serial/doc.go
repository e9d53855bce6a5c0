// Package serial implements the bridge transport over a local serial port.
//
// It opens ports with go.bug.st/serial, splits the inbound byte stream into
// newline-terminated frames and terminates outbound frames with a newline.
// Framing beyond line splitting is left to the protocol decoders.
//
// A Transport can be configured to record every frame it reads or writes to
// a per-connection traffic log:
//
//	<dir>/CUL_<bridge>_<RFC3339 instant>.log.txt
//
// Usage:
//
//	t := serial.NewTransport(serial.PortOptions{DataBits: 8, StopBits: 1, Parity: "N"},
//	    serial.WithTrafficLog("/var/log/graylogic", "cul-1"))
//	conn, err := t.Open(ctx, "/dev/ttyACM0", 38400)
package serial
