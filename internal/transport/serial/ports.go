package serial

import (
	"fmt"
	"sort"

	goserial "go.bug.st/serial"
)

// listPorts is replaced in tests.
var listPorts = goserial.GetPortsList

// ListPorts returns the serial port paths present on this host, sorted.
func ListPorts() ([]string, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("listing serial ports: %w", err)
	}
	sort.Strings(ports)
	return ports, nil
}
