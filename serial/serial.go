// Package serial opens Mk0 serial ports and enumerates candidates.
package serial

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// DefaultBaudRate is the Mk0 firmware UART rate.
const DefaultBaudRate = 115200

// DefaultReadTimeout bounds each blocking read so cancellation is observed
// even on drivers where Close does not interrupt a pending read.
const DefaultReadTimeout = time.Second

// ErrNoPorts is returned when no serial ports are present.
var ErrNoPorts = errors.New("no serial ports found")

// PortInfo describes one enumerated port.
type PortInfo struct {
	Index       int
	Device      string
	Description string
}

// Enumerate lists detailed port information. Replaced in tests.
var Enumerate = enumerator.GetDetailedPortsList

// ListPorts returns the available ports sorted by device name and numbered
// from zero.
func ListPorts() ([]PortInfo, error) {
	details, err := Enumerate()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	if len(details) == 0 {
		return nil, ErrNoPorts
	}
	sort.Slice(details, func(i, j int) bool { return details[i].Name < details[j].Name })

	ports := make([]PortInfo, len(details))
	for i, d := range details {
		ports[i] = PortInfo{Index: i, Device: d.Name, Description: describe(d)}
	}
	return ports, nil
}

func describe(d *enumerator.PortDetails) string {
	switch {
	case d.Product != "":
		return d.Product
	case d.IsUSB:
		return fmt.Sprintf("USB VID:PID=%s:%s", d.VID, d.PID)
	default:
		return "n/a"
	}
}

// Open opens name in 8N1 mode at baud. A zero readTimeout blocks reads
// until data arrives.
func Open(name string, baud int, readTimeout time.Duration) (serial.Port, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if readTimeout > 0 {
		if err := port.SetReadTimeout(readTimeout); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
		}
	}
	return port, nil
}
