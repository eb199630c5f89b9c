package modem

import (
	"io"
	"time"

	"go.bug.st/serial"
)

// Transport is an established byte stream to the modem. Reads must honor
// the configured read timeout by returning (0, nil) when no byte arrived,
// which is exactly what go.bug.st/serial ports do.
type Transport interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Dialer opens a Transport to the modem. It abstracts how the connection
// is created (serial port, emulator, test double) and is only used during
// session construction.
type Dialer interface {
	Dial() (Transport, error)
}

// SerialDialer opens the modem UART with go.bug.st/serial.
// The SIM7000 must be pre-provisioned to a fixed baudrate (AT+IPR=9600,
// ATE0, AT&W) so it comes up at this speed with echo off.
type SerialDialer struct {
	Port string
	Baud int
}

func (d SerialDialer) Dial() (Transport, error) {
	mode := &serial.Mode{
		BaudRate: d.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(d.Port, mode)
	if err != nil {
		return nil, err
	}

	// serial.Port satisfies Transport directly
	return port, nil
}

// DTRPin is the GPIO output wired to the modem DTR/SLEEP pin.
// HIGH allows the modem to sleep, LOW forces it awake. The modem needs
// DTR held LOW for at least 50ms before it accepts bytes again.
type DTRPin interface {
	High() error
	Low() error
}

// NopPin is for boards that dont have the DTR line wired. Sleep commands
// are still issued but the modem wakes on UART activity alone.
type NopPin struct{}

func (NopPin) High() error { return nil }
func (NopPin) Low() error  { return nil }

// Clock abstracts wall-clock time so the long waits of the supervisor
// loops (network scan, flight-mode backoff, tracking pacing) are testable.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the Clock used outside of tests.
type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }
