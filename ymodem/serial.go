package ymodem

import (
	"context"
	"time"

	"go.bug.st/serial"
)

// serialPollInterval bounds a single blocking read so that context
// cancellation is noticed during long handshake timeouts.
const serialPollInterval = 250 * time.Millisecond

// SerialChannel is a Channel over an open serial port.
type SerialChannel struct {
	port    serial.Port
	rbuf    []byte
	pending []byte
}

// NewSerialChannel wraps an already opened port.
func NewSerialChannel(port serial.Port) *SerialChannel {
	return &SerialChannel{
		port: port,
		rbuf: make([]byte, 256),
	}
}

// OpenSerial opens portName at baud, 8N1, and wraps it.
func OpenSerial(portName string, baud int) (*SerialChannel, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, wrapError(ErrChannelIO, "open "+portName, err)
	}
	return NewSerialChannel(port), nil
}

func (c *SerialChannel) Write(p []byte) (int, error) {
	n, err := writeAll(c.port, p)
	if err != nil {
		return n, err
	}
	return n, c.port.Drain()
}

func (c *SerialChannel) ReadByte(ctx context.Context, timeout time.Duration) (byte, error) {
	deadline := time.Now().Add(timeout)
	for len(c.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, ErrReadTimeout
		}
		if remaining > serialPollInterval {
			remaining = serialPollInterval
		}
		if err := c.port.SetReadTimeout(remaining); err != nil {
			return 0, err
		}

		// go.bug.st/serial returns 0, nil when the read timeout expires
		n, err := c.port.Read(c.rbuf)
		if err != nil {
			return 0, err
		}
		c.pending = c.rbuf[:n]
	}

	b := c.pending[0]
	c.pending = c.pending[1:]
	return b, nil
}

func (c *SerialChannel) Purge(ctx context.Context) error {
	c.pending = nil
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.port.ResetInputBuffer()
}

// Close closes the port.
func (c *SerialChannel) Close() error {
	return c.port.Close()
}
