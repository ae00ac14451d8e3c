package ymodem

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// ErrReadTimeout is returned by channels when no byte arrives before the
// read deadline. Custom Channel implementations should return it (or an
// error wrapping os.ErrDeadlineExceeded) so the transmitter reports a
// timeout rather than an I/O failure.
var ErrReadTimeout = errors.New("ymodem: read timeout")

// DefaultPurgeTimeout is the line silence that ends an input purge.
const DefaultPurgeTimeout = 50 * time.Millisecond

// Channel is the byte link to the receiver. A transfer owns its channel
// exclusively and uses it from a single goroutine.
type Channel interface {
	// Write writes the whole buffer or returns an error.
	Write(p []byte) (int, error)

	// ReadByte blocks until one byte arrives, the timeout expires, or ctx
	// is done.
	ReadByte(ctx context.Context, timeout time.Duration) (byte, error)

	// Purge discards stale inbound bytes.
	Purge(ctx context.Context) error
}

// ReaderWithTimeout is an interface for reading with timeout support.
// net.Conn and *os.File (pipes, ttys) satisfy it.
type ReaderWithTimeout interface {
	io.Reader
	SetReadDeadline(time.Time) error
}

// isTimeout reports whether err is a read deadline expiry.
func isTimeout(err error) bool {
	if errors.Is(err, ErrReadTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// writeAll writes all bytes in data to w.
func writeAll(w io.Writer, data []byte) (int, error) {
	written := 0
	for written < len(data) {
		n, err := w.Write(data[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}

// deadlineChannel provides buffered single-byte reads over a reader that
// supports read deadlines.
type deadlineChannel struct {
	reader       ReaderWithTimeout
	writer       io.Writer
	rbuf         []byte
	rpos         int
	rleft        int
	purgeTimeout time.Duration
}

// NewChannel creates a Channel over a deadline-capable reader and a writer.
// If reader has a ResetInputBuffer method it is used to purge stale input;
// otherwise input is drained until the line is silent.
func NewChannel(reader ReaderWithTimeout, writer io.Writer) Channel {
	return &deadlineChannel{
		reader:       reader,
		writer:       writer,
		rbuf:         make([]byte, 256),
		purgeTimeout: DefaultPurgeTimeout,
	}
}

func (c *deadlineChannel) Write(p []byte) (int, error) {
	return writeAll(c.writer, p)
}

func (c *deadlineChannel) ReadByte(ctx context.Context, timeout time.Duration) (byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if c.rleft > 0 {
		c.rleft--
		b := c.rbuf[c.rpos]
		c.rpos++
		return b, nil
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.reader.SetReadDeadline(deadline); err != nil {
		return 0, err
	}

	// cancellation expires the deadline so the blocked Read returns
	stop := context.AfterFunc(ctx, func() {
		_ = c.reader.SetReadDeadline(time.Now())
	})
	n, err := c.reader.Read(c.rbuf)
	stop()
	if n == 0 {
		if err == nil {
			return 0, ErrReadTimeout
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, err
	}

	c.rpos = 1
	c.rleft = n - 1
	return c.rbuf[0], nil
}

// SetPurgeTimeout sets the silence window that ends a drain.
func (c *deadlineChannel) SetPurgeTimeout(d time.Duration) {
	c.purgeTimeout = d
}

func (c *deadlineChannel) Purge(ctx context.Context) error {
	c.rpos = 0
	c.rleft = 0

	if r, ok := c.reader.(interface{ ResetInputBuffer() error }); ok {
		return r.ResetInputBuffer()
	}

	// drain until the line is silent for purgeTimeout
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.reader.SetReadDeadline(time.Now().Add(c.purgeTimeout)); err != nil {
			return err
		}
		n, err := c.reader.Read(c.rbuf)
		if err != nil {
			if isTimeout(err) {
				return nil
			}
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// chunk is one read result delivered by the pump goroutine.
type chunk struct {
	data []byte
	err  error
}

// StreamChannel adapts a reader without deadline support (stdin, SSH
// pipes). A pump goroutine reads ahead; ReadByte waits on the pump with a
// timer.
type StreamChannel struct {
	writer       io.Writer
	chunks       chan chunk
	done         chan struct{}
	closeOnce    sync.Once
	pending      []byte
	err          error
	purgeTimeout time.Duration
}

// NewStreamChannel starts pumping reader and returns a channel over it.
// Close stops the pump; it does not close reader or writer.
func NewStreamChannel(reader io.Reader, writer io.Writer) *StreamChannel {
	s := &StreamChannel{
		writer:       writer,
		chunks:       make(chan chunk, 16),
		done:         make(chan struct{}),
		purgeTimeout: DefaultPurgeTimeout,
	}
	go s.pump(reader)
	return s
}

func (s *StreamChannel) pump(reader io.Reader) {
	for {
		buf := make([]byte, 256)
		n, err := reader.Read(buf)
		if n > 0 {
			select {
			case s.chunks <- chunk{data: buf[:n]}:
			case <-s.done:
				return
			}
		}
		if err != nil {
			select {
			case s.chunks <- chunk{err: err}:
			case <-s.done:
			}
			return
		}
	}
}

func (s *StreamChannel) Write(p []byte) (int, error) {
	return writeAll(s.writer, p)
}

func (s *StreamChannel) ReadByte(ctx context.Context, timeout time.Duration) (byte, error) {
	for len(s.pending) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		timer := time.NewTimer(timeout)
		select {
		case c := <-s.chunks:
			timer.Stop()
			if c.err != nil {
				s.err = c.err
				continue
			}
			s.pending = c.data
		case <-timer.C:
			return 0, ErrReadTimeout
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-s.done:
			timer.Stop()
			return 0, io.ErrClosedPipe
		}
	}

	b := s.pending[0]
	s.pending = s.pending[1:]
	return b, nil
}

// SetPurgeTimeout sets the silence window that ends a purge.
func (s *StreamChannel) SetPurgeTimeout(d time.Duration) {
	s.purgeTimeout = d
}

func (s *StreamChannel) Purge(ctx context.Context) error {
	s.pending = nil
	for {
		timer := time.NewTimer(s.purgeTimeout)
		select {
		case c := <-s.chunks:
			timer.Stop()
			if c.err != nil {
				s.err = c.err
				return nil
			}
		case <-timer.C:
			return nil
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Close stops the pump goroutine.
func (s *StreamChannel) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
