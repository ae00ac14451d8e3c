package ymodem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Default transfer parameters
const (
	// DefaultTimeout bounds the wait for each response byte.
	DefaultTimeout = 3 * time.Second

	// DefaultHandshakeTimeout bounds the wait for the receiver to
	// acknowledge the header block; receivers are often started by hand.
	DefaultHandshakeTimeout = 90 * time.Second

	// DefaultMaxRetries is the number of NAK resends allowed per block.
	DefaultMaxRetries = 10

	// DefaultProgressInterval throttles progress callbacks.
	DefaultProgressInterval = 100 * time.Millisecond
)

// Config holds transfer configuration.
type Config struct {
	Timeout          time.Duration
	HandshakeTimeout time.Duration

	// MaxRetries caps NAK resends per data block. Zero or negative
	// resends without limit.
	MaxRetries int

	ProgressInterval time.Duration

	// PurgeTimeout is the line silence that ends a drain of stale input,
	// on channels that cannot reset their input buffer.
	PurgeTimeout time.Duration

	// LogTraffic logs every outbound write at debug level.
	LogTraffic bool
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:          DefaultTimeout,
		HandshakeTimeout: DefaultHandshakeTimeout,
		MaxRetries:       DefaultMaxRetries,
		ProgressInterval: DefaultProgressInterval,
		PurgeTimeout:     DefaultPurgeTimeout,
	}
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("ymodem: timeout must be positive, got %v", c.Timeout)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("ymodem: handshake timeout must be positive, got %v", c.HandshakeTimeout)
	}
	if c.ProgressInterval < 0 {
		return fmt.Errorf("ymodem: progress interval must not be negative, got %v", c.ProgressInterval)
	}
	if c.PurgeTimeout < 0 {
		return fmt.Errorf("ymodem: purge timeout must not be negative, got %v", c.PurgeTimeout)
	}
	return nil
}

// FileSource describes the file to send. Reader must support rewinding to
// resend a block the receiver rejected.
type FileSource struct {
	Name    string
	Size    int64
	ModTime time.Time
	Reader  io.ReadSeeker
}

// Result summarizes a transfer.
type Result struct {
	Filename string
	Size     int64
	Blocks   int64
	Retries  int
	Started  time.Time
	Duration time.Duration
}

// Transmitter runs the YMODEM sender state machine over a channel.
//
// A Transmitter is not goroutine-safe; it performs one strictly sequential
// exchange at a time and owns its channel for the duration of Send.
type Transmitter struct {
	ch        Channel
	config    *Config
	callbacks *Callbacks
	logger    Logger
	progress  *ProgressTracker

	state State
	seq   byte
}

// NewTransmitter creates a transmitter. Nil config, callbacks or logger
// select the defaults.
func NewTransmitter(ch Channel, config *Config, callbacks *Callbacks, logger Logger) *Transmitter {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = NoopLogger{}
	}
	if p, ok := ch.(interface{ SetPurgeTimeout(time.Duration) }); ok && config.PurgeTimeout > 0 {
		p.SetPurgeTimeout(config.PurgeTimeout)
	}
	if config.LogTraffic {
		ch = newLoggingChannel(ch, logger)
	}

	cb := mergeCallbacks(callbacks)
	return &Transmitter{
		ch:        ch,
		config:    config,
		callbacks: cb,
		logger:    logger,
		progress:  NewProgressTracker(cb.OnProgress, config.ProgressInterval),
		state:     StateAwaitStart,
	}
}

// State returns the current state of the state machine.
func (t *Transmitter) State() State {
	return t.state
}

// Send transfers one file followed by the closing block that ends the
// batch. On failure the returned error is a *Error and the transmitter is
// in StateAborted. Send does not close src.Reader.
func (t *Transmitter) Send(ctx context.Context, src FileSource) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	t.state = StateAwaitStart
	t.seq = 0

	res := &Result{
		Filename: SanitizeFilename(src.Name),
		Size:     src.Size,
		Blocks:   BlockCount(src.Size),
		Started:  time.Now(),
	}
	log := t.logger.With("file", res.Filename)

	if err := t.send(ctx, src, res, log); err != nil {
		res.Duration = time.Since(res.Started)
		return res, t.fail(err, log)
	}

	res.Duration = t.progress.Complete()
	t.callbacks.OnFileComplete(res.Filename, res.Size, res.Duration)
	log.Info("transfer complete", "size", res.Size, "blocks", res.Blocks,
		"retries", res.Retries, "duration", res.Duration)

	return res, nil
}

func (t *Transmitter) send(ctx context.Context, src FileSource, res *Result, log Logger) error {
	header, err := BuildInitialHeader(res.Filename, src.Size, src.ModTime, res.Blocks)
	if err != nil {
		return err
	}

	if err := t.ch.Purge(ctx); err != nil {
		return t.channelError(ctx, "purge input", err)
	}

	// Header block
	t.setState(StateSendingHeader)
	t.callbacks.OnFileStart(res.Filename, src.Size, res.Blocks)
	t.progress.Start(res.Filename, src.Size)
	log.Info("sending header", "size", src.Size, "blocks", res.Blocks)

	// The header travels in a 1024-byte STX block, zero-filled past the
	// 128-byte record.
	block := make([]byte, BlockSize)
	copy(block, header)
	if err := t.writePacket(ctx, STX, 0, block); err != nil {
		return err
	}
	if err := t.expect(ctx, t.config.HandshakeTimeout, RespACK); err != nil {
		return err
	}
	if err := t.expect(ctx, t.config.Timeout, RespCRCRequest); err != nil {
		return err
	}

	// Data blocks
	t.setState(StateSendingData)
	t.seq = 1
	if err := t.sendData(ctx, src, res, log); err != nil {
		return err
	}

	// End of file
	t.setState(StateAwaitEOTAck1)
	if err := t.writeRaw(ctx, []byte{EOT}); err != nil {
		return err
	}
	resp, b, err := t.readResponse(ctx, t.config.Timeout)
	if err != nil {
		return err
	}
	switch resp {
	case RespACK:
	case RespNAK:
		// The second EOT is not re-checked; AwaitEOTAck2 reads its answer.
		log.Debug("EOT NAKed, resending")
		if err := t.writeRaw(ctx, []byte{EOT}); err != nil {
			return err
		}
	default:
		return responseError(resp, b, "ACK or NAK")
	}

	t.setState(StateAwaitEOTAck2)
	if err := t.expect(ctx, t.config.Timeout, RespACK); err != nil {
		return err
	}

	t.setState(StateAwaitCRequest)
	if err := t.expect(ctx, t.config.Timeout, RespCRCRequest); err != nil {
		return err
	}

	// Closing block
	t.setState(StateSendingClosing)
	if err := t.writePacket(ctx, SOH, 0, BuildClosingHeader()); err != nil {
		return err
	}
	if err := t.expect(ctx, t.config.Timeout, RespACK); err != nil {
		return err
	}

	t.setState(StateDone)
	return nil
}

// sendData sends every data block, resending NAKed blocks.
func (t *Transmitter) sendData(ctx context.Context, src FileSource, res *Result, log Logger) error {
	var offset int64
	for block := int64(1); block <= res.Blocks; block++ {
		n := src.Size - offset
		if n > BlockSize {
			n = BlockSize
		}
		if n < 0 {
			n = 0
		}

		payload, err := readChunk(src.Reader, offset, int(n))
		if err != nil {
			return err
		}

		for attempts := 0; ; {
			if err := t.writePacket(ctx, STX, t.seq, payload); err != nil {
				return err
			}

			resp, b, err := t.readResponse(ctx, t.config.Timeout)
			if err != nil {
				return err
			}
			if resp == RespACK {
				break
			}
			if resp != RespNAK {
				return responseError(resp, b, "ACK or NAK")
			}

			attempts++
			res.Retries++
			if t.config.MaxRetries > 0 && attempts > t.config.MaxRetries {
				return NewError(ErrMaxRetries,
					fmt.Sprintf("block NAKed %d times", attempts))
			}
			t.emit(Event{Type: EventRetry, Seq: int(t.seq), Message: fmt.Sprintf("attempt %d", attempts+1)})
			log.Warn("block NAKed, resending", "seq", t.seq, "attempt", attempts+1)

			// rewind and rebuild from the file rather than reusing wire bytes
			if payload, err = readChunk(src.Reader, offset, int(n)); err != nil {
				return err
			}
		}

		offset += n
		t.progress.Update(offset)
		log.Debug("block acknowledged", "seq", t.seq, "block", block, "of", res.Blocks)
		t.seq++ // wraps 255 -> 0
	}
	return nil
}

// readChunk reads n bytes at offset into a fresh block padded with CPMEOF.
func readChunk(r io.ReadSeeker, offset int64, n int) ([]byte, error) {
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return nil, wrapError(ErrFileRead, "seek", err)
	}

	buf := make([]byte, BlockSize)
	if n > 0 {
		m, err := io.ReadFull(r, buf[:n])
		if err != nil {
			if m == 0 {
				return nil, wrapError(ErrFileRead, fmt.Sprintf("no data at offset %d", offset), err)
			}
			return nil, wrapError(ErrFileRead, fmt.Sprintf("short read at offset %d: %d of %d bytes", offset, m, n), err)
		}
	}
	for i := n; i < BlockSize; i++ {
		buf[i] = CPMEOF
	}
	return buf, nil
}

// expect reads one response and requires it to be want.
func (t *Transmitter) expect(ctx context.Context, timeout time.Duration, want Response) error {
	resp, b, err := t.readResponse(ctx, timeout)
	if err != nil {
		return err
	}
	if resp != want {
		return responseError(resp, b, want.String())
	}
	return nil
}

// responseError converts a rejected response into an error. CAN is always
// a receiver abort.
func responseError(resp Response, b byte, expected string) *Error {
	if resp == RespCAN {
		e := NewError(ErrReceiverAbort, "receiver cancelled")
		e.Byte = b
		e.HasByte = true
		return e
	}
	return unexpectedByte(b, expected)
}

func (t *Transmitter) readResponse(ctx context.Context, timeout time.Duration) (Response, byte, error) {
	b, err := t.ch.ReadByte(ctx, timeout)
	if err != nil {
		return RespOther, 0, t.channelError(ctx, "read response", err)
	}

	resp := ClassifyResponse(b)
	t.emit(Event{Type: EventResponse, Seq: int(t.seq), Byte: b, Message: resp.String()})
	return resp, b, nil
}

func (t *Transmitter) writePacket(ctx context.Context, control, seq byte, payload []byte) error {
	p := Packet{Control: control, Seq: seq, Payload: payload}
	if err := t.writeRaw(ctx, p.Bytes()); err != nil {
		return err
	}
	t.emit(Event{Type: EventPacketSent, Seq: int(seq), Byte: control, Message: p.String()})
	return nil
}

func (t *Transmitter) writeRaw(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return wrapError(ErrCancelled, "transfer cancelled", err)
	}
	if _, err := t.ch.Write(data); err != nil {
		return t.channelError(ctx, "write", err)
	}
	return nil
}

// channelError classifies a channel failure.
func (t *Transmitter) channelError(ctx context.Context, op string, err error) *Error {
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		t.emit(Event{Type: EventCancelled, Message: op})
		return wrapError(ErrCancelled, op, err)
	case isTimeout(err):
		t.emit(Event{Type: EventTimeout, Message: op})
		return wrapError(ErrChannelTimeout, op, err)
	default:
		return wrapError(ErrChannelIO, op, err)
	}
}

// fail annotates err with the current position and aborts the session.
func (t *Transmitter) fail(err error, log Logger) *Error {
	var e *Error
	if !errors.As(err, &e) {
		e = wrapError(ErrChannelIO, "transfer failed", err)
	}
	e.State = t.state
	if t.state == StateSendingData {
		e.Block = int(t.seq)
	}

	t.setState(StateAborted)
	t.emit(Event{Type: EventError, State: e.State, Seq: e.Block, Byte: e.Byte, Message: e.Error()})
	t.callbacks.OnError(e, e.State.String())
	log.Error("transfer aborted", "state", e.State.String(), "error", e)
	return e
}

func (t *Transmitter) setState(s State) {
	if t.state == s {
		return
	}
	t.logger.Debug("state change", "from", t.state.String(), "to", s.String())
	t.state = s
	t.emit(Event{Type: EventStateChange, Message: s.String()})
}

func (t *Transmitter) emit(ev Event) {
	if ev.Type != EventError {
		ev.State = t.state
	}
	ev.Timestamp = time.Now()
	t.callbacks.OnEvent(ev)
}
