package ymodem

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// timeoutStep makes the scripted channel report a read timeout.
const timeoutStep = -1

// scriptedChannel replays receiver responses and records every write.
type scriptedChannel struct {
	script  []int
	writes  [][]byte
	purged  int
	readErr error
}

func newScriptedChannel(responses ...int) *scriptedChannel {
	return &scriptedChannel{script: responses}
}

func (c *scriptedChannel) Write(p []byte) (int, error) {
	c.writes = append(c.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (c *scriptedChannel) ReadByte(ctx context.Context, _ time.Duration) (byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if c.readErr != nil {
		return 0, c.readErr
	}
	if len(c.script) == 0 {
		return 0, ErrReadTimeout
	}
	next := c.script[0]
	c.script = c.script[1:]
	if next == timeoutStep {
		return 0, ErrReadTimeout
	}
	return byte(next), nil
}

func (c *scriptedChannel) Purge(context.Context) error {
	c.purged++
	return nil
}

// happyScript answers a transfer of n data blocks without errors.
func happyScript(n int) []int {
	script := []int{ACK, CRCRequest}
	for i := 0; i < n; i++ {
		script = append(script, ACK)
	}
	return append(script, ACK, ACK, CRCRequest, ACK)
}

// testSource builds an in-memory file.
func testSource(name string, data []byte) FileSource {
	return FileSource{
		Name:    name,
		Size:    int64(len(data)),
		ModTime: time.Unix(0, 0),
		Reader:  bytes.NewReader(data),
	}
}

// patterned returns n bytes that differ between blocks.
func patterned(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func newTestTransmitter(ch Channel, cfg *Config, cb *Callbacks) *Transmitter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return NewTransmitter(ch, cfg, cb, NoopLogger{})
}

// requireKind asserts err is a *Error of the given kind and returns it.
func requireKind(t *testing.T, err error, kind ErrorKind) *Error {
	t.Helper()

	var e *Error
	require.True(t, errors.As(err, &e), "expected *Error, got %T: %v", err, err)
	require.Equal(t, kind, e.Kind, "error: %v", e)

	return e
}

// requirePacket checks framing of a written packet and returns its payload.
func requirePacket(t *testing.T, pkt []byte, control, seq byte) []byte {
	t.Helper()

	size := PayloadSize(control)
	require.Len(t, pkt, size+PacketOverhead)
	require.Equal(t, control, pkt[0])
	require.Equal(t, seq, pkt[1])
	require.Equal(t, 255-seq, pkt[2])

	payload := pkt[3 : 3+size]
	crc := CRC16(payload)
	require.Equal(t, byte(crc>>8), pkt[3+size])
	require.Equal(t, byte(crc), pkt[4+size])

	return payload
}

// closeCountingFile is an in-memory File that counts Close calls.
type closeCountingFile struct {
	*bytes.Reader
	info   os.FileInfo
	closed int
}

func (f *closeCountingFile) Close() error {
	f.closed++
	return nil
}

func (f *closeCountingFile) Stat() (os.FileInfo, error) {
	return f.info, nil
}

type fakeFileInfo struct {
	name    string
	size    int64
	modTime time.Time
	dir     bool
}

func (fi fakeFileInfo) Name() string       { return fi.name }
func (fi fakeFileInfo) Size() int64        { return fi.size }
func (fi fakeFileInfo) Mode() os.FileMode  { return 0644 }
func (fi fakeFileInfo) ModTime() time.Time { return fi.modTime }
func (fi fakeFileInfo) IsDir() bool        { return fi.dir }
func (fi fakeFileInfo) Sys() any           { return nil }

// received is what the loopback receiver reconstructed.
type received struct {
	name    string
	size    int64
	modTime int64
	blocks  int64
	data    []byte
	naks    int
}

// runReceiver plays a minimal YMODEM receiver on conn. Each sequence number
// in nakSeqs is NAKed once before being accepted.
func runReceiver(conn net.Conn, nakSeqs ...byte) (*received, error) {
	pending := make(map[byte]bool)
	for _, s := range nakSeqs {
		pending[s] = true
	}

	readPacket := func(control byte) (byte, []byte, error) {
		size := PayloadSize(control)
		if size == 0 {
			return 0, nil, errors.New("not a block start: " + strconv.Itoa(int(control)))
		}
		buf := make([]byte, size+PacketOverhead-1)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return 0, nil, err
		}
		if buf[0] != 255-buf[1] {
			return 0, nil, errors.New("bad inverted sequence")
		}
		payload := buf[2 : 2+size]
		crc := uint16(buf[2+size])<<8 | uint16(buf[3+size])
		if crc != CRC16(payload) {
			return 0, nil, errors.New("bad crc")
		}
		return buf[0], payload, nil
	}
	readControl := func() (byte, error) {
		var b [1]byte
		_, err := io.ReadFull(conn, b[:])
		return b[0], err
	}
	send := func(bs ...byte) error {
		_, err := conn.Write(bs)
		return err
	}

	rx := &received{}

	// header
	control, err := readControl()
	if err != nil {
		return nil, err
	}
	_, payload, err := readPacket(control)
	if err != nil {
		return nil, err
	}
	nul := bytes.IndexByte(payload, 0)
	rx.name = string(payload[:nul])
	fields := strings.Fields(string(bytes.TrimRight(payload[nul+1:], "\x00")))
	if len(fields) != 3 {
		return nil, errors.New("bad header fields")
	}
	rx.size, _ = strconv.ParseInt(fields[0], 10, 64)
	rx.modTime, _ = strconv.ParseInt(fields[1], 8, 64)
	rx.blocks, _ = strconv.ParseInt(fields[2], 8, 64)
	if err := send(ACK, CRCRequest); err != nil {
		return nil, err
	}

	// data
	expect := byte(1)
	for {
		control, err := readControl()
		if err != nil {
			return nil, err
		}
		if control == EOT {
			break
		}
		seq, payload, err := readPacket(control)
		if err != nil {
			return nil, err
		}
		if seq != expect {
			return nil, errors.New("out of order block " + strconv.Itoa(int(seq)))
		}
		if pending[seq] {
			delete(pending, seq)
			rx.naks++
			if err := send(NAK); err != nil {
				return nil, err
			}
			continue
		}
		rx.data = append(rx.data, payload...)
		expect++
		if err := send(ACK); err != nil {
			return nil, err
		}
	}
	if int64(len(rx.data)) > rx.size {
		rx.data = rx.data[:rx.size]
	}

	if err := send(ACK); err != nil {
		return nil, err
	}
	if err := send(ACK); err != nil {
		return nil, err
	}
	if err := send(CRCRequest); err != nil {
		return nil, err
	}

	// closing block
	control, err = readControl()
	if err != nil {
		return nil, err
	}
	_, payload, err = readPacket(control)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(payload, make([]byte, HeaderSize)) {
		return nil, errors.New("closing block not empty")
	}
	return rx, send(ACK)
}
