// Package ymodem implements the sending side of the YMODEM batch file
// transfer protocol.
//
// YMODEM moves a file over a raw byte channel, usually a serial line, as a
// sequence of numbered blocks protected by a 16-bit CRC. This package frames
// the blocks, builds the metadata header, and drives the handshake with the
// receiver, resending blocks the receiver NAKs.
//
// The package is designed as a library: it accepts any channel that can write
// bytes and read a single byte with a timeout, and reports progress and
// protocol events through callback hooks.
package ymodem

// Control bytes exchanged on the wire
const (
	SOH = 0x01 // start of a 128-byte block
	STX = 0x02 // start of a 1024-byte block
	EOT = 0x04 // end of transmission
	ACK = 0x06
	NAK = 0x15
	CAN = 0x18 // receiver cancels the transfer

	// CRCRequest is sent by the receiver to ask for CRC-16 mode.
	CRCRequest = 'C'

	// CPMEOF pads the final data block.
	CPMEOF = 0x1A
)

// Block sizes
const (
	// HeaderSize is the payload length of SOH blocks.
	HeaderSize = 128

	// BlockSize is the payload length of STX blocks.
	BlockSize = 1024

	// CRCSize is the length of the CRC trailer.
	CRCSize = 2

	// PacketOverhead is control + seq + inverted seq + CRC.
	PacketOverhead = 3 + CRCSize
)

// Response classifies a byte read from the receiver.
type Response int

const (
	RespOther Response = iota
	RespACK
	RespNAK
	RespCAN
	RespCRCRequest
)

// ClassifyResponse maps a received byte to its Response kind.
func ClassifyResponse(b byte) Response {
	switch b {
	case ACK:
		return RespACK
	case NAK:
		return RespNAK
	case CAN:
		return RespCAN
	case CRCRequest:
		return RespCRCRequest
	default:
		return RespOther
	}
}

func (r Response) String() string {
	switch r {
	case RespACK:
		return "ACK"
	case RespNAK:
		return "NAK"
	case RespCAN:
		return "CAN"
	case RespCRCRequest:
		return "C"
	default:
		return "OTHER"
	}
}

// State is a step of the transmitter state machine.
type State int

const (
	StateAwaitStart State = iota
	StateSendingHeader
	StateSendingData
	StateAwaitEOTAck1
	StateAwaitEOTAck2
	StateAwaitCRequest
	StateSendingClosing
	StateDone
	StateAborted
)

var stateNames = []string{
	"AwaitStart",
	"SendingHeader",
	"SendingData",
	"AwaitEOTAck1",
	"AwaitEOTAck2",
	"AwaitCRequest",
	"SendingClosing",
	"Done",
	"Aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}
