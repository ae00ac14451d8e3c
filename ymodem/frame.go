package ymodem

import "fmt"

// Packet is one framed block as it goes on the wire:
//
//	control | seq | 255-seq | payload | crc-hi | crc-lo
//
// The CRC covers the payload only.
type Packet struct {
	Control byte
	Seq     byte
	Payload []byte
}

// Inverted returns the one's complement of the sequence number.
func (p Packet) Inverted() byte {
	return 255 - p.Seq
}

// CRC returns the CRC of the payload.
func (p Packet) CRC() uint16 {
	return CRC16(p.Payload)
}

// Bytes encodes the packet. The payload length is not checked; callers
// pad payloads to the size implied by the control byte.
func (p Packet) Bytes() []byte {
	return BuildPacket(p.Control, p.Seq, p.Payload)
}

func (p Packet) String() string {
	return fmt.Sprintf("%s seq=%d len=%d crc=%04x", controlName(p.Control), p.Seq, len(p.Payload), p.CRC())
}

// BuildPacket frames payload into a fresh byte slice.
func BuildPacket(control, seq byte, payload []byte) []byte {
	buf := make([]byte, 0, len(payload)+PacketOverhead)
	buf = append(buf, control, seq, 255-seq)
	buf = append(buf, payload...)

	crc := CRC16(payload)
	return append(buf, byte(crc>>8), byte(crc))
}

// PayloadSize returns the payload length implied by a control byte, or 0
// for bytes that do not start a block.
func PayloadSize(control byte) int {
	switch control {
	case SOH:
		return HeaderSize
	case STX:
		return BlockSize
	default:
		return 0
	}
}

func controlName(c byte) string {
	switch c {
	case SOH:
		return "SOH"
	case STX:
		return "STX"
	case EOT:
		return "EOT"
	default:
		return fmt.Sprintf("0x%02X", c)
	}
}
