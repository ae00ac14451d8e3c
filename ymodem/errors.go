package ymodem

import (
	"errors"
	"fmt"
)

// Error represents a failed YMODEM transfer
type Error struct {
	// Kind is the error category
	Kind ErrorKind

	// Message is a human-readable error message
	Message string

	// State is the transmitter state the failure happened in
	State State

	// Block is the sequence number of the block in flight (-1 if none)
	Block int

	// Byte is the offending response byte (valid when HasByte is set)
	Byte    byte
	HasByte bool

	// Err is the underlying cause, if any
	Err error
}

// ErrorKind categorizes YMODEM errors
type ErrorKind int

const (
	// ErrProtocolViolation indicates an unexpected response byte
	ErrProtocolViolation ErrorKind = iota

	// ErrReceiverAbort indicates the receiver sent CAN
	ErrReceiverAbort

	// ErrChannelTimeout indicates no response within the read deadline
	ErrChannelTimeout

	// ErrChannelIO indicates a read or write failure on the channel
	ErrChannelIO

	// ErrFileRead indicates the source file could not be read
	ErrFileRead

	// ErrEncodingOverflow indicates the header fields do not fit in 128 bytes
	ErrEncodingOverflow

	// ErrMaxRetries indicates a block was NAKed too many times
	ErrMaxRetries

	// ErrCancelled indicates the caller's context ended the transfer
	ErrCancelled

	// ErrInvalidFilename indicates the name has no usable base name
	ErrInvalidFilename
)

func (e *Error) Error() string {
	msg := fmt.Sprintf("ymodem %s: %s", e.Kind, e.Message)
	if e.HasByte {
		msg += fmt.Sprintf(" (byte: 0x%02X)", e.Byte)
	}
	if e.Block >= 0 {
		msg += fmt.Sprintf(" (block: %d)", e.Block)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (k ErrorKind) String() string {
	switch k {
	case ErrProtocolViolation:
		return "protocol violation"
	case ErrReceiverAbort:
		return "receiver abort"
	case ErrChannelTimeout:
		return "timeout"
	case ErrChannelIO:
		return "channel I/O error"
	case ErrFileRead:
		return "file read error"
	case ErrEncodingOverflow:
		return "header overflow"
	case ErrMaxRetries:
		return "max retries exceeded"
	case ErrCancelled:
		return "cancelled"
	case ErrInvalidFilename:
		return "invalid filename"
	default:
		return "unknown error"
	}
}

// NewError creates a new YMODEM error
func NewError(kind ErrorKind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Block:   -1,
	}
}

// wrapError creates a YMODEM error around a cause
func wrapError(kind ErrorKind, message string, err error) *Error {
	e := NewError(kind, message)
	e.Err = err
	return e
}

// unexpectedByte reports a response byte that is not valid at this point
func unexpectedByte(b byte, expected string) *Error {
	e := NewError(ErrProtocolViolation, "expected "+expected)
	e.Byte = b
	e.HasByte = true
	return e
}

// KindOf returns the kind of a YMODEM error and whether err is one.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	k, ok := KindOf(err)
	return ok && k == ErrChannelTimeout
}

// IsReceiverAbort checks if the receiver cancelled the transfer
func IsReceiverAbort(err error) bool {
	k, ok := KindOf(err)
	return ok && k == ErrReceiverAbort
}

// IsCancelled checks if an error indicates context cancellation
func IsCancelled(err error) bool {
	k, ok := KindOf(err)
	return ok && k == ErrCancelled
}
