package ymodem

import (
	"time"
)

// Callbacks provides hooks for transfer events.
// All callbacks are optional - nil callbacks do nothing.
type Callbacks struct {
	// OnFileStart is called once the header block is about to be sent.
	OnFileStart func(filename string, size int64, blocks int64)

	// OnProgress is called as data blocks are acknowledged.
	// transferred counts file bytes (not padding) acknowledged so far;
	// rate is in bytes per second.
	OnProgress func(filename string, transferred, total int64, rate float64)

	// OnFileComplete is called after the closing block is acknowledged.
	OnFileComplete func(filename string, bytesTransferred int64, duration time.Duration)

	// OnError is called when the transfer fails.
	// context: description of where the error occurred
	OnError func(err error, context string)

	// OnEvent is called for protocol events (debugging/logging).
	OnEvent func(event Event)
}

// Event represents a protocol event for logging/debugging.
type Event struct {
	Type      EventType
	State     State
	Seq       int
	Byte      byte
	Message   string
	Timestamp time.Time
}

// EventType categorizes protocol events.
type EventType int

const (
	EventStateChange EventType = iota
	EventPacketSent
	EventResponse
	EventRetry
	EventTimeout
	EventCancelled
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventStateChange:
		return "state"
	case EventPacketSent:
		return "sent"
	case EventResponse:
		return "response"
	case EventRetry:
		return "retry"
	case EventTimeout:
		return "timeout"
	case EventCancelled:
		return "cancelled"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// defaultCallbacks returns a set of callbacks with no-op implementations.
func defaultCallbacks() *Callbacks {
	return &Callbacks{
		OnFileStart:    func(string, int64, int64) {},
		OnProgress:     func(string, int64, int64, float64) {},
		OnFileComplete: func(string, int64, time.Duration) {},
		OnError:        func(error, string) {},
		OnEvent:        func(Event) {},
	}
}

// mergeCallbacks merges user callbacks with defaults.
// User callbacks override defaults, nil callbacks use defaults.
func mergeCallbacks(user *Callbacks) *Callbacks {
	result := defaultCallbacks()
	if user == nil {
		return result
	}

	if user.OnFileStart != nil {
		result.OnFileStart = user.OnFileStart
	}
	if user.OnProgress != nil {
		result.OnProgress = user.OnProgress
	}
	if user.OnFileComplete != nil {
		result.OnFileComplete = user.OnFileComplete
	}
	if user.OnError != nil {
		result.OnError = user.OnError
	}
	if user.OnEvent != nil {
		result.OnEvent = user.OnEvent
	}

	return result
}
