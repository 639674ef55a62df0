package beacon

import (
	"time"

	"github.com/user/ibeacon-blue/wire/ibeacon"
)

// EventKind names a session transition worth telling the outside world about.
type EventKind int

const (
	EventStarted EventKind = iota + 1
	EventStopped
	EventFailed
	EventConflict
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventFailed:
		return "failed"
	case EventConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Event is delivered to listeners after the transition it describes.
type Event struct {
	Kind      EventKind
	SessionID string
	State     State
	Raw       ibeacon.RawAdvertisement
	Err       error
	Time      time.Time
}

// Listener observes session events. OnEvent runs on the goroutine that caused the
// transition, after the session lock is released.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) OnEvent(e Event) { f(e) }
