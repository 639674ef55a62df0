package beacon

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/ibeacon-blue/logger"
	"github.com/user/ibeacon-blue/radio"
	"github.com/user/ibeacon-blue/wire/ibeacon"
)

// Session is the process's single broadcast. It moves Inactive -> Starting on Start,
// Starting -> Active when the driver confirms, and back to Inactive on Stop, Close or
// a refused start. All transitions happen under one mutex; driver callbacks may arrive
// on any goroutine and are matched to their start by generation.
type Session struct {
	driver    radio.Driver
	id        string
	tag       string
	listeners []Listener

	mu         sync.Mutex
	state      State
	gen        uint64
	record     ibeacon.Record
	raw        ibeacon.RawAdvertisement
	pending    *Completion
	submitting bool // StartAdvertising has been called and not yet returned
}

// Option configures a Session.
type Option func(*Session)

// WithListener registers l for session events.
func WithListener(l Listener) Option {
	return func(s *Session) { s.listeners = append(s.listeners, l) }
}

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// NewSession returns an Inactive session that owns driver.
func NewSession(driver radio.Driver, opts ...Option) *Session {
	s := &Session{
		driver: driver,
		id:     uuid.New().String(),
		state:  Inactive,
	}
	for _, opt := range opts {
		opt(s)
	}
	short := s.id
	if len(short) > 8 {
		short = short[:8]
	}
	s.tag = short + " Beacon"
	return s
}

// ID identifies this session in logs and events.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentRecord returns the record being broadcast, or false when Inactive.
func (s *Session) CurrentRecord() (ibeacon.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Inactive {
		return ibeacon.Record{}, false
	}
	return s.record.Clone(), true
}

// Raw returns the bytes handed to the driver, or false when Inactive.
func (s *Session) Raw() (ibeacon.RawAdvertisement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raw, s.state != Inactive
}

// Start encodes r and asks the driver to broadcast it. Codec errors come back unchanged
// and ErrAlreadyActive is returned unless the session is Inactive with no start still
// being submitted; neither touches the driver. A driver that refuses synchronously
// yields a *radio.DriverError and the session stays Inactive. Otherwise the returned
// Completion reports the driver's verdict.
func (s *Session) Start(r ibeacon.Record) (*Completion, error) {
	s.mu.Lock()
	if s.state != Inactive || s.submitting {
		s.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	raw, err := ibeacon.Encode(r)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	s.gen++
	gen := s.gen
	s.state = Starting
	s.record = r.Clone()
	s.raw = raw
	comp := newCompletion()
	s.pending = comp
	s.submitting = true
	s.mu.Unlock()

	logger.Debug(s.tag, "inactive -> starting %s", raw)

	// The driver may call back before returning, so the lock is not held here
	startErr := s.driver.StartAdvertising(raw, &startCallback{s: s, gen: gen})

	s.mu.Lock()
	s.submitting = false
	if startErr != nil {
		de := radio.AsDriverError("start", startErr)
		current := s.gen == gen && s.state == Starting
		if current {
			s.reset()
		}
		s.mu.Unlock()
		comp.resolve(de)
		logger.Error(s.tag, "start refused: %v", de)
		if current {
			s.emit(Event{Kind: EventFailed, State: Inactive, Raw: raw, Err: de})
		}
		return nil, de
	}
	if s.gen == gen {
		s.mu.Unlock()
		return comp, nil
	}

	// Stop ran while the driver was being asked to start. The radio may now be on,
	// so withdraw it; the completion already reports the abort.
	if stopErr := s.driver.StopAdvertising(); stopErr != nil {
		de := radio.AsDriverError("stop", stopErr)
		s.state = Active
		s.record = r.Clone()
		s.raw = raw
		s.pending = nil
		s.mu.Unlock()
		logger.Error(s.tag, "could not withdraw aborted start, still active: %v", de)
		s.emit(Event{Kind: EventFailed, State: Active, Raw: raw, Err: de})
		return comp, nil
	}
	s.mu.Unlock()
	logger.Debug(s.tag, "withdrew start aborted during submission")
	return comp, nil
}

// Stop asks the driver to stop and moves to Inactive. From Inactive it returns
// ErrNotActive without touching the driver. A start still being handed to the driver
// is aborted without a driver call; Start withdraws it once the driver returns.
// A driver error is returned as a *radio.DriverError and leaves the state as it was.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state == Inactive {
		s.mu.Unlock()
		return ErrNotActive
	}

	if !(s.state == Starting && s.submitting) {
		if err := s.driver.StopAdvertising(); err != nil {
			s.mu.Unlock()
			de := radio.AsDriverError("stop", err)
			logger.Error(s.tag, "stop failed, still %s: %v", s.State(), de)
			return de
		}
	}

	from := s.state
	raw := s.raw
	pending := s.pending
	s.gen++ // late callbacks from the stopped start are ignored
	s.reset()
	s.mu.Unlock()

	if pending != nil {
		pending.resolve(ErrStartAborted)
	}
	logger.Debug(s.tag, "%s -> inactive", from)
	logger.Info(s.tag, "📴 broadcast stopped")
	s.emit(Event{Kind: EventStopped, State: Inactive, Raw: raw})
	return nil
}

// Close stops a running broadcast at process teardown. It is a no-op when Inactive.
func (s *Session) Close() error {
	if err := s.Stop(); err != nil && !errors.Is(err, ErrNotActive) {
		return err
	}
	return nil
}

// reset returns to Inactive; callers hold mu.
func (s *Session) reset() {
	s.state = Inactive
	s.record = ibeacon.Record{}
	s.raw = ibeacon.RawAdvertisement{}
	s.pending = nil
}

func (s *Session) emit(e Event) {
	e.SessionID = s.id
	e.Time = time.Now()
	for _, l := range s.listeners {
		l.OnEvent(e)
	}
}

type startCallback struct {
	s   *Session
	gen uint64
}

func (c *startCallback) OnStartSuccess() {
	s := c.s
	s.mu.Lock()
	if s.gen != c.gen || s.state != Starting {
		s.mu.Unlock()
		logger.Trace(s.tag, "ignoring late start confirmation (generation %d)", c.gen)
		return
	}
	s.state = Active
	raw := s.raw
	comp := s.pending
	s.pending = nil
	s.mu.Unlock()

	logger.Debug(s.tag, "starting -> active")
	logger.Info(s.tag, "📡 broadcasting %s", raw)
	comp.resolve(nil)
	s.emit(Event{Kind: EventStarted, State: Active, Raw: raw})
}

func (c *startCallback) OnStartFailure(err *radio.DriverError) {
	s := c.s
	if err == nil {
		err = &radio.DriverError{Reason: radio.ReasonUnknown, Op: "start"}
	}

	s.mu.Lock()
	if s.gen != c.gen || s.state != Starting {
		s.mu.Unlock()
		logger.Trace(s.tag, "ignoring late start failure (generation %d): %v", c.gen, err)
		return
	}
	raw := s.raw
	comp := s.pending

	if err.Reason != radio.ReasonAlreadyStarted {
		s.reset()
		s.mu.Unlock()
		logger.Error(s.tag, "start failed: %v", err)
		comp.resolve(err)
		s.emit(Event{Kind: EventFailed, State: Inactive, Raw: raw, Err: err})
		return
	}

	// The radio is already advertising something. Stop it while still holding the
	// lock so nothing can slip in between; only a confirmed stop makes us Inactive.
	logger.Warn(s.tag, "radio already advertising, stopping it")
	conflict := &ConflictError{Cause: err}
	state := Inactive
	if stopErr := s.driver.StopAdvertising(); stopErr != nil {
		conflict.StopErr = radio.AsDriverError("stop", stopErr)
		s.state = Active
		s.pending = nil
		state = Active
	} else {
		s.gen++
		s.reset()
	}
	s.mu.Unlock()

	comp.resolve(conflict)
	s.emit(Event{Kind: EventConflict, State: state, Raw: raw, Err: conflict})
}
