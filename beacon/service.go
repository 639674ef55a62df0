package beacon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/user/ibeacon-blue/logger"
	"github.com/user/ibeacon-blue/wire/ibeacon"
)

// Store persists the last broadcast advertisement.
type Store interface {
	Save(ctx context.Context, raw ibeacon.RawAdvertisement) error
	Load(ctx context.Context) (ibeacon.RawAdvertisement, bool, error)
}

// FieldMessage is the user-facing complaint about one form field.
type FieldMessage struct {
	Field   ibeacon.Field
	Message string
}

var fieldLabels = map[ibeacon.Field]string{
	ibeacon.FieldProximityID:    "UUID",
	ibeacon.FieldBatteryVoltage: "voltage",
	ibeacon.FieldMajor:          "major byte",
	ibeacon.FieldMinor:          "minor byte",
	ibeacon.FieldSignalPower:    "signal power",
}

// FieldMessages lists one message per field the mask marks invalid.
func FieldMessages(mask ibeacon.ValidityMask) []FieldMessage {
	var msgs []FieldMessage
	for _, f := range mask.Invalid() {
		msgs = append(msgs, FieldMessage{
			Field:   f,
			Message: fmt.Sprintf("%s needs %d hex digits", fieldLabels[f], 2*f.Len()),
		})
	}
	return msgs
}

// ValidationError is returned by Apply when the form has fields of the wrong length.
type ValidationError struct {
	Mask     ibeacon.ValidityMask
	Messages []FieldMessage
}

func (e *ValidationError) Error() string {
	labels := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		labels = append(labels, fieldLabels[m.Field])
	}
	return "Not enough data: " + strings.Join(labels, ", ")
}

// Service ties the session to persistence and the edit form.
type Service struct {
	session *Session
	store   Store

	mu     sync.Mutex
	record ibeacon.Record
}

// NewService starts from the default record until Load is called.
func NewService(session *Session, store Store) *Service {
	return &Service{
		session: session,
		store:   store,
		record:  ibeacon.DefaultRecord(),
	}
}

// Session returns the managed session.
func (s *Service) Session() *Session { return s.session }

// Load restores the persisted advertisement, falling back to the default record when
// nothing was saved.
func (s *Service) Load(ctx context.Context) (ibeacon.Record, error) {
	raw, ok, err := s.store.Load(ctx)
	if err != nil {
		return ibeacon.Record{}, fmt.Errorf("load advertisement: %w", err)
	}

	r := ibeacon.DefaultRecord()
	if ok {
		r = raw.Record()
		logger.Debug(s.session.tag, "loaded saved advertisement %s", raw)
	} else {
		logger.Debug(s.session.tag, "no saved advertisement, using default")
	}

	s.mu.Lock()
	s.record = r
	s.mu.Unlock()
	return r.Clone(), nil
}

// Record returns the record the service would broadcast next.
func (s *Service) Record() ibeacon.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Clone()
}

// Form returns the current record as editable hex strings.
func (s *Service) Form() ibeacon.FormFields {
	return ibeacon.FormFieldsFromRecord(s.Record())
}

// Start broadcasts the current record.
func (s *Service) Start() (*Completion, error) {
	return s.session.Start(s.Record())
}

// Apply validates edited form fields, persists the result, and restarts the broadcast
// with it. Nothing is saved or broadcast unless every field is valid.
func (s *Service) Apply(ctx context.Context, ff ibeacon.FormFields) (*Completion, error) {
	if mask := ibeacon.ValidateLengths(ff); !mask.Complete() {
		return nil, &ValidationError{Mask: mask, Messages: FieldMessages(mask)}
	}
	r, err := ff.Record()
	if err != nil {
		return nil, err
	}
	raw, err := ibeacon.Encode(r)
	if err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, raw); err != nil {
		return nil, fmt.Errorf("save advertisement: %w", err)
	}

	s.mu.Lock()
	s.record = r
	s.mu.Unlock()

	if err := s.session.Stop(); err != nil && !errors.Is(err, ErrNotActive) {
		return nil, err
	}
	return s.session.Start(r)
}

// Close tears the broadcast down.
func (s *Service) Close() error {
	return s.session.Close()
}
