package ibeacon

import "strings"

// ValidityMask has one bit per user-editable field that currently holds a hex string
// of the right length. Signal power has no bit.
type ValidityMask uint8

const (
	ValidProximityID ValidityMask = 1 << iota
	ValidBatteryVoltage
	ValidMajor
	ValidMinor

	ValidAll = ValidProximityID | ValidBatteryVoltage | ValidMajor | ValidMinor
)

var maskFields = []struct {
	bit   ValidityMask
	field Field
}{
	{ValidProximityID, FieldProximityID},
	{ValidBatteryVoltage, FieldBatteryVoltage},
	{ValidMajor, FieldMajor},
	{ValidMinor, FieldMinor},
}

// Complete reports whether all four bits are set.
func (m ValidityMask) Complete() bool { return m&ValidAll == ValidAll }

// Has reports whether the bit for f is set. Fields without a bit always report true.
func (m ValidityMask) Has(f Field) bool {
	for _, mf := range maskFields {
		if mf.field == f {
			return m&mf.bit != 0
		}
	}
	return true
}

// Invalid lists the fields whose bit is clear, in wire order.
func (m ValidityMask) Invalid() []Field {
	var out []Field
	for _, mf := range maskFields {
		if m&mf.bit == 0 {
			out = append(out, mf.field)
		}
	}
	return out
}

func (m ValidityMask) String() string {
	if m.Complete() {
		return "valid"
	}
	var names []string
	for _, f := range m.Invalid() {
		names = append(names, f.String())
	}
	return "invalid: " + strings.Join(names, ", ")
}

// FormFields holds the five hex strings a user edits.
type FormFields struct {
	ProximityID    string
	BatteryVoltage string
	Major          string
	Minor          string
	SignalPower    string
}

// Get returns the string for f.
func (ff FormFields) Get(f Field) string {
	switch f {
	case FieldProximityID:
		return ff.ProximityID
	case FieldBatteryVoltage:
		return ff.BatteryVoltage
	case FieldMajor:
		return ff.Major
	case FieldMinor:
		return ff.Minor
	case FieldSignalPower:
		return ff.SignalPower
	}
	return ""
}

// FormFieldsFromRecord fills the form from r.
func FormFieldsFromRecord(r Record) FormFields {
	return FormFields{
		ProximityID:    FieldToHex(r.ProximityID),
		BatteryVoltage: FieldToHex(r.BatteryVoltage),
		Major:          FieldToHex(r.Major),
		Minor:          FieldToHex(r.Minor),
		SignalPower:    FieldToHex(r.SignalPower),
	}
}

// ValidateLengths checks only the string lengths of the four masked fields.
func ValidateLengths(ff FormFields) ValidityMask {
	var m ValidityMask
	for _, mf := range maskFields {
		if len(ff.Get(mf.field)) == 2*mf.field.Len() {
			m |= mf.bit
		}
	}
	return m
}

// Record converts the form into a Record. Every field, signal power included, goes
// through HexToField, so the first malformed field is returned as *InvalidHexError.
func (ff FormFields) Record() (Record, error) {
	var r Record
	for _, f := range Fields {
		b, err := HexToField(ff.Get(f), f.Len())
		if err != nil {
			return Record{}, &FieldError{Field: f, Err: err}
		}
		r = r.With(f, b)
	}
	return r, nil
}

// FieldError ties a conversion error to the field it came from.
type FieldError struct {
	Field Field
	Err   error
}

func (e *FieldError) Error() string { return e.Field.String() + ": " + e.Err.Error() }

func (e *FieldError) Unwrap() error { return e.Err }
