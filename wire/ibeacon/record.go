// Package ibeacon packs and unpacks the 23-byte iBeacon manufacturer-data payload.
//
// Layout (offsets into the raw advertisement):
//
//	[0]      0x02 iBeacon type
//	[1]      0x15 remaining length (21)
//	[2:16]   proximity identifier (14 bytes)
//	[16:18]  battery voltage
//	[18:20]  major, big endian
//	[20:22]  minor, big endian
//	[22]     signal power, signed
//
// Fields are opaque byte sequences; no byte order is applied on encode or decode.
package ibeacon

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
)

// Fixed header bytes and sizes
const (
	HeaderType   = 0x02 // iBeacon advertisement type
	HeaderLength = 0x15 // length of the data that follows the header
	RawLen       = 23

	// CompanyID is the Bluetooth SIG company identifier the payload is
	// advertised under (Apple).
	CompanyID = 0x004C
)

// Field identifies one of the five editable fields of a Record.
type Field int

const (
	FieldProximityID Field = iota
	FieldBatteryVoltage
	FieldMajor
	FieldMinor
	FieldSignalPower
)

// Fields lists every field in wire order.
var Fields = []Field{FieldProximityID, FieldBatteryVoltage, FieldMajor, FieldMinor, FieldSignalPower}

var fieldLayout = [...]struct {
	name   string
	offset int
	length int
}{
	FieldProximityID:    {"proximity id", 2, 14},
	FieldBatteryVoltage: {"battery voltage", 16, 2},
	FieldMajor:          {"major", 18, 2},
	FieldMinor:          {"minor", 20, 2},
	FieldSignalPower:    {"signal power", 22, 1},
}

func (f Field) valid() bool { return f >= 0 && int(f) < len(fieldLayout) }

func (f Field) String() string {
	if !f.valid() {
		return "unknown field"
	}
	return fieldLayout[f].name
}

// Len returns the exact byte length of the field, or 0 for an unknown field.
func (f Field) Len() int {
	if !f.valid() {
		return 0
	}
	return fieldLayout[f].length
}

// Offset returns the byte offset of the field inside a RawAdvertisement,
// or 0 for an unknown field.
func (f Field) Offset() int {
	if !f.valid() {
		return 0
	}
	return fieldLayout[f].offset
}

// Record is the decoded, editable form of an advertisement. Fields are slices so that
// partially entered values can be represented; Encode rejects them.
type Record struct {
	ProximityID    []byte
	BatteryVoltage []byte
	Major          []byte
	Minor          []byte
	SignalPower    []byte
}

// Get returns the bytes held for f.
func (r Record) Get(f Field) []byte {
	switch f {
	case FieldProximityID:
		return r.ProximityID
	case FieldBatteryVoltage:
		return r.BatteryVoltage
	case FieldMajor:
		return r.Major
	case FieldMinor:
		return r.Minor
	case FieldSignalPower:
		return r.SignalPower
	}
	return nil
}

// With returns a copy of r with field f replaced by b.
func (r Record) With(f Field, b []byte) Record {
	out := r.Clone()
	b = bytes.Clone(b)
	switch f {
	case FieldProximityID:
		out.ProximityID = b
	case FieldBatteryVoltage:
		out.BatteryVoltage = b
	case FieldMajor:
		out.Major = b
	case FieldMinor:
		out.Minor = b
	case FieldSignalPower:
		out.SignalPower = b
	}
	return out
}

// Clone returns a deep copy so the record can cross an ownership boundary.
func (r Record) Clone() Record {
	return Record{
		ProximityID:    bytes.Clone(r.ProximityID),
		BatteryVoltage: bytes.Clone(r.BatteryVoltage),
		Major:          bytes.Clone(r.Major),
		Minor:          bytes.Clone(r.Minor),
		SignalPower:    bytes.Clone(r.SignalPower),
	}
}

// Equal reports whether both records hold the same bytes in every field.
func (r Record) Equal(o Record) bool {
	for _, f := range Fields {
		if !bytes.Equal(r.Get(f), o.Get(f)) {
			return false
		}
	}
	return true
}

// Complete reports whether every field holds exactly its declared length.
func (r Record) Complete() bool {
	return r.check() == nil
}

func (r Record) check() error {
	for _, f := range Fields {
		if got := len(r.Get(f)); got != f.Len() {
			return &IncompleteRecordError{Field: f, Want: f.Len(), Got: got}
		}
	}
	return nil
}

// MajorValue interprets Major as a big-endian group identifier.
func (r Record) MajorValue() uint16 {
	if len(r.Major) != FieldMajor.Len() {
		return 0
	}
	return binary.BigEndian.Uint16(r.Major)
}

// MinorValue interprets Minor as a big-endian sub-group identifier.
func (r Record) MinorValue() uint16 {
	if len(r.Minor) != FieldMinor.Len() {
		return 0
	}
	return binary.BigEndian.Uint16(r.Minor)
}

// TxPower interprets SignalPower as the signed calibration value in dBm.
func (r Record) TxPower() int8 {
	if len(r.SignalPower) != FieldSignalPower.Len() {
		return 0
	}
	return int8(r.SignalPower[0])
}

// RawAdvertisement is the 23-byte wire form. It is a value type; copies never alias.
type RawAdvertisement [RawLen]byte

// Bytes returns a fresh slice holding the advertisement.
func (a RawAdvertisement) Bytes() []byte {
	b := make([]byte, RawLen)
	copy(b, a[:])
	return b
}

// String returns the lowercase hex form.
func (a RawAdvertisement) String() string {
	return hex.EncodeToString(a[:])
}

// Record decodes the advertisement. It cannot fail since the length is fixed.
func (a RawAdvertisement) Record() Record {
	r, _ := Decode(a[:])
	return r
}

// Encode packs r behind the fixed header.
func Encode(r Record) (RawAdvertisement, error) {
	var raw RawAdvertisement
	if err := r.check(); err != nil {
		return raw, err
	}

	raw[0] = HeaderType
	raw[1] = HeaderLength
	for _, f := range Fields {
		copy(raw[f.Offset():f.Offset()+f.Len()], r.Get(f))
	}
	return raw, nil
}

// Decode extracts the five fields at their fixed offsets. The header bytes are not
// checked; use DecodeStrict for that.
func Decode(raw []byte) (Record, error) {
	if len(raw) != RawLen {
		return Record{}, &LengthError{Got: len(raw)}
	}

	var r Record
	for _, f := range Fields {
		r = r.With(f, raw[f.Offset():f.Offset()+f.Len()])
	}
	return r, nil
}

// DecodeStrict is Decode plus a check that the header is 02 15.
func DecodeStrict(raw []byte) (Record, error) {
	r, err := Decode(raw)
	if err != nil {
		return Record{}, err
	}
	if raw[0] != HeaderType || raw[1] != HeaderLength {
		return Record{}, &HeaderError{Got: [2]byte{raw[0], raw[1]}}
	}
	return r, nil
}

// ParseRaw converts a slice into a RawAdvertisement, checking its length.
func ParseRaw(b []byte) (RawAdvertisement, error) {
	var raw RawAdvertisement
	if len(b) != RawLen {
		return raw, &LengthError{Got: len(b)}
	}
	copy(raw[:], b)
	return raw, nil
}

// DefaultRecord returns the advertisement used when nothing has been saved yet.
func DefaultRecord() Record {
	return Record{
		ProximityID:    []byte{0xd3, 0xcb, 0xd6, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0x1f},
		BatteryVoltage: []byte{0xee, 0xee},
		Major:          []byte{0xfe, 0xef},
		Minor:          []byte{0xaf, 0xfa},
		SignalPower:    []byte{0xc5}, // -59 dBm
	}
}

// DefaultAdvertisement is DefaultRecord encoded.
func DefaultAdvertisement() RawAdvertisement {
	raw, err := Encode(DefaultRecord())
	if err != nil {
		panic(err) // literal above is always complete
	}
	return raw
}
