package ibeacon

import "fmt"

// LengthError is returned by Decode when the input is not exactly RawLen bytes.
type LengthError struct {
	Got int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("ibeacon: advertisement must be %d bytes, got %d", RawLen, e.Got)
}

// IncompleteRecordError is returned by Encode when a field does not hold exactly
// its declared number of bytes.
type IncompleteRecordError struct {
	Field Field
	Want  int
	Got   int
}

func (e *IncompleteRecordError) Error() string {
	return fmt.Sprintf("ibeacon: %s must be %d bytes, got %d", e.Field, e.Want, e.Got)
}

// InvalidHexError is returned when a field string is the wrong length or holds
// characters outside [0-9a-fA-F].
type InvalidHexError struct {
	Input  string
	Want   int // expected string length in characters
	Reason string
}

func (e *InvalidHexError) Error() string {
	return fmt.Sprintf("ibeacon: invalid hex %q: %s", e.Input, e.Reason)
}

// HeaderError is returned by DecodeStrict when the first two bytes are not 02 15.
type HeaderError struct {
	Got [2]byte
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("ibeacon: unexpected header %02x %02x (want %02x %02x)", e.Got[0], e.Got[1], HeaderType, HeaderLength)
}
