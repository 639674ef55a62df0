package ibeacon

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// FieldToHex returns the canonical lowercase form, two digits per byte.
func FieldToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// HexToField parses s into exactly n bytes. Odd lengths, lengths other than 2n and
// non-hex characters are rejected rather than truncated.
func HexToField(s string, n int) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, &InvalidHexError{Input: s, Want: 2 * n, Reason: "odd length"}
	}
	if len(s) != 2*n {
		return nil, &InvalidHexError{Input: s, Want: 2 * n, Reason: fmt.Sprintf("want %d hex digits, got %d", 2*n, len(s))}
	}
	for i := 0; i < len(s); i++ {
		if !isHexDigit(s[i]) {
			return nil, &InvalidHexError{Input: s, Want: 2 * n, Reason: fmt.Sprintf("non-hex character %q at %d", s[i], i)}
		}
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, &InvalidHexError{Input: s, Want: 2 * n, Reason: err.Error()}
	}
	return b, nil
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// NewProximityID returns a random proximity identifier cut from a version 4 UUID.
func NewProximityID() []byte {
	u := uuid.New()
	return append([]byte(nil), u[:FieldProximityID.Len()]...)
}
