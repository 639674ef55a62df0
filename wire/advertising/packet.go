package advertising

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/user/ibeacon-blue/wire/ibeacon"
)

// AD Types (Advertising Data Types) - EIR/AD format
const (
	ADTypeFlags                    = 0x01 // Flags
	ADTypeCompleteLocalName        = 0x09 // Complete Local Name
	ADTypeTxPowerLevel             = 0x0A // Tx Power Level
	ADTypeManufacturerSpecificData = 0xFF // Manufacturer Specific Data
)

// Advertising Flags (used in ADTypeFlags)
const (
	FlagLELimitedDiscoverableMode = 0x01 // LE Limited Discoverable Mode
	FlagLEGeneralDiscoverableMode = 0x02 // LE General Discoverable Mode
	FlagBREDRNotSupported         = 0x04 // BR/EDR Not Supported
)

const MaxAdvertisingDataLen = 31 // BLE 4.x advertising data limit

// ErrDataTooLarge is returned when the encoded AD block exceeds MaxAdvertisingDataLen.
var ErrDataTooLarge = errors.New("advertising: data exceeds 31 bytes")

// ErrNotIBeacon is returned by ParseIBeacon when no Apple manufacturer data carrying
// a 23-byte payload is present.
var ErrNotIBeacon = errors.New("advertising: no iBeacon manufacturer data")

// ADStructure represents a single TLV (Type-Length-Value) structure in advertising data
// Format: [Length: 1 byte] [Type: 1 byte] [Data: N bytes]
// Note: Length includes the Type byte but not itself
type ADStructure struct {
	Type byte   // AD Type (flags, manufacturer data, etc.)
	Data []byte // AD Data
}

// EncodeADStructures encodes multiple AD structures into a single advertising data payload
func EncodeADStructures(structures []ADStructure) ([]byte, error) {
	var buf []byte

	for _, s := range structures {
		// Length = 1 (type byte) + len(data)
		length := 1 + len(s.Data)
		if length > 255 {
			return nil, fmt.Errorf("AD structure too long: %d bytes (max 255)", length)
		}

		buf = append(buf, byte(length))
		buf = append(buf, s.Type)
		buf = append(buf, s.Data...)
	}

	if len(buf) > MaxAdvertisingDataLen {
		return nil, fmt.Errorf("%w: %d", ErrDataTooLarge, len(buf))
	}

	return buf, nil
}

// DecodeADStructures parses advertising data into individual AD structures
func DecodeADStructures(data []byte) ([]ADStructure, error) {
	var structures []ADStructure
	offset := 0

	for offset < len(data) {
		length := int(data[offset])
		if length == 0 {
			// Padding or end of data
			break
		}

		offset++
		if offset+length > len(data) {
			return nil, fmt.Errorf("AD structure length exceeds data: length=%d, remaining=%d", length, len(data)-offset)
		}

		adType := data[offset]
		offset++
		adData := make([]byte, length-1)
		copy(adData, data[offset:offset+length-1])
		offset += length - 1

		structures = append(structures, ADStructure{
			Type: adType,
			Data: adData,
		})
	}

	return structures, nil
}

// NewFlagsAD creates a flags AD structure
func NewFlagsAD(flags byte) ADStructure {
	return ADStructure{
		Type: ADTypeFlags,
		Data: []byte{flags},
	}
}

// NewCompleteLocalNameAD creates a complete local name AD structure
func NewCompleteLocalNameAD(name string) ADStructure {
	return ADStructure{
		Type: ADTypeCompleteLocalName,
		Data: []byte(name),
	}
}

// NewTxPowerLevelAD creates a Tx power level AD structure
func NewTxPowerLevelAD(powerLevel int8) ADStructure {
	return ADStructure{
		Type: ADTypeTxPowerLevel,
		Data: []byte{byte(powerLevel)},
	}
}

// NewManufacturerSpecificDataAD creates a manufacturer-specific data AD structure
func NewManufacturerSpecificDataAD(companyID uint16, data []byte) ADStructure {
	payload := make([]byte, 2+len(data))
	binary.LittleEndian.PutUint16(payload[0:2], companyID)
	copy(payload[2:], data)
	return ADStructure{
		Type: ADTypeManufacturerSpecificData,
		Data: payload,
	}
}

// IBeaconStructures returns the AD structures a platform stack places in front of and
// around the raw iBeacon payload: general-discoverable LE-only flags followed by Apple
// manufacturer data.
func IBeaconStructures(raw ibeacon.RawAdvertisement) []ADStructure {
	return []ADStructure{
		NewFlagsAD(FlagLEGeneralDiscoverableMode | FlagBREDRNotSupported),
		NewManufacturerSpecificDataAD(ibeacon.CompanyID, raw[:]),
	}
}

// EncodeIBeacon builds the complete advertising data block for raw (30 bytes).
func EncodeIBeacon(raw ibeacon.RawAdvertisement, extra ...ADStructure) ([]byte, error) {
	return EncodeADStructures(append(IBeaconStructures(raw), extra...))
}

// ParseIBeacon extracts the 23-byte payload from a complete advertising data block.
func ParseIBeacon(data []byte) (ibeacon.RawAdvertisement, error) {
	structures, err := DecodeADStructures(data)
	if err != nil {
		return ibeacon.RawAdvertisement{}, err
	}
	companyID, md, found := GetManufacturerData(structures)
	if !found || companyID != ibeacon.CompanyID {
		return ibeacon.RawAdvertisement{}, ErrNotIBeacon
	}
	raw, err := ibeacon.ParseRaw(md)
	if err != nil {
		return ibeacon.RawAdvertisement{}, fmt.Errorf("%w: %v", ErrNotIBeacon, err)
	}
	return raw, nil
}

// GetFlags extracts the flags from AD structures
func GetFlags(structures []ADStructure) (byte, bool) {
	for _, s := range structures {
		if s.Type == ADTypeFlags && len(s.Data) > 0 {
			return s.Data[0], true
		}
	}
	return 0, false
}

// GetManufacturerData extracts manufacturer-specific data from AD structures
func GetManufacturerData(structures []ADStructure) (companyID uint16, data []byte, found bool) {
	for _, s := range structures {
		if s.Type == ADTypeManufacturerSpecificData && len(s.Data) >= 2 {
			companyID = binary.LittleEndian.Uint16(s.Data[0:2])
			data = s.Data[2:]
			found = true
			return
		}
	}
	return 0, nil, false
}

// ADTypeName returns a human-readable name for an AD type
func ADTypeName(adType byte) string {
	switch adType {
	case ADTypeFlags:
		return "Flags"
	case ADTypeCompleteLocalName:
		return "Complete Local Name"
	case ADTypeTxPowerLevel:
		return "Tx Power Level"
	case ADTypeManufacturerSpecificData:
		return "Manufacturer Specific Data"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", adType)
	}
}
