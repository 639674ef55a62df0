package wire

import "time"

// AdvertisingData is what a simulated device puts on the air. The on-disk form is JSON,
// one file per device.
type AdvertisingData struct {
	DeviceName       string    `json:"device_name,omitempty"`
	ManufacturerID   uint16    `json:"manufacturer_id"`
	ManufacturerData []byte    `json:"manufacturer_data"`
	TxPowerLevel     *int      `json:"tx_power_level,omitempty"`
	IsConnectable    bool      `json:"is_connectable"`
	AdvertiseMode    int       `json:"advertise_mode"`
	IntervalMs       int       `json:"interval_ms"`
	Payload          []byte    `json:"payload"` // complete AD block as it would be transmitted
	UpdatedAt        time.Time `json:"updated_at"`
}
