// Package ruuvi decodes Ruuvi manufacturer-specific advertisement data.
//
// Manufacturer data layout (after the BLE AD structure header):
// [0:2] company id 0x0499 little-endian (99 04), [2] data format,
// [3:] format specific fields, all multi-byte fields big-endian.
// RAWv1 (0x03) needs 16 bytes, RAWv2 (0x05) needs 20 bytes.
package ruuvi

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
)

// CompanyID is the Bluetooth SIG company identifier of Ruuvi Innovations.
const CompanyID uint16 = 0x0499

const (
	headerLen = 3
	rawV1Len  = 16
	rawV2Len  = 20

	pressureOffset = 50000
)

var (
	ErrForeignManufacturer = errors.New("foreign manufacturer")
	ErrUnknownFormat       = errors.New("unknown data format")
	ErrTruncatedPayload    = errors.New("truncated payload")
	ErrMalformedPayload    = errors.New("malformed payload")
)

// ParseHex decodes a hex encoded manufacturer data string.
func ParseHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return b, nil
}

// IsRuuvi reports whether data starts with the Ruuvi company id.
func IsRuuvi(data []byte) bool {
	return len(data) >= 2 && binary.LittleEndian.Uint16(data[0:2]) == CompanyID
}

// Decode checks the manufacturer id, dispatches on the data format byte
// and decodes the payload. It never panics on short or unexpected input;
// every rejection is reported as one of the package errors.
func Decode(data []byte) (Record, error) {
	if len(data) < 2 {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrTruncatedPayload, len(data))
	}
	if !IsRuuvi(data) {
		return Record{}, fmt.Errorf("%w: 0x%04X", ErrForeignManufacturer, binary.LittleEndian.Uint16(data[0:2]))
	}
	if len(data) < headerLen {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrTruncatedPayload, len(data))
	}

	switch f := Format(data[2]); f {
	case FormatRAWv1:
		return decodeRAWv1(data)
	case FormatRAWv2:
		return decodeRAWv2(data)
	default:
		return Record{}, fmt.Errorf("%w: %s", ErrUnknownFormat, f)
	}
}

func decodeRAWv1(data []byte) (Record, error) {
	if len(data) < rawV1Len {
		return Record{}, fmt.Errorf("%w: RAWv1 needs %d bytes, got %d", ErrTruncatedPayload, rawV1Len, len(data))
	}

	humidity := float64(data[3]) / 2

	// Sign and magnitude: whole degrees with bit 7 as sign, then hundredths.
	temperature := float64(data[4]) + float64(data[5])/100
	if temperature > 128 {
		temperature = -(temperature - 128)
	}

	return Record{
		Format: FormatRAWv1,
		Readings: []Reading{
			{MetricHumidity, humidity},
			{MetricTemperature, round2(temperature)},
			{MetricPressure, float64(binary.BigEndian.Uint16(data[6:8])) + pressureOffset},
			{MetricAccelerationX, float64(int16(binary.BigEndian.Uint16(data[8:10])))},
			{MetricAccelerationY, float64(int16(binary.BigEndian.Uint16(data[10:12])))},
			{MetricAccelerationZ, float64(int16(binary.BigEndian.Uint16(data[12:14])))},
			{MetricBattery, float64(binary.BigEndian.Uint16(data[14:16]))},
		},
	}, nil
}

func decodeRAWv2(data []byte) (Record, error) {
	if len(data) < rawV2Len {
		return Record{}, fmt.Errorf("%w: RAWv2 needs %d bytes, got %d", ErrTruncatedPayload, rawV2Len, len(data))
	}

	temperature := float64(int16(binary.BigEndian.Uint16(data[3:5]))) / 200 // 0.005 C
	humidity := float64(binary.BigEndian.Uint16(data[5:7])) / 400           // 0.0025 %

	power := binary.BigEndian.Uint16(data[15:17])
	battery := int(power>>5) + 1600
	txPower := int(power&0x1F) - 40

	return Record{
		Format: FormatRAWv2,
		Readings: []Reading{
			{MetricTemperature, round2(temperature)},
			{MetricHumidity, round2(humidity)},
			{MetricPressure, float64(binary.BigEndian.Uint16(data[7:9])) + pressureOffset},
			{MetricAccelerationX, float64(int16(binary.BigEndian.Uint16(data[9:11])))},
			{MetricAccelerationY, float64(int16(binary.BigEndian.Uint16(data[11:13])))},
			{MetricAccelerationZ, float64(int16(binary.BigEndian.Uint16(data[13:15])))},
			{MetricBattery, float64(battery)},
			{MetricTxPower, float64(txPower)},
			{MetricMovementCounter, float64(data[17])},
			{MetricSequenceCounter, float64(binary.BigEndian.Uint16(data[18:20]))},
		},
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
