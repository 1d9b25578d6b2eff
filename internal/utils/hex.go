package utils

import (
	"encoding/hex"
	"strings"
)

// HexUpper renders b as upper-case hex, the form Ruuvi gateways use in
// their envelopes.
func HexUpper(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// CompanyHex formats a Bluetooth company identifier as 0xNNNN.
func CompanyHex(id uint16) string {
	return "0x" + HexUpper([]byte{byte(id >> 8), byte(id)})
}
