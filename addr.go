package mesh

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Address is a 16-bit mesh address.
type Address uint16

const (
	UnassignedAddress Address = 0x0000
	MaxUnicastAddress Address = 0x7FFF
)

// ParseAddress accepts "0x0002", "0002" or "2".
func ParseAddress(s string) (Address, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %v", s, err)
	}
	return Address(v), nil
}

func (a Address) IsUnicast() bool {
	return a != UnassignedAddress && a <= MaxUnicastAddress
}

// Bytes returns the big-endian wire form used in network PDUs and nonces.
func (a Address) Bytes() []byte {
	return []byte{byte(a >> 8), byte(a)}
}

func (a Address) String() string {
	return "0x" + strings.ToUpper(hex.EncodeToString(a.Bytes()))
}
