// Package adv decodes the AD structures of advertising and scan response
// data, far enough to find mesh proxy service data.
package adv

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

var ErrEmptyPdu = errors.New("nil/empty pdu")

// https://www.bluetooth.org/en-us/specification/assigned-numbers/generic-access-profile
var types = struct {
	flags       byte
	uuid16inc   byte
	uuid16comp  byte
	uuid32inc   byte
	uuid32comp  byte
	uuid128inc  byte
	uuid128comp byte
	svc16       byte
	svc32       byte
	svc128      byte
	nameshort   byte
	namecomp    byte
	txpwr       byte
	mfgdata     byte
}{
	flags:       0x01,
	uuid16inc:   0x02,
	uuid16comp:  0x03,
	uuid32inc:   0x04,
	uuid32comp:  0x05,
	uuid128inc:  0x06,
	uuid128comp: 0x07,
	svc16:       0x16,
	svc32:       0x20,
	svc128:      0x21,
	nameshort:   0x08,
	namecomp:    0x09,
	txpwr:       0x0a,
	mfgdata:     0xff,
}

// UUID is a service UUID in advertised (little-endian) byte order.
type UUID []byte

func (u UUID) String() string {
	b := make([]byte, len(u))
	for i := range u {
		b[len(u)-1-i] = u[i]
	}
	return fmt.Sprintf("%X", b)
}

// ServiceData is one service data AD structure.
type ServiceData struct {
	UUID UUID
	Data []byte
}

// Advertisement holds the decoded AD structures of one PDU.
type Advertisement struct {
	Flags            []byte
	Services         []UUID
	ServiceData      []ServiceData
	LocalName        string
	TxPower          []byte
	ManufacturerData []byte
}

// ServiceData16 returns the payloads of all service data structures for a
// 16-bit UUID.
func (a *Advertisement) ServiceData16(uuid uint16) [][]byte {
	var out [][]byte
	for _, sd := range a.ServiceData {
		if len(sd.UUID) == 2 && binary.LittleEndian.Uint16(sd.UUID) == uuid {
			out = append(out, sd.Data)
		}
	}
	return out
}

type pduRecord struct {
	arrayElementSz int
	minSz          int
	svcDataUUIDSz  int
	set            func(a *Advertisement, b []byte)
}

var pduDecodeMap = map[byte]pduRecord{
	types.uuid16inc:   {2, 2, 0, nil},
	types.uuid16comp:  {2, 2, 0, nil},
	types.uuid32inc:   {4, 4, 0, nil},
	types.uuid32comp:  {4, 4, 0, nil},
	types.uuid128inc:  {16, 16, 0, nil},
	types.uuid128comp: {16, 16, 0, nil},
	types.svc16:       {0, 2, 2, nil},
	types.svc32:       {0, 4, 4, nil},
	types.svc128:      {0, 16, 16, nil},
	types.namecomp:    {0, 1, 0, func(a *Advertisement, b []byte) { a.LocalName = string(b) }},
	types.nameshort:   {0, 1, 0, func(a *Advertisement, b []byte) { a.LocalName = string(b) }},
	types.txpwr:       {0, 1, 0, func(a *Advertisement, b []byte) { a.TxPower = b }},
	types.mfgdata:     {0, 1, 0, func(a *Advertisement, b []byte) { a.ManufacturerData = b }},
	types.flags:       {0, 1, 0, func(a *Advertisement, b []byte) { a.Flags = b }},
}

func getArray(size int, bytes []byte) ([]UUID, error) {
	//valid size?
	if size <= 0 {
		return nil, fmt.Errorf("invalid size")
	}

	//any remainder?
	count := len(bytes) / size
	rem := len(bytes) % size
	if rem != 0 || count == 0 {
		return nil, fmt.Errorf("incorrect size")
	}

	arr := make([]UUID, 0, count)
	for j := 0; j < len(bytes); j += size {
		arr = append(arr, UUID(bytes[j:(j+size)]))
	}

	return arr, nil
}

// Parse decodes the AD structures of pdu. Unknown types are skipped.
func Parse(pdu []byte) (*Advertisement, error) {
	if len(pdu) == 0 {
		return nil, ErrEmptyPdu
	}

	a := &Advertisement{}
	for i := 0; (i + 1) < len(pdu); {
		//length @ offset 0
		//type @ offset 1
		//data @ 1 - (length-1)
		length := int(pdu[i])
		typ := pdu[i+1]

		if length < 1 {
			return a, fmt.Errorf("invalid record length %v, idx %v", length, i)
		}

		if (i + length) >= len(pdu) {
			return a, fmt.Errorf("buffer overflow: want %v, have %v, idx %v", i+length, len(pdu), i)
		}

		start := i + 2
		end := start + length - 1
		bytes := make([]byte, len(pdu[start:end]))
		copy(bytes, pdu[start:end])

		dec, ok := pduDecodeMap[typ]
		if ok && len(bytes) != 0 {
			if dec.minSz > len(bytes) {
				return a, fmt.Errorf("adv type %v: min length %v, have %v, idx %v", typ, dec.minSz, len(bytes), i)
			}

			switch {
			case dec.arrayElementSz > 0:
				arr, err := getArray(dec.arrayElementSz, bytes)
				if err != nil {
					return a, errors.Wrapf(err, "adv type %v, idx %v", typ, i)
				}
				a.Services = append(a.Services, arr...)

			case dec.svcDataUUIDSz > 0:
				a.ServiceData = append(a.ServiceData, ServiceData{
					UUID: UUID(bytes[:dec.svcDataUUIDSz]),
					Data: bytes[dec.svcDataUUIDSz:],
				})

			default:
				dec.set(a, bytes)
			}
		}

		i += length + 1
	}

	return a, nil
}
