// Package message implements the access layer messages of the Configuration
// Server model that the configurator sends and understands.
package message

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/rigado/blemesh"
)

// Message is an access layer message. Marshal returns the parameters without
// the opcode.
type Message interface {
	Opcode() Opcode
	Marshal() ([]byte, error)
}

// StatusMessage is a response that carries a status code.
type StatusMessage interface {
	Message
	StatusCode() Status
}

var ErrShortMessage = errors.New("message parameters truncated")

type msgDispatcher struct {
	desc   string
	decode func(p []byte) (Message, error)
}

var dispatcher = map[Opcode]msgDispatcher{
	OpAppKeyAdd:               {"appkey add", decodeAppKeyAdd},
	OpAppKeyStatus:            {"appkey status", decodeAppKeyStatus},
	OpCompositionDataGet:      {"composition data get", decodeCompositionDataGet},
	OpCompositionDataStatus:   {"composition data status", decodeCompositionDataStatus},
	OpModelAppBind:            {"model app bind", decodeModelAppBind},
	OpModelAppStatus:          {"model app status", decodeModelAppStatus},
	OpModelPublicationSet:     {"model publication set", decodeModelPublicationSet},
	OpModelPublicationStatus:  {"model publication status", decodeModelPublicationStatus},
	OpModelSubscriptionAdd:    {"model subscription add", decodeModelSubscriptionAdd},
	OpModelSubscriptionDelete: {"model subscription delete", decodeModelSubscriptionDelete},
	OpModelSubscriptionStatus: {"model subscription status", decodeModelSubscriptionStatus},
	OpDefaultTTLGet:           {"default ttl get", decodeDefaultTTLGet},
	OpDefaultTTLSet:           {"default ttl set", decodeDefaultTTLSet},
	OpDefaultTTLStatus:        {"default ttl status", decodeDefaultTTLStatus},
	OpNodeReset:               {"node reset", decodeNodeReset},
	OpNodeResetStatus:         {"node reset status", decodeNodeResetStatus},
}

// Encode returns opcode || parameters.
func Encode(m Message) ([]byte, error) {
	p, err := m.Marshal()
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %v", m.Opcode())
	}
	return append(m.Opcode().Bytes(), p...), nil
}

// Decode parses an access payload. Opcodes outside the table return
// ErrUnknownOpcode.
func Decode(b []byte) (Message, error) {
	op, p, err := ReadOpcode(b)
	if err != nil {
		return nil, err
	}

	d, ok := dispatcher[op]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownOpcode, "0x%X", uint32(op))
	}

	m, err := d.decode(p)
	if err != nil {
		return nil, errors.Wrapf(err, "%v: %v", d.desc, hex.EncodeToString(p))
	}
	return m, nil
}

// PackKeyIndexes packs a NetKey index and an AppKey index into the three
// octet little-endian form used by config messages.
func PackKeyIndexes(netKeyIndex, appKeyIndex uint16) [3]byte {
	v := uint32(netKeyIndex&0x0FFF) | uint32(appKeyIndex&0x0FFF)<<12
	return [3]byte{byte(v), byte(v >> 8), byte(v >> 16)}
}

func UnpackKeyIndexes(b []byte) (netKeyIndex, appKeyIndex uint16) {
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	return uint16(v & 0x0FFF), uint16(v >> 12)
}

func putAddress(b []byte, a mesh.Address) {
	binary.LittleEndian.PutUint16(b, uint16(a))
}

func getAddress(b []byte) mesh.Address {
	return mesh.Address(binary.LittleEndian.Uint16(b))
}

func marshalModel(m mesh.ModelID) []byte {
	if m.Vendor {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint16(b, m.CompanyID)
		binary.LittleEndian.PutUint16(b[2:], m.ID)
		return b
	}
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, m.ID)
	return b
}

// unmarshalModel reads a trailing model identifier, whose width is implied by
// the remaining length.
func unmarshalModel(b []byte) (mesh.ModelID, error) {
	switch len(b) {
	case 2:
		return mesh.SIGModel(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return mesh.VendorModel(binary.LittleEndian.Uint16(b), binary.LittleEndian.Uint16(b[2:])), nil
	default:
		return mesh.ModelID{}, errors.Errorf("invalid model identifier length %d", len(b))
	}
}
