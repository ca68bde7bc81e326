package message

import (
	"fmt"

	"github.com/pkg/errors"
)

// Opcode is an access layer opcode. One octet opcodes are 0x00-0x7E, two octet
// opcodes 0x8000-0xBFFF and vendor opcodes 0xC00000-0xFFFFFF.
type Opcode uint32

// Foundation model (Configuration Server) opcodes.
const (
	OpAppKeyAdd               Opcode = 0x00
	OpAppKeyStatus            Opcode = 0x8003
	OpCompositionDataGet      Opcode = 0x8008
	OpCompositionDataStatus   Opcode = 0x02
	OpModelAppBind            Opcode = 0x803D
	OpModelAppStatus          Opcode = 0x803E
	OpModelPublicationSet     Opcode = 0x03
	OpModelPublicationStatus  Opcode = 0x8019
	OpModelSubscriptionAdd    Opcode = 0x801B
	OpModelSubscriptionDelete Opcode = 0x801C
	OpModelSubscriptionStatus Opcode = 0x801F
	OpDefaultTTLGet           Opcode = 0x800C
	OpDefaultTTLSet           Opcode = 0x800D
	OpDefaultTTLStatus        Opcode = 0x800E
	OpNodeReset               Opcode = 0x8049
	OpNodeResetStatus         Opcode = 0x804A
)

var (
	ErrShortOpcode   = errors.New("opcode truncated")
	ErrRFUOpcode     = errors.New("opcode 0x7f is reserved")
	ErrUnknownOpcode = errors.New("unknown opcode")
)

func (o Opcode) Bytes() []byte {
	switch {
	case o <= 0x7E:
		return []byte{byte(o)}
	case o <= 0xFFFF:
		return []byte{byte(o >> 8), byte(o)}
	default:
		return []byte{byte(o >> 16), byte(o >> 8), byte(o)}
	}
}

func (o Opcode) String() string {
	if d, ok := dispatcher[o]; ok {
		return d.desc
	}
	return fmt.Sprintf("opcode 0x%X", uint32(o))
}

// ReadOpcode splits an access payload into opcode and parameters.
func ReadOpcode(b []byte) (Opcode, []byte, error) {
	if len(b) == 0 {
		return 0, nil, ErrShortOpcode
	}

	switch b[0] >> 6 {
	case 0, 1:
		if b[0] == 0x7F {
			return 0, nil, ErrRFUOpcode
		}
		return Opcode(b[0]), b[1:], nil
	case 2:
		if len(b) < 2 {
			return 0, nil, ErrShortOpcode
		}
		return Opcode(b[0])<<8 | Opcode(b[1]), b[2:], nil
	default:
		if len(b) < 3 {
			return 0, nil, ErrShortOpcode
		}
		return Opcode(b[0])<<16 | Opcode(b[1])<<8 | Opcode(b[2]), b[3:], nil
	}
}
