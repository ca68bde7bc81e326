package network

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/rigado/blemesh"
	"github.com/rigado/blemesh/crypto"
	"github.com/rigado/blemesh/sliceops"
)

const (
	netHeaderLen = 9 // IVI|NID, CTL|TTL, SEQ(3), SRC(2)
	netMinLen    = netHeaderLen + 1 + 4
	netMaxLen    = 29

	nonceNetwork     = 0x00
	nonceApplication = 0x01
	nonceDevice      = 0x02
)

var (
	ErrShortPDU      = errors.New("network pdu too short")
	ErrNID           = errors.New("nid does not match network key")
	ErrPDUTooLong    = errors.New("network pdu exceeds 29 bytes")
	ErrNotAddressed  = errors.New("pdu not addressed to this provisioner")
	ErrUnknownSource = errors.New("no device key for source")
)

// netHeader is the cleartext network header.
type netHeader struct {
	ctl bool
	ttl uint8
	seq uint32
	src mesh.Address
	dst mesh.Address
	iv  uint32
}

func (h netHeader) ctlTTL() byte {
	b := h.ttl & 0x7F
	if h.ctl {
		b |= 0x80
	}
	return b
}

func (h netHeader) micSize() int {
	if h.ctl {
		return 8
	}
	return 4
}

func networkNonce(h netHeader) []byte {
	return sliceops.Concat(
		[]byte{nonceNetwork, h.ctlTTL()},
		sliceops.Uint24(h.seq),
		h.src.Bytes(),
		[]byte{0x00, 0x00},
		uint32BE(h.iv),
	)
}

// upperNonce builds the application (akf) or device nonce.
func upperNonce(akf bool, szmic bool, seq uint32, src, dst mesh.Address, iv uint32) []byte {
	typ := byte(nonceDevice)
	if akf {
		typ = nonceApplication
	}
	var aszmic byte
	if szmic {
		aszmic = 0x80
	}
	return sliceops.Concat(
		[]byte{typ, aszmic},
		sliceops.Uint24(seq),
		src.Bytes(),
		dst.Bytes(),
		uint32BE(iv),
	)
}

func uint32BE(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// pecb computes the privacy block from the first 7 encrypted bytes.
func pecb(privacyKey []byte, iv uint32, privacyRandom []byte) ([]byte, error) {
	plain := sliceops.Concat(make([]byte, 5), uint32BE(iv), privacyRandom[:7])
	return crypto.E(privacyKey, plain)
}

// encodeNetworkPDU encrypts and obfuscates one network PDU.
func encodeNetworkPDU(snap mesh.Snapshot, h netHeader, transport []byte) ([]byte, error) {
	enc, err := crypto.CCMSeal(snap.EncryptionKey, networkNonce(h), sliceops.Concat(h.dst.Bytes(), transport), nil, h.micSize())
	if err != nil {
		return nil, errors.Wrap(err, "network encrypt")
	}

	if netHeaderLen-2+len(enc) > netMaxLen {
		return nil, ErrPDUTooLong
	}

	p, err := pecb(snap.PrivacyKey, h.iv, enc)
	if err != nil {
		return nil, err
	}

	clear := sliceops.Concat([]byte{h.ctlTTL()}, sliceops.Uint24(h.seq), h.src.Bytes())
	obf := sliceops.Xor(clear, p[:6])

	ivi := byte(h.iv&1) << 7
	return sliceops.Concat([]byte{ivi | snap.NID&0x7F}, obf, enc), nil
}

// decodeNetworkPDU de-obfuscates and decrypts a network PDU, returning the
// header and the lower transport PDU.
func decodeNetworkPDU(snap mesh.Snapshot, pdu []byte) (netHeader, []byte, error) {
	if len(pdu) < netMinLen {
		return netHeader{}, nil, ErrShortPDU
	}
	if pdu[0]&0x7F != snap.NID {
		return netHeader{}, nil, ErrNID
	}

	h := netHeader{iv: snap.IVIndex}
	// a PDU may still use the previous IV index during an update
	if uint32(pdu[0]>>7) != snap.IVIndex&1 && snap.IVIndex > 0 {
		h.iv = snap.IVIndex - 1
	}

	p, err := pecb(snap.PrivacyKey, h.iv, pdu[7:])
	if err != nil {
		return netHeader{}, nil, err
	}
	clear := sliceops.Xor(pdu[1:7], p[:6])

	h.ctl = clear[0]&0x80 != 0
	h.ttl = clear[0] & 0x7F
	h.seq = uint32(clear[1])<<16 | uint32(clear[2])<<8 | uint32(clear[3])
	h.src = mesh.Address(binary.BigEndian.Uint16(clear[4:]))

	if len(pdu[7:]) < 2+1+h.micSize() {
		return netHeader{}, nil, ErrShortPDU
	}

	plain, err := crypto.CCMOpen(snap.EncryptionKey, networkNonce(h), pdu[7:], nil, h.micSize())
	if err != nil {
		return netHeader{}, nil, errors.Wrap(err, "network decrypt")
	}

	h.dst = mesh.Address(binary.BigEndian.Uint16(plain))
	return h, plain[2:], nil
}
