package network

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"

	"github.com/rigado/blemesh"
	"github.com/rigado/blemesh/crypto"
)

const (
	maxUnsegmentedUpper = 15
	segmentSize         = 12
	maxSegments         = 32

	ctlSegmentAck = 0x00

	seqZeroMask = 0x1FFF
)

var (
	ErrMessageTooLong = errors.New("upper transport pdu exceeds 32 segments")
	ErrSegmentHeader  = errors.New("invalid segment header")
)

// AckDelay is the acknowledgment timer for a segmented message received with
// the given TTL: 150 ms + 50 ms * TTL.
func AckDelay(ttl uint8) time.Duration {
	return 150*time.Millisecond + time.Duration(ttl)*50*time.Millisecond
}

// segmentHeader is the 4 octet header of a segmented access message.
type segmentHeader struct {
	akf     bool
	aid     byte
	szmic   bool
	seqZero uint16
	segO    byte
	segN    byte
}

func (s segmentHeader) marshal() []byte {
	b0 := byte(0x80) | s.aid&0x3F
	if s.akf {
		b0 |= 0x40
	}
	b1 := byte(s.seqZero >> 6 & 0x7F)
	if s.szmic {
		b1 |= 0x80
	}
	return []byte{
		b0,
		b1,
		byte(s.seqZero&0x3F)<<2 | s.segO>>3&0x03,
		(s.segO&0x07)<<5 | s.segN&0x1F,
	}
}

func parseSegmentHeader(b []byte) (segmentHeader, error) {
	if len(b) < 5 || b[0]&0x80 == 0 {
		return segmentHeader{}, ErrSegmentHeader
	}
	h := segmentHeader{
		akf:     b[0]&0x40 != 0,
		aid:     b[0] & 0x3F,
		szmic:   b[1]&0x80 != 0,
		seqZero: uint16(b[1]&0x7F)<<6 | uint16(b[2]>>2),
		segO:    (b[2]&0x03)<<3 | b[3]>>5,
		segN:    b[3] & 0x1F,
	}
	if h.segO > h.segN {
		return segmentHeader{}, ErrSegmentHeader
	}
	return h, nil
}

// segmentAck builds the Segment Acknowledgment control PDU.
func segmentAck(seqZero uint16, blockAck uint32) []byte {
	b := make([]byte, 7)
	b[0] = ctlSegmentAck
	b[1] = byte(seqZero >> 6 & 0x7F)
	b[2] = byte(seqZero&0x3F) << 2
	binary.BigEndian.PutUint32(b[3:], blockAck)
	return b
}

// seqAuth recovers the sequence number of the first segment from the
// sequence number of any segment and the 13-bit SeqZero.
func seqAuth(seq uint32, seqZero uint16) uint32 {
	return seq - ((seq - uint32(seqZero)) & seqZeroMask)
}

// inbound is a segmented message being received.
type inbound struct {
	hdr      segmentHeader
	dst      mesh.Address
	ttl      uint8
	iv       uint32
	segs     [][]byte
	received uint32
}

func (in *inbound) complete() bool {
	return in.received == (uint32(1)<<(uint32(in.hdr.segN)+1))-1
}

func (in *inbound) upper() []byte {
	var out []byte
	for _, s := range in.segs {
		out = append(out, s...)
	}
	return out
}

// upperKeys selects the key for an upper transport PDU: the device key of
// peer for akf=0, otherwise the app key whose AID matches.
func upperKeys(snap mesh.Snapshot, akf bool, aid byte, peer mesh.Address) ([][]byte, error) {
	if !akf {
		n, ok := snap.Node(peer)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownSource, "%v", peer)
		}
		return [][]byte{n.DeviceKey[:]}, nil
	}

	var keys [][]byte
	for _, ak := range snap.AppKeys {
		id, err := crypto.K4(ak.Key[:])
		if err != nil {
			return nil, err
		}
		if id == aid {
			k := ak.Key
			keys = append(keys, k[:])
		}
	}
	if len(keys) == 0 {
		return nil, errors.Errorf("no app key with aid 0x%02x", aid)
	}
	return keys, nil
}

// decryptUpper tries every candidate key, since AIDs may collide.
func decryptUpper(snap mesh.Snapshot, akf bool, aid byte, szmic bool, seq uint32, src, dst mesh.Address, iv uint32, upper []byte) ([]byte, error) {
	keys, err := upperKeys(snap, akf, aid, src)
	if err != nil {
		return nil, err
	}

	mic := 4
	if szmic {
		mic = 8
	}
	nonce := upperNonce(akf, szmic, seq, src, dst, iv)

	for _, k := range keys {
		out, oerr := crypto.CCMOpen(k, nonce, upper, nil, mic)
		if oerr == nil {
			return out, nil
		}
		err = oerr
	}
	return nil, errors.Wrap(err, "upper transport decrypt")
}
