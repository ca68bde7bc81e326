// Package sar segments and reassembles proxy PDUs that do not fit a single
// write on the proxy data characteristics.
package sar

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the SAR field, the top two bits of the proxy PDU header.
type Kind byte

const (
	Complete     Kind = 0x00
	First        Kind = 0x40
	Continuation Kind = 0x80
	Last         Kind = 0xC0

	kindMask = 0xC0
	typeMask = 0x3F
)

var (
	ErrAlreadySegmented  = errors.New("pdu header already carries a segment kind")
	ErrMTU               = errors.New("mtu must leave room for a payload byte")
	ErrUnexpectedSegment = errors.New("segment without a preceding first segment")
)

func (k Kind) String() string {
	switch k {
	case Complete:
		return "complete"
	case First:
		return "first"
	case Continuation:
		return "continuation"
	case Last:
		return "last"
	}
	return fmt.Sprintf("kind 0x%02x", byte(k))
}

// KindOf returns the SAR kind of a proxy PDU.
func KindOf(pdu []byte) Kind {
	if len(pdu) == 0 {
		return Complete
	}
	return Kind(pdu[0] & kindMask)
}

// Segment splits a proxy PDU into writes of at most mtu bytes. A PDU that fits
// is returned as is. Otherwise the payload after the header byte is cut into
// mtu-1 byte windows, each prefixed with the kind and the original message type.
func Segment(pdu []byte, mtu int) ([][]byte, error) {
	if mtu < 2 {
		return nil, ErrMTU
	}
	if len(pdu) <= mtu {
		return [][]byte{pdu}, nil
	}

	hdr := pdu[0]
	if hdr&kindMask != 0 {
		return nil, ErrAlreadySegmented
	}

	body := pdu[1:]
	chunk := mtu - 1
	n := (len(body) + chunk - 1) / chunk

	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		k := Continuation
		switch i {
		case 0:
			k = First
		case n - 1:
			k = Last
		}

		end := (i + 1) * chunk
		if end > len(body) {
			end = len(body)
		}

		seg := make([]byte, 0, 1+end-i*chunk)
		seg = append(seg, byte(k)|hdr&typeMask)
		seg = append(seg, body[i*chunk:end]...)
		out = append(out, seg)
	}
	return out, nil
}

// Reassembler collects inbound segments of one connection. The zero value is
// ready to use. It is not safe for concurrent use.
type Reassembler struct {
	buf      []byte
	inFlight bool
}

// Feed adds one inbound chunk. It returns the reassembled proxy PDU, with the
// SAR bits cleared, once the last segment arrives. A first segment always
// starts over, discarding whatever was in flight.
func (r *Reassembler) Feed(chunk []byte) ([]byte, bool, error) {
	k := KindOf(chunk)

	switch k {
	case Complete:
		return chunk, true, nil

	case First:
		r.buf = append(r.buf[:0], chunk[0]&typeMask)
		r.buf = append(r.buf, chunk[1:]...)
		r.inFlight = true
		return nil, false, nil

	default:
		if !r.inFlight {
			return nil, false, errors.Wrapf(ErrUnexpectedSegment, "%v", k)
		}
		r.buf = append(r.buf, chunk[1:]...)
		if k != Last {
			return nil, false, nil
		}

		msg := r.buf
		r.Reset()
		return msg, true, nil
	}
}

// InProgress reports whether a segmented PDU is partially received.
func (r *Reassembler) InProgress() bool {
	return r.inFlight
}

// Reset drops any partially received PDU.
func (r *Reassembler) Reset() {
	r.buf = nil
	r.inFlight = false
}
