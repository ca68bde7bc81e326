// Package network implements the network and transport layers needed to talk
// to the Configuration Server of a node through a proxy: network PDU
// encryption and obfuscation, lower transport segmentation with segment
// acknowledgments, and device key upper transport encryption.
package network

import (
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"

	"github.com/rigado/blemesh"
	"github.com/rigado/blemesh/crypto"
	"github.com/rigado/blemesh/message"
	"github.com/rigado/blemesh/sliceops"
)

// AckFunc receives a Segment Acknowledgment, as a complete proxy PDU, and the
// delay after which it should be written.
type AckFunc func(ack []byte, delay time.Duration)

type segKey struct {
	src     mesh.Address
	seqAuth uint32
}

// Layer assembles outbound and parses inbound network PDUs for one
// connection.
type Layer struct {
	sync.Mutex
	mesh.Logger

	state *mesh.State
	ack   AckFunc

	ttl          uint8
	timeout      time.Duration
	errorHandler func(error)

	inflight *ttlcache.Cache[segKey, *inbound]
}

// New returns a Layer working on state. ack may be nil when no segmented
// responses are expected.
func New(state *mesh.State, ack AckFunc, opts ...mesh.Option) (*Layer, error) {
	l := &Layer{
		Logger:  mesh.GetLogger().ChildLogger(map[string]interface{}{"layer": "network"}),
		state:   state,
		ack:     ack,
		ttl:     mesh.DefaultTTL,
		timeout: mesh.DefaultReassemblyTimeout,
	}

	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}

	l.inflight = ttlcache.New[segKey, *inbound](
		ttlcache.WithTTL[segKey, *inbound](l.timeout),
		ttlcache.WithDisableTouchOnHit[segKey, *inbound](),
	)
	return l, nil
}

// SetTTL sets the TTL of outbound PDUs.
func (l *Layer) SetTTL(ttl uint8) error {
	if ttl == 1 || ttl > 0x7F {
		return fmt.Errorf("invalid ttl %d", ttl)
	}
	l.ttl = ttl
	return nil
}

// SetReassemblyTimeout sets how long an incomplete segmented message is kept.
func (l *Layer) SetReassemblyTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("invalid reassembly timeout %v", d)
	}
	l.timeout = d
	return nil
}

func (l *Layer) SetLogger(lg mesh.Logger) error {
	l.Logger = lg
	return nil
}

func (l *Layer) SetErrorHandler(handler func(error)) error {
	l.errorHandler = handler
	return nil
}

// SetWriteWithResponse is accepted for symmetry with the configurator. The
// layer does not write.
func (l *Layer) SetWriteWithResponse(bool) error {
	return nil
}

// Assemble encrypts msg for dst with dst's device key and returns one proxy
// PDU per lower transport PDU.
func (l *Layer) Assemble(msg message.Message, dst mesh.Address) ([][]byte, error) {
	access, err := message.Encode(msg)
	if err != nil {
		return nil, err
	}

	snap := l.state.Snapshot()
	node, ok := snap.Node(dst)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSource, "%v", dst)
	}

	seq, err := l.state.NextSequence()
	if err != nil {
		return nil, err
	}

	src := snap.UnicastAddress
	upper, err := crypto.CCMSeal(node.DeviceKey[:], upperNonce(false, false, seq, src, dst, snap.IVIndex), access, nil, 4)
	if err != nil {
		return nil, errors.Wrap(err, "upper transport encrypt")
	}

	h := netHeader{ttl: l.ttl, seq: seq, src: src, dst: dst, iv: snap.IVIndex}

	if len(upper) <= maxUnsegmentedUpper {
		// SEG=0, AKF=0, AID=0
		pdu, err := encodeNetworkPDU(snap, h, sliceops.Concat([]byte{0x00}, upper))
		if err != nil {
			return nil, err
		}
		l.Debugf("assemble: %v to %v seq %06x unsegmented", msg.Opcode(), dst, seq)
		return [][]byte{proxyPDU(pdu)}, nil
	}

	n := (len(upper) + segmentSize - 1) / segmentSize
	if n > maxSegments {
		return nil, ErrMessageTooLong
	}

	sh := segmentHeader{seqZero: uint16(seq & seqZeroMask), segN: byte(n - 1)}
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 {
			if h.seq, err = l.state.NextSequence(); err != nil {
				return nil, err
			}
		}

		end := (i + 1) * segmentSize
		if end > len(upper) {
			end = len(upper)
		}
		sh.segO = byte(i)

		pdu, err := encodeNetworkPDU(snap, h, sliceops.Concat(sh.marshal(), upper[i*segmentSize:end]))
		if err != nil {
			return nil, err
		}
		out = append(out, proxyPDU(pdu))
	}

	l.Debugf("assemble: %v to %v seq %06x in %d segments", msg.Opcode(), dst, seq, n)
	return out, nil
}

// Parse handles one network PDU, without the proxy header. It returns the
// decoded access message and the address of the element that sent it, or a
// nil message when the PDU carried nothing for the caller: a segment of an
// incomplete message, a control message or an access message with an opcode
// this package does not know.
func (l *Layer) Parse(pdu []byte) (message.Message, mesh.Address, error) {
	snap := l.state.Snapshot()

	h, lower, err := decodeNetworkPDU(snap, pdu)
	if err != nil {
		return nil, mesh.UnassignedAddress, err
	}
	if h.dst != snap.UnicastAddress {
		return nil, h.src, errors.Wrapf(ErrNotAddressed, "dst %v", h.dst)
	}

	if h.ctl {
		l.parseControl(h, lower)
		return nil, h.src, nil
	}

	var access []byte
	if lower[0]&0x80 == 0 {
		akf := lower[0]&0x40 != 0
		access, err = decryptUpper(snap, akf, lower[0]&0x3F, false, h.seq, h.src, h.dst, h.iv, lower[1:])
		if err != nil {
			return nil, h.src, err
		}
	} else {
		access, err = l.reassemble(snap, h, lower)
		if err != nil || access == nil {
			return nil, h.src, err
		}
	}

	m, err := message.Decode(access)
	if errors.Cause(err) == message.ErrUnknownOpcode {
		l.Debugf("parse: ignoring %v", err)
		return nil, h.src, nil
	}
	if err != nil {
		return nil, h.src, err
	}

	l.Debugf("parse: %v from %v seq %06x", m.Opcode(), h.src, h.seq)
	return m, h.src, nil
}

func (l *Layer) reassemble(snap mesh.Snapshot, h netHeader, lower []byte) ([]byte, error) {
	sh, err := parseSegmentHeader(lower)
	if err != nil {
		return nil, err
	}

	l.Lock()
	defer l.Unlock()

	l.inflight.DeleteExpired()

	key := segKey{src: h.src, seqAuth: seqAuth(h.seq, sh.seqZero)}
	var in *inbound
	if it := l.inflight.Get(key); it != nil {
		in = it.Value()
	} else {
		in = &inbound{hdr: sh, dst: h.dst, ttl: h.ttl, iv: h.iv, segs: make([][]byte, int(sh.segN)+1)}
		l.inflight.Set(key, in, ttlcache.DefaultTTL)
	}

	if sh.segN != in.hdr.segN || sh.szmic != in.hdr.szmic {
		return nil, ErrSegmentHeader
	}
	if sh.segO < sh.segN && len(lower) != 4+segmentSize {
		return nil, ErrSegmentHeader
	}

	in.segs[sh.segO] = append([]byte(nil), lower[4:]...)
	in.received |= 1 << sh.segO
	if !in.complete() {
		return nil, nil
	}
	l.inflight.Delete(key)

	access, err := decryptUpper(snap, in.hdr.akf, in.hdr.aid, in.hdr.szmic, key.seqAuth, h.src, in.dst, in.iv, in.upper())
	if err != nil {
		return nil, err
	}

	l.sendAck(snap, h.src, sh.seqZero, in.received, in.ttl)
	return access, nil
}

func (l *Layer) sendAck(snap mesh.Snapshot, to mesh.Address, seqZero uint16, blockAck uint32, ttl uint8) {
	if l.ack == nil {
		return
	}

	seq, err := l.state.NextSequence()
	if err != nil {
		l.handleError(err)
		return
	}

	h := netHeader{ctl: true, ttl: l.ttl, seq: seq, src: snap.UnicastAddress, dst: to, iv: snap.IVIndex}
	pdu, err := encodeNetworkPDU(snap, h, segmentAck(seqZero, blockAck))
	if err != nil {
		l.handleError(errors.Wrap(err, "segment ack"))
		return
	}

	l.Debugf("ack: seqZero %04x block %08x to %v", seqZero, blockAck, to)
	l.ack(proxyPDU(pdu), AckDelay(ttl))
}

func (l *Layer) parseControl(h netHeader, lower []byte) {
	if lower[0] == ctlSegmentAck && len(lower) == 7 {
		seqZero := uint16(lower[1]&0x7F)<<6 | uint16(lower[2]>>2)
		l.Debugf("control: segment ack from %v seqZero %04x block %x", h.src, seqZero, lower[3:])
		return
	}
	l.Debugf("control: ignoring opcode 0x%02x from %v", lower[0]&0x7F, h.src)
}

func (l *Layer) handleError(err error) {
	if l.errorHandler != nil {
		l.errorHandler(err)
		return
	}
	l.Error(err)
}

func proxyPDU(network []byte) []byte {
	return sliceops.Concat([]byte{mesh.ProxyTypeNetwork}, network)
}
