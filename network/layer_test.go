package network

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rigado/blemesh"
	"github.com/rigado/blemesh/message"
)

var (
	testNetKey = [16]byte{0x7d, 0xd7, 0x36, 0x4c, 0xd8, 0x42, 0xad, 0x18, 0xc1, 0x7c, 0x2b, 0x82, 0x0c, 0x84, 0xc3, 0xd6}
	testDevKey = [16]byte{0x9d, 0x6d, 0xd0, 0xe9, 0x6e, 0xb2, 0x5d, 0xc1, 0x9a, 0x40, 0xed, 0x99, 0x14, 0xf8, 0xf0, 0x3f}
	testAppKey = [16]byte{0x63, 0x96, 0x47, 0x71, 0x73, 0x4f, 0xbd, 0x76, 0xe3, 0xb4, 0x05, 0x19, 0xd1, 0xd9, 0x4a, 0x48}
)

const testIV = 0x12345678

// pair returns the security contexts of a provisioner at 0x0001 and a node at
// 0x0002 sharing a network key and a device key.
func pair(t *testing.T) (*mesh.State, *mesh.State) {
	t.Helper()

	prov, err := mesh.NewState(mesh.NetworkConfig{
		NetKey:         testNetKey,
		IVIndex:        testIV,
		AppKeys:        []mesh.AppKey{{Name: "primary", Key: testAppKey}},
		UnicastAddress: 0x0001,
		Nodes:          []mesh.ProvisionedNode{{UnicastAddress: 0x0002, DeviceKey: testDevKey}},
	})
	require.NoError(t, err)

	node, err := mesh.NewState(mesh.NetworkConfig{
		NetKey:         testNetKey,
		IVIndex:        testIV,
		UnicastAddress: 0x0002,
		Nodes:          []mesh.ProvisionedNode{{UnicastAddress: 0x0001, DeviceKey: testDevKey}},
	})
	require.NoError(t, err)

	return prov, node
}

type ackRecorder struct {
	sync.Mutex
	acks   [][]byte
	delays []time.Duration
}

func (r *ackRecorder) ack(b []byte, d time.Duration) {
	r.Lock()
	defer r.Unlock()
	r.acks = append(r.acks, b)
	r.delays = append(r.delays, d)
}

func TestUnsegmentedRoundTrip(t *testing.T) {
	prov, node := pair(t)

	pl, err := New(prov, nil)
	require.NoError(t, err)
	nl, err := New(node, nil)
	require.NoError(t, err)

	pdus, err := pl.Assemble(message.DefaultTTLGet{}, 0x0002)
	require.NoError(t, err)
	require.Len(t, pdus, 1)

	p := pdus[0]
	assert.Equal(t, byte(mesh.ProxyTypeNetwork), p[0])
	assert.LessOrEqual(t, len(p), 1+netMaxLen)
	assert.Equal(t, prov.Snapshot().NID, p[1]&0x7F)
	assert.Equal(t, byte(testIV&1), p[1]>>7)

	m, src, err := nl.Parse(p[1:])
	require.NoError(t, err)
	assert.Equal(t, message.DefaultTTLGet{}, m)
	assert.Equal(t, mesh.Address(0x0001), src)

	// SEQ was consumed
	assert.Equal(t, uint32(1), prov.Snapshot().Sequence)
}

func TestHeaderIsObfuscated(t *testing.T) {
	prov, _ := pair(t)
	pl, err := New(prov, nil)
	require.NoError(t, err)

	pdus, err := pl.Assemble(message.NodeReset{}, 0x0002)
	require.NoError(t, err)

	// CTL|TTL, SEQ, SRC in clear
	clear := []byte{mesh.DefaultTTL, 0x00, 0x00, 0x00, 0x00, 0x01}
	assert.NotEqual(t, clear, pdus[0][2:8])
}

func TestSegmentedRoundTrip(t *testing.T) {
	prov, node := pair(t)

	pl, err := New(prov, nil)
	require.NoError(t, err)

	rec := &ackRecorder{}
	nl, err := New(node, rec.ack)
	require.NoError(t, err)

	msg := message.AppKeyAdd{NetKeyIndex: 0, AppKeyIndex: 0, AppKey: testAppKey}
	pdus, err := pl.Assemble(msg, 0x0002)
	require.NoError(t, err)
	require.Len(t, pdus, 2)
	for _, p := range pdus {
		assert.LessOrEqual(t, len(p), 1+netMaxLen)
	}

	// out of order delivery
	m, _, err := nl.Parse(pdus[1][1:])
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Empty(t, rec.acks)

	m, _, err = nl.Parse(pdus[0][1:])
	require.NoError(t, err)
	assert.Equal(t, msg, m)

	require.Len(t, rec.acks, 1)
	assert.Equal(t, AckDelay(mesh.DefaultTTL), rec.delays[0])
	assert.True(t, rec.delays[0] > 0)

	// the provisioner accepts the ack as a control message
	m, _, err = pl.Parse(rec.acks[0][1:])
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestResponseFromNode(t *testing.T) {
	prov, node := pair(t)

	pl, err := New(prov, nil)
	require.NoError(t, err)
	nl, err := New(node, nil)
	require.NoError(t, err)

	status := message.AppKeyStatus{Status: message.StatusSuccess}
	pdus, err := nl.Assemble(status, 0x0001)
	require.NoError(t, err)
	require.Len(t, pdus, 1)

	m, src, err := pl.Parse(pdus[0][1:])
	require.NoError(t, err)
	assert.Equal(t, status, m)
	assert.Equal(t, mesh.Address(0x0002), src)
}

func TestParseRejects(t *testing.T) {
	prov, node := pair(t)

	pl, err := New(prov, nil)
	require.NoError(t, err)
	nl, err := New(node, nil)
	require.NoError(t, err)

	pdus, err := pl.Assemble(message.DefaultTTLGet{}, 0x0002)
	require.NoError(t, err)
	p := append([]byte(nil), pdus[0][1:]...)

	_, _, err = nl.Parse(p[:10])
	assert.Equal(t, ErrShortPDU, err)

	wrongNID := append([]byte(nil), p...)
	wrongNID[0] ^= 0x01
	_, _, err = nl.Parse(wrongNID)
	assert.Equal(t, ErrNID, err)

	tampered := append([]byte(nil), p...)
	tampered[len(tampered)-1] ^= 0x01
	_, _, err = nl.Parse(tampered)
	assert.Error(t, err)

	// the provisioner sees its own request, which is not for it
	_, _, err = pl.Parse(p)
	assert.Equal(t, ErrNotAddressed, errors.Cause(err))
}

func TestAssembleUnknownNode(t *testing.T) {
	prov, _ := pair(t)
	pl, err := New(prov, nil)
	require.NoError(t, err)

	_, err = pl.Assemble(message.NodeReset{}, 0x0009)
	assert.Equal(t, ErrUnknownSource, errors.Cause(err))
}

type vendorMessage struct{}

func (vendorMessage) Opcode() message.Opcode   { return 0xC15900 }
func (vendorMessage) Marshal() ([]byte, error) { return []byte{0x01}, nil }

func TestUnknownOpcodeIgnored(t *testing.T) {
	prov, node := pair(t)

	pl, err := New(prov, nil)
	require.NoError(t, err)
	nl, err := New(node, nil)
	require.NoError(t, err)

	pdus, err := nl.Assemble(vendorMessage{}, 0x0001)
	require.NoError(t, err)

	m, _, err := pl.Parse(pdus[0][1:])
	assert.NoError(t, err)
	assert.Nil(t, m)
}

func TestReassemblyTimeout(t *testing.T) {
	prov, node := pair(t)

	pl, err := New(prov, nil)
	require.NoError(t, err)
	rec := &ackRecorder{}
	nl, err := New(node, rec.ack, mesh.OptReassemblyTimeout(20*time.Millisecond))
	require.NoError(t, err)

	pdus, err := pl.Assemble(message.AppKeyAdd{AppKey: testAppKey}, 0x0002)
	require.NoError(t, err)
	require.Len(t, pdus, 2)

	m, _, err := nl.Parse(pdus[0][1:])
	require.NoError(t, err)
	require.Nil(t, m)

	time.Sleep(60 * time.Millisecond)

	m, _, err = nl.Parse(pdus[1][1:])
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Empty(t, rec.acks)
}

func TestOptions(t *testing.T) {
	prov, _ := pair(t)

	_, err := New(prov, nil, mesh.OptTTL(1))
	assert.Error(t, err)
	_, err = New(prov, nil, mesh.OptReassemblyTimeout(0))
	assert.Error(t, err)

	l, err := New(prov, nil, mesh.OptTTL(10))
	require.NoError(t, err)
	assert.Equal(t, uint8(10), l.ttl)
}

func TestAckDelay(t *testing.T) {
	assert.Equal(t, 150*time.Millisecond, AckDelay(0))
	assert.Equal(t, 400*time.Millisecond, AckDelay(5))
	assert.Equal(t, 6500*time.Millisecond, AckDelay(127))
}

func TestSeqAuth(t *testing.T) {
	assert.Equal(t, uint32(0x2003), seqAuth(0x2005, 0x0003))
	assert.Equal(t, uint32(0x1FFE), seqAuth(0x2001, 0x1FFE))
	assert.Equal(t, uint32(7), seqAuth(7, 7))
}

func TestSegmentHeader(t *testing.T) {
	h := segmentHeader{akf: true, aid: 0x26, szmic: true, seqZero: 0x1ABC, segO: 0x13, segN: 0x1F}
	b := h.marshal()

	got, err := parseSegmentHeader(append(b, 0x00))
	require.NoError(t, err)
	assert.Equal(t, h, got)

	_, err = parseSegmentHeader([]byte{0x00, 0x00, 0x00, 0x00, 0x00})
	assert.Equal(t, ErrSegmentHeader, err)

	bad := segmentHeader{segO: 2, segN: 1}.marshal()
	_, err = parseSegmentHeader(append(bad, 0x00))
	assert.Equal(t, ErrSegmentHeader, err)
}

func TestSegmentAckLayout(t *testing.T) {
	assert.Equal(t, []byte{0x00, 0x7F, 0xFC, 0x00, 0x00, 0x00, 0x03}, segmentAck(0x1FFF, 0x3))
	assert.Equal(t, []byte{0x00, 0x00, 0x04, 0x80, 0x00, 0x00, 0x01}, segmentAck(0x0001, 0x80000001))
}
