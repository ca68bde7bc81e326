package message

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rigado/blemesh"
)

func s2h(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal("s2h error!")
	}
	return b
}

func TestAppKeyAddEncoding(t *testing.T) {
	// access payload from the Mesh Profile sample data
	exp := s2h(t, "0056341263964771734fbd76e3b40519d1d94a48")

	m := AppKeyAdd{NetKeyIndex: 0x456, AppKeyIndex: 0x123}
	copy(m.AppKey[:], exp[4:])

	b, err := Encode(m)
	require.NoError(t, err)
	if !bytes.Equal(exp, b) {
		t.Fatalf("exp %x got %x", exp, b)
	}

	d, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, m, d)
}

func TestPackKeyIndexes(t *testing.T) {
	b := PackKeyIndexes(0x456, 0x123)
	assert.Equal(t, [3]byte{0x56, 0x34, 0x12}, b)

	n, a := UnpackKeyIndexes(b[:])
	assert.Equal(t, uint16(0x456), n)
	assert.Equal(t, uint16(0x123), a)

	// out of range bits are masked
	assert.Equal(t, [3]byte{0xff, 0x0f, 0x00}, PackKeyIndexes(0xFFFF, 0))
}

func TestReadOpcode(t *testing.T) {
	op, rest, err := ReadOpcode([]byte{0x80, 0x03, 0xaa})
	require.NoError(t, err)
	assert.Equal(t, OpAppKeyStatus, op)
	assert.Equal(t, []byte{0xaa}, rest)

	op, _, err = ReadOpcode([]byte{0xc1, 0x59, 0x00})
	require.NoError(t, err)
	assert.Equal(t, Opcode(0xC15900), op)

	_, _, err = ReadOpcode([]byte{0x7f})
	assert.Equal(t, ErrRFUOpcode, err)
	_, _, err = ReadOpcode([]byte{0x80})
	assert.Equal(t, ErrShortOpcode, err)
	_, _, err = ReadOpcode(nil)
	assert.Equal(t, ErrShortOpcode, err)

	assert.Equal(t, []byte{0xc1, 0x59, 0x00}, Opcode(0xC15900).Bytes())
	assert.Equal(t, []byte{0x80, 0x49}, OpNodeReset.Bytes())
	assert.Equal(t, []byte{0x02}, OpCompositionDataStatus.Bytes())
}

func TestDecodeUnknownOpcode(t *testing.T) {
	_, err := Decode([]byte{0x80, 0x0F, 0x00})
	assert.Equal(t, ErrUnknownOpcode, errors.Cause(err))
}

func TestCompositionDataStatus(t *testing.T) {
	// page 0 of the composition data example in Mesh Profile 4.2.1.1
	b := s2h(t, "02000c001a0001000800030000010501000000800100001003103f002a00")

	m, err := Decode(b)
	require.NoError(t, err)

	exp := CompositionDataStatus{
		Page:                  0,
		CompanyID:             0x000C,
		ProductID:             0x001A,
		VersionID:             0x0001,
		ReplayProtectionCount: 0x0008,
		Features:              0x0003,
		Elements: []mesh.Element{{
			Location: 0x0100,
			Models: []mesh.ModelID{
				mesh.SIGModel(0x0000),
				mesh.SIGModel(0x8000),
				mesh.SIGModel(0x0001),
				mesh.SIGModel(0x1000),
				mesh.SIGModel(0x1003),
				mesh.VendorModel(0x003F, 0x002A),
			},
		}},
	}
	if diff := cmp.Diff(exp, m); diff != "" {
		t.Fatalf("composition mismatch (-want +got):\n%s", diff)
	}

	out, err := Encode(m)
	require.NoError(t, err)
	assert.Equal(t, b, out)
}

func TestCompositionDataStatusTruncated(t *testing.T) {
	b := s2h(t, "02000c001a00010008000300000105010000008001000010")
	_, err := Decode(b)
	assert.Error(t, err)

	_, err = Decode([]byte{0x02, 0x00})
	assert.Error(t, err)
}

func TestStatusMessages(t *testing.T) {
	tests := []struct {
		name string
		msg  StatusMessage
	}{
		{"appkey", AppKeyStatus{Status: StatusKeyIndexAlreadyStored, NetKeyIndex: 0, AppKeyIndex: 1}},
		{"model app", ModelAppStatus{Status: StatusSuccess, ElementAddress: 0x0002, AppKeyIndex: 0, Model: mesh.SIGModel(0x1000)}},
		{"model app vendor", ModelAppStatus{Status: StatusCannotBind, ElementAddress: 0x0003, AppKeyIndex: 2, Model: mesh.VendorModel(0x0059, 0x0001)}},
		{"publication", ModelPublicationStatus{Status: StatusSuccess, Publication: Publication{
			ElementAddress: 0x0002, PublishAddress: 0xC000, AppKeyIndex: 0x005, CredentialFlag: true,
			TTL: 7, Period: 0x41, RetransmitCount: 2, RetransmitIntervalSteps: 3, Model: mesh.SIGModel(0x1001),
		}}},
		{"subscription", ModelSubscriptionStatus{Status: StatusInsufficientResources, Subscription: Subscription{
			ElementAddress: 0x0002, Address: 0xC001, Model: mesh.SIGModel(0x1000),
		}}},
	}

	for _, tc := range tests {
		b, err := Encode(tc.msg)
		require.NoError(t, err, tc.name)

		m, err := Decode(b)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.msg, m, tc.name)
		assert.Equal(t, tc.msg.StatusCode(), m.(StatusMessage).StatusCode(), tc.name)
	}
}

func TestModelAppBindLayout(t *testing.T) {
	b, err := Encode(ModelAppBind{ElementAddress: 0x0002, AppKeyIndex: 0x001, Model: mesh.SIGModel(0x1000)})
	require.NoError(t, err)
	assert.Equal(t, s2h(t, "803d020001000010"), b)

	b, err = Encode(ModelAppBind{ElementAddress: 0x0002, AppKeyIndex: 0, Model: mesh.VendorModel(0x0059, 0x0001)})
	require.NoError(t, err)
	assert.Equal(t, s2h(t, "803d0200000059000100"), b)

	_, err = Decode(s2h(t, "803d020000000010aa"))
	assert.Error(t, err)
}

func TestPublicationLayout(t *testing.T) {
	m := ModelPublicationSet{Publication{
		ElementAddress:          0x0002,
		PublishAddress:          0xC000,
		AppKeyIndex:             0x001,
		CredentialFlag:          true,
		TTL:                     0xff,
		Period:                  0x00,
		RetransmitCount:         1,
		RetransmitIntervalSteps: 2,
		Model:                   mesh.SIGModel(0x1000),
	}}
	b, err := Encode(m)
	require.NoError(t, err)
	assert.Equal(t, s2h(t, "03020000c00110ff00110010"), b)

	d, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, m, d)
}

func TestDefaultTTL(t *testing.T) {
	_, err := Encode(DefaultTTLSet{TTL: 0x01})
	assert.Error(t, err)
	_, err = Encode(DefaultTTLSet{TTL: 0x80})
	assert.Error(t, err)

	b, err := Encode(DefaultTTLSet{TTL: 0x07})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0x0d, 0x07}, b)

	m, err := Decode([]byte{0x80, 0x0e, 0x05})
	require.NoError(t, err)
	assert.Equal(t, DefaultTTLStatus{TTL: 5}, m)

	b, err = Encode(DefaultTTLGet{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0x0c}, b)
}

func TestNodeReset(t *testing.T) {
	b, err := Encode(NodeReset{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0x49}, b)

	m, err := Decode([]byte{0x80, 0x4a})
	require.NoError(t, err)
	assert.Equal(t, NodeResetStatus{}, m)

	_, err = Decode([]byte{0x80, 0x4a, 0x00})
	assert.Error(t, err)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "success", StatusSuccess.String())
	assert.Equal(t, "invalid binding", StatusInvalidBinding.String())
	assert.Equal(t, "rfu status 0x12", Status(0x12).String())
	assert.Equal(t, "remote status: cannot bind", StatusCannotBind.Error())
	assert.Equal(t, "appkey status", OpAppKeyStatus.String())
	assert.Equal(t, "opcode 0x8000", Opcode(0x8000).String())
}
