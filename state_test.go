package mesh

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testState(t *testing.T) *State {
	t.Helper()
	s, err := NewState(NetworkConfig{
		NetKey:         [16]byte{0x7d, 0xd7, 0x36, 0x4c, 0xd8, 0x42, 0xad, 0x18, 0xc1, 0x7c, 0x2b, 0x82, 0x0c, 0x84, 0xc3, 0xd6},
		AppKeys:        []AppKey{{Name: "primary", Key: [16]byte{0x63, 0x96, 0x47, 0x71}}},
		UnicastAddress: 0x0001,
	})
	require.NoError(t, err)
	return s
}

func TestNewStateDefaults(t *testing.T) {
	s := testState(t)
	snap := s.Snapshot()

	assert.Equal(t, Address(0x0002), snap.NextUnicast)
	assert.NotEqual(t, [16]byte{}, [16]byte(snap.MeshUUID))
	assert.Len(t, snap.EncryptionKey, 16)
	assert.Len(t, snap.PrivacyKey, 16)
	assert.Len(t, snap.NetworkID, 8)
	assert.Equal(t, byte(0), snap.NID&0x80)
}

func TestNewStateRejects(t *testing.T) {
	_, err := NewState(NetworkConfig{UnicastAddress: 0x0000})
	assert.Error(t, err)

	_, err = NewState(NetworkConfig{UnicastAddress: 0x0001, KeyIndex: 0x1000})
	assert.Equal(t, ErrKeyIndex, err)

	_, err = NewState(NetworkConfig{UnicastAddress: 0x0001, NextUnicast: 0x8000})
	assert.Error(t, err)

	_, err = NewState(NetworkConfig{
		UnicastAddress: 0x0001,
		Nodes:          []ProvisionedNode{{UnicastAddress: 0x0002}, {UnicastAddress: 0x0002}},
	})
	assert.Error(t, err)
}

func TestRegistryReplaceNotMutate(t *testing.T) {
	s := testState(t)
	require.NoError(t, s.AddProvisionedNode(0x0002, [16]byte{0x01}, "lamp"))
	require.NoError(t, s.AddProvisionedNode(0x0004, [16]byte{0x02}, "switch"))

	before, ok := s.Node(0x0002)
	require.True(t, ok)
	held := s.Snapshot()

	n := before.Clone()
	n.CompanyID = 0x0059
	n.ProductID = 0x0001
	n.Elements = []Element{{Models: []ModelID{SIGModel(0x0000), VendorModel(0x0059, 0x0001)}}}
	require.NoError(t, s.PutNode(n))

	// a second update overwrites every field, it never merges
	n2 := ProvisionedNode{UnicastAddress: 0x0002, DeviceKey: before.DeviceKey, Name: "lamp", CompanyID: 0x004C}
	require.NoError(t, s.PutNode(n2))

	nodes := s.Nodes()
	count := 0
	for _, e := range nodes {
		if e.UnicastAddress == 0x0002 {
			count++
		}
	}
	assert.Equal(t, 1, count)

	got, _ := s.Node(0x0002)
	if diff := cmp.Diff(n2, got); diff != "" {
		t.Fatalf("registry entry mismatch (-want +got):\n%s", diff)
	}

	// replaced entries move to the end
	assert.Equal(t, Address(0x0004), nodes[0].UnicastAddress)
	assert.Equal(t, Address(0x0002), nodes[1].UnicastAddress)

	// earlier snapshots are unaffected
	old, ok := held.Node(0x0002)
	require.True(t, ok)
	if diff := cmp.Diff(before, old); diff != "" {
		t.Fatalf("snapshot changed (-want +got):\n%s", diff)
	}
	assert.Less(t, held.Version, s.Version())
}

func TestNodeCopiesAreDetached(t *testing.T) {
	s := testState(t)
	require.NoError(t, s.PutNode(ProvisionedNode{UnicastAddress: 0x0002, AppKeys: []uint16{0}}))

	n, _ := s.Node(0x0002)
	n.AppKeys[0] = 7

	again, _ := s.Node(0x0002)
	assert.Equal(t, []uint16{0}, again.AppKeys)
}

func TestAddProvisionedNodeTwice(t *testing.T) {
	s := testState(t)
	require.NoError(t, s.AddProvisionedNode(0x0002, [16]byte{}, ""))
	assert.Error(t, s.AddProvisionedNode(0x0002, [16]byte{}, ""))
	assert.Error(t, s.AddProvisionedNode(0x8001, [16]byte{}, ""))
}

func TestRemoveNode(t *testing.T) {
	s := testState(t)
	require.NoError(t, s.AddProvisionedNode(0x0002, [16]byte{}, ""))

	v := s.Version()
	assert.True(t, s.RemoveNode(0x0002))
	assert.Greater(t, s.Version(), v)
	assert.False(t, s.RemoveNode(0x0002))

	_, ok := s.Node(0x0002)
	assert.False(t, ok)
}

func TestUnicastAllocatorMonotonic(t *testing.T) {
	s := testState(t)

	for _, elements := range []int{1, 3, 2, 1, 5} {
		before, err := s.AllocateUnicast()
		require.NoError(t, err)
		require.NotEqual(t, UnassignedAddress, before)

		require.NoError(t, s.AdvanceUnicast(before, elements))
		after, err := s.AllocateUnicast()
		require.NoError(t, err)
		assert.Equal(t, before+Address(elements), after)
	}

	// re-reporting an older node never moves the allocator back
	next, _ := s.AllocateUnicast()
	require.NoError(t, s.AdvanceUnicast(0x0002, 1))
	after, _ := s.AllocateUnicast()
	assert.Equal(t, next, after)
}

func TestAdvanceUnicastRejects(t *testing.T) {
	s := testState(t)

	assert.Equal(t, ErrElementCount, s.AdvanceUnicast(0x0002, 0))
	assert.Error(t, s.AdvanceUnicast(0x0000, 1))
	assert.ErrorIs(t, s.AdvanceUnicast(0x7FFE, 3), ErrUnicastExhausted)
	assert.ErrorIs(t, s.AdvanceUnicast(0x7FFF, 2), ErrUnicastExhausted)

	next, err := s.AllocateUnicast()
	require.NoError(t, err)
	assert.Equal(t, Address(0x0002), next)
}

func TestUnicastAllocatorExhausted(t *testing.T) {
	s := testState(t)

	// a node filling 0x7FFE..0x7FFF is valid and uses up the range
	v := s.Version()
	require.NoError(t, s.AdvanceUnicast(0x7FFE, 2))
	assert.Greater(t, s.Version(), v)

	_, err := s.AllocateUnicast()
	assert.Equal(t, ErrUnicastExhausted, err)

	// an exhausted allocator survives export and reload
	r, err := NewState(s.Export())
	require.NoError(t, err)
	_, err = r.AllocateUnicast()
	assert.Equal(t, ErrUnicastExhausted, err)

	_, err = NewState(NetworkConfig{UnicastAddress: 0x0001, NextUnicast: 0x8001})
	assert.Error(t, err)
}

func TestCheckUnicastRange(t *testing.T) {
	assert.NoError(t, CheckUnicastRange(0x0001, 1))
	assert.NoError(t, CheckUnicastRange(0x7FFF, 1))
	assert.NoError(t, CheckUnicastRange(0x7FF0, 16))
	assert.Equal(t, ErrElementCount, CheckUnicastRange(0x0002, 0))
	assert.ErrorIs(t, CheckUnicastRange(0x0000, 1), ErrInvalidAddress)
	assert.ErrorIs(t, CheckUnicastRange(0x7FF0, 17), ErrUnicastExhausted)
}

func TestNextSequence(t *testing.T) {
	s, err := NewState(NetworkConfig{UnicastAddress: 0x0001, Sequence: MaxSequence})
	require.NoError(t, err)

	seq, err := s.NextSequence()
	require.NoError(t, err)
	assert.Equal(t, uint32(MaxSequence), seq)

	_, err = s.NextSequence()
	assert.Equal(t, ErrSequenceExhausted, err)
}

func TestAppKeys(t *testing.T) {
	s := testState(t)

	idx, err := s.AddAppKey("secondary", [16]byte{0xaa})
	require.NoError(t, err)
	assert.Equal(t, uint16(1), idx)

	k, ok := s.AppKey(1)
	require.True(t, ok)
	assert.Equal(t, "secondary", k.Name)

	_, ok = s.AppKey(2)
	assert.False(t, ok)
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState("primary", 0x0001)
	require.NoError(t, err)
	b, err := GenerateState("primary", 0x0001)
	require.NoError(t, err)

	sa, sb := a.Snapshot(), b.Snapshot()
	assert.NotEqual(t, sa.NetKey, sb.NetKey)
	assert.NotEqual(t, sa.MeshUUID, sb.MeshUUID)
	require.Len(t, sa.AppKeys, 1)
	assert.Equal(t, "primary", sa.AppKeys[0].Name)
}
