// Package provisioning holds the points where a provisioning handshake hands
// data to and from the security context: key agreement, session key
// derivation, the encrypted provisioning data and the resulting device key.
// The handshake state machine itself belongs to the caller.
package provisioning

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/rigado/blemesh"
	"github.com/rigado/blemesh/crypto"
	"github.com/rigado/blemesh/sliceops"
)

const (
	RandomLen = 16
	DataLen   = 25
	micLen    = 8
)

// Flags of the provisioning data.
const (
	FlagKeyRefresh = 0x01
	FlagIVUpdate   = 0x02
)

// ConfirmationSalt derives the confirmation salt from the concatenated
// invite, capabilities, start and public key PDUs.
func ConfirmationSalt(inputs []byte) ([]byte, error) {
	return crypto.S1(inputs)
}

// ConfirmationKey derives the key used for confirmation values.
func ConfirmationKey(secret, confirmationSalt []byte) ([]byte, error) {
	return crypto.K1(secret, confirmationSalt, []byte("prck"))
}

// Confirmation computes a confirmation value for random and authValue.
func Confirmation(confirmationKey, random, authValue []byte) ([]byte, error) {
	if len(random) != RandomLen || len(authValue) != 16 {
		return nil, errors.New("random and auth value must be 16 bytes")
	}
	return crypto.AESCMAC(confirmationKey, sliceops.Concat(random, authValue))
}

// SessionKeys are derived once both randoms are known.
type SessionKeys struct {
	ProvisioningSalt []byte
	SessionKey       []byte
	SessionNonce     []byte
	DeviceKey        [16]byte
}

func DeriveSessionKeys(secret, confirmationSalt, provisionerRandom, deviceRandom []byte) (SessionKeys, error) {
	if len(provisionerRandom) != RandomLen || len(deviceRandom) != RandomLen {
		return SessionKeys{}, errors.New("randoms must be 16 bytes")
	}

	salt, err := crypto.S1(sliceops.Concat(confirmationSalt, provisionerRandom, deviceRandom))
	if err != nil {
		return SessionKeys{}, err
	}

	sk := SessionKeys{ProvisioningSalt: salt}
	if sk.SessionKey, err = crypto.K1(secret, salt, []byte("prsk")); err != nil {
		return SessionKeys{}, err
	}

	n, err := crypto.K1(secret, salt, []byte("prsn"))
	if err != nil {
		return SessionKeys{}, err
	}
	sk.SessionNonce = n[3:]

	dk, err := crypto.K1(secret, salt, []byte("prdk"))
	if err != nil {
		return SessionKeys{}, err
	}
	copy(sk.DeviceKey[:], dk)

	return sk, nil
}

// Data is the provisioning data sent to a new node.
type Data struct {
	NetKey         [16]byte
	KeyIndex       uint16
	Flags          byte
	IVIndex        uint32
	UnicastAddress mesh.Address
}

// DataFor builds the provisioning data for a node at unicast from snap.
func DataFor(snap mesh.Snapshot, unicast mesh.Address) (Data, error) {
	if !unicast.IsUnicast() {
		return Data{}, errors.Wrapf(mesh.ErrInvalidAddress, "%v", unicast)
	}
	return Data{
		NetKey:         snap.NetKey,
		KeyIndex:       snap.KeyIndex,
		Flags:          snap.Flags,
		IVIndex:        snap.IVIndex,
		UnicastAddress: unicast,
	}, nil
}

// Pack returns netKey || keyIndex || flags || ivIndex || unicast. The key
// index uses the packed nibble layout of mesh.PackKeyIndex.
func (d Data) Pack() []byte {
	b := make([]byte, 0, DataLen)
	b = append(b, d.NetKey[:]...)
	ki := mesh.PackKeyIndex(d.KeyIndex)
	b = append(b, ki[:]...)
	b = append(b, d.Flags)

	iv := make([]byte, 4)
	binary.BigEndian.PutUint32(iv, d.IVIndex)
	b = append(b, iv...)

	return append(b, d.UnicastAddress.Bytes()...)
}

// Encrypt returns the encrypted provisioning data with its 8 byte MIC.
func (d Data) Encrypt(keys SessionKeys) ([]byte, error) {
	return crypto.CCMSeal(keys.SessionKey, keys.SessionNonce, d.Pack(), nil, micLen)
}

// Decrypt opens encrypted provisioning data, as a node would.
func Decrypt(keys SessionKeys, b []byte) (Data, error) {
	p, err := crypto.CCMOpen(keys.SessionKey, keys.SessionNonce, b, nil, micLen)
	if err != nil {
		return Data{}, err
	}
	if len(p) != DataLen {
		return Data{}, errors.Errorf("provisioning data length %d", len(p))
	}

	d := Data{
		Flags:          p[18],
		IVIndex:        binary.BigEndian.Uint32(p[19:]),
		UnicastAddress: mesh.Address(binary.BigEndian.Uint16(p[23:])),
	}
	copy(d.NetKey[:], p[:16])
	d.KeyIndex = uint16(p[16]>>4)<<8 | uint16(p[16]&0x0F)<<4 | uint16(p[17]>>4)
	return d, nil
}

// Register records a freshly provisioned node in the registry. Composition
// data, fetched later, fills in the rest of the entry and advances the
// unicast allocator.
func Register(state *mesh.State, d Data, keys SessionKeys, name string) error {
	return state.AddProvisionedNode(d.UnicastAddress, keys.DeviceKey, name)
}
