// Package identity recognizes provisioned nodes from the service data they
// advertise on the Mesh Proxy service.
package identity

import (
	"bytes"
	"crypto/subtle"

	"github.com/pkg/errors"

	"github.com/rigado/blemesh"
	"github.com/rigado/blemesh/adv"
	"github.com/rigado/blemesh/crypto"
	"github.com/rigado/blemesh/sliceops"
)

// Proxy service data identification types.
const (
	TypeNetworkID    = 0x00
	TypeNodeIdentity = 0x01
)

const (
	NodeIdentityLen = 17
	NetworkIDLen    = 9
)

var (
	ErrLength = errors.New("invalid identity payload length")
	ErrType   = errors.New("not a node identity payload")
)

// Key derives the identity key of a network key.
func Key(netKey [16]byte) ([]byte, error) {
	salt, err := crypto.S1([]byte("nkik"))
	if err != nil {
		return nil, err
	}
	return crypto.K1(netKey[:], salt, []byte("id128\x01"))
}

// Hash computes the 8 byte node identity hash of unicast for random.
func Hash(identityKey, random []byte, unicast mesh.Address) ([]byte, error) {
	if len(random) != 8 {
		return nil, errors.Errorf("random must be 8 bytes, have %d", len(random))
	}
	out, err := crypto.E(identityKey, sliceops.Concat(make([]byte, 6), random, unicast.Bytes()))
	if err != nil {
		return nil, err
	}
	return out[8:], nil
}

// Verify reports whether a node identity payload (0x01 || hash || random) was
// advertised by the node at candidate.
func Verify(netKey [16]byte, payload []byte, candidate mesh.Address) (bool, error) {
	if len(payload) != NodeIdentityLen {
		return false, ErrLength
	}
	if payload[0] != TypeNodeIdentity {
		return false, ErrType
	}

	k, err := Key(netKey)
	if err != nil {
		return false, err
	}
	return verifyWithKey(k, payload, candidate)
}

func verifyWithKey(identityKey, payload []byte, candidate mesh.Address) (bool, error) {
	hash, random := payload[1:9], payload[9:17]

	exp, err := Hash(identityKey, random, candidate)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(exp, hash) == 1, nil
}

// Payload builds the node identity payload a node at unicast would advertise.
func Payload(netKey [16]byte, random []byte, unicast mesh.Address) ([]byte, error) {
	k, err := Key(netKey)
	if err != nil {
		return nil, err
	}
	hash, err := Hash(k, random, unicast)
	if err != nil {
		return nil, err
	}
	return sliceops.Concat([]byte{TypeNodeIdentity}, hash, random), nil
}

// IsNetworkID reports whether serviceData is a network ID advertisement
// (0x00 || k3(netKey)) for netKey.
func IsNetworkID(netKey [16]byte, serviceData []byte) (bool, error) {
	if len(serviceData) != NetworkIDLen || serviceData[0] != TypeNetworkID {
		return false, nil
	}
	id, err := crypto.K3(netKey[:])
	if err != nil {
		return false, err
	}
	return bytes.Equal(id, serviceData[1:]), nil
}

// FromAdvertisement extracts the node identity payload from raw advertising
// data: Mesh Proxy service data, 17 bytes, leading 0x01.
func FromAdvertisement(raw []byte) ([]byte, bool) {
	a, err := adv.Parse(raw)
	if err != nil {
		return nil, false
	}
	for _, sd := range a.ServiceData16(mesh.ProxyServiceUUID) {
		if len(sd) == NodeIdentityLen && sd[0] == TypeNodeIdentity {
			return sd, true
		}
	}
	return nil, false
}
