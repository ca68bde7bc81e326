package provisioning

import (
	"crypto"
	"crypto/elliptic"
	"crypto/rand"

	"github.com/pkg/errors"
	"github.com/wsddn/go-ecdh"
)

// PublicKeyLen is the size of a public key in provisioning PDUs: X || Y,
// big-endian.
const PublicKeyLen = 64

type ECDHKeys struct {
	public  crypto.PublicKey
	private crypto.PrivateKey
}

func GenerateKeys() (*ECDHKeys, error) {
	var err error
	kp := ECDHKeys{}
	e := ecdh.NewEllipticECDH(elliptic.P256())

	kp.private, kp.public, err = e.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	return &kp, nil
}

// PublicKey returns the public key in provisioning PDU form.
func (k *ECDHKeys) PublicKey() []byte {
	return MarshalPublicKey(k.public)
}

// SharedSecret computes the ECDH secret with the peer's public key.
func (k *ECDHKeys) SharedSecret(peer []byte) ([]byte, error) {
	pub, ok := UnmarshalPublicKey(peer)
	if !ok {
		return nil, errors.New("invalid public key")
	}
	return GenerateSecret(k.private, pub)
}

func UnmarshalPublicKey(b []byte) (crypto.PublicKey, bool) {
	if len(b) != PublicKeyLen {
		return nil, false
	}
	e := ecdh.NewEllipticECDH(elliptic.P256())

	//add header
	r := append([]byte{0x04}, b...)

	return e.Unmarshal(r)
}

func MarshalPublicKey(k crypto.PublicKey) []byte {
	e := ecdh.NewEllipticECDH(elliptic.P256())

	ba := e.Marshal(k)
	return ba[1:] //remove header
}

// GenerateSecret returns the 32 byte x coordinate of the shared point.
func GenerateSecret(prv crypto.PrivateKey, pub crypto.PublicKey) ([]byte, error) {
	e := ecdh.NewEllipticECDH(elliptic.P256())
	b, err := e.GenerateSharedSecret(prv, pub)
	if err != nil {
		return nil, err
	}

	// big.Int bytes drop leading zeros
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out, nil
}
