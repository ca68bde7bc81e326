package crypto

import (
	"github.com/rigado/blemesh/sliceops"
)

// S1 is the salt generation function: AES-CMAC with a zero key.
func S1(m []byte) ([]byte, error) {
	return AESCMAC(zeroKey, m)
}

// K1 derives a key from n using salt and p.
func K1(n, salt, p []byte) ([]byte, error) {
	t, err := AESCMAC(salt, n)
	if err != nil {
		return nil, err
	}

	return AESCMAC(t, p)
}

// NetworkKeys are the k2 outputs of a network key.
type NetworkKeys struct {
	NID           byte
	EncryptionKey []byte
	PrivacyKey    []byte
}

// K2 derives NID, EncryptionKey and PrivacyKey. p is 0x00 for the master
// security credentials.
func K2(n, p []byte) (NetworkKeys, error) {
	salt, err := S1([]byte("smk2"))
	if err != nil {
		return NetworkKeys{}, err
	}

	t, err := AESCMAC(salt, n)
	if err != nil {
		return NetworkKeys{}, err
	}

	t1, err := AESCMAC(t, sliceops.Concat(p, []byte{0x01}))
	if err != nil {
		return NetworkKeys{}, err
	}
	t2, err := AESCMAC(t, sliceops.Concat(t1, p, []byte{0x02}))
	if err != nil {
		return NetworkKeys{}, err
	}
	t3, err := AESCMAC(t, sliceops.Concat(t2, p, []byte{0x03}))
	if err != nil {
		return NetworkKeys{}, err
	}

	return NetworkKeys{
		NID:           t1[15] & 0x7f,
		EncryptionKey: t2,
		PrivacyKey:    t3,
	}, nil
}

// K3 derives the 64-bit network ID.
func K3(n []byte) ([]byte, error) {
	salt, err := S1([]byte("smk3"))
	if err != nil {
		return nil, err
	}

	t, err := AESCMAC(salt, n)
	if err != nil {
		return nil, err
	}

	out, err := AESCMAC(t, []byte("id64\x01"))
	if err != nil {
		return nil, err
	}
	return out[8:], nil
}

// K4 derives the 6-bit application key identifier (AID).
func K4(n []byte) (byte, error) {
	salt, err := S1([]byte("smk4"))
	if err != nil {
		return 0, err
	}

	t, err := AESCMAC(salt, n)
	if err != nil {
		return 0, err
	}

	out, err := AESCMAC(t, []byte("id6\x01"))
	if err != nil {
		return 0, err
	}
	return out[15] & 0x3f, nil
}
