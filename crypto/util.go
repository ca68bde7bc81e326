// Package crypto holds the Mesh Profile security toolbox: the salt and key
// derivation functions built on AES-CMAC, the e block function, and AES-CCM.
package crypto

import (
	"crypto/aes"

	"github.com/aead/cmac"
	"github.com/pion/dtls/v3/pkg/crypto/ccm"
	"github.com/pkg/errors"
)

const KeySize = 16

var (
	ErrKeySize = errors.New("key must be 16 bytes")
)

var zeroKey = make([]byte, KeySize)

// AESCMAC computes AES-CMAC over msg. Unlike the SMP variant, mesh values are
// big-endian, so no byte swapping takes place.
func AESCMAC(key, msg []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}

	mCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	mMac, err := cmac.New(mCipher)
	if err != nil {
		return nil, err
	}

	mMac.Write(msg)

	return mMac.Sum(nil), nil
}

// E is the security function e: AES-128 over a single block.
func E(key, plaintext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	if len(plaintext) != aes.BlockSize {
		return nil, errors.Errorf("e: plaintext must be %d bytes, have %d", aes.BlockSize, len(plaintext))
	}

	mCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, aes.BlockSize)
	mCipher.Encrypt(out, plaintext)
	return out, nil
}

// CCMSeal encrypts and authenticates plaintext, appending a micSize byte MIC.
func CCMSeal(key, nonce, plaintext, adata []byte, micSize int) ([]byte, error) {
	c, err := newCCM(key, len(nonce), micSize)
	if err != nil {
		return nil, err
	}

	return c.Seal(nil, nonce, plaintext, adata), nil
}

// CCMOpen verifies and decrypts ciphertext||MIC.
func CCMOpen(key, nonce, ciphertext, adata []byte, micSize int) ([]byte, error) {
	c, err := newCCM(key, len(nonce), micSize)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < micSize {
		return nil, errors.Errorf("ccm: ciphertext shorter than mic (%d < %d)", len(ciphertext), micSize)
	}

	out, err := c.Open(nil, nonce, ciphertext, adata)
	if err != nil {
		return nil, errors.Wrap(err, "ccm open")
	}
	return out, nil
}

func newCCM(key []byte, nonceSize, micSize int) (ccm.CCM, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return ccm.NewCCM(block, micSize, nonceSize)
}
