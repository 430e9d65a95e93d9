// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package hybrid

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

const (
	// schemeVersion identifies RSA-OAEP-SHA256 wrapped AES-256-GCM.
	schemeVersion uint64 = 1

	symmetricKeySize = 32
	nonceSize        = 12
)

// oaepLabel is bound to every wrapped key, so keys wrapped for other purposes are rejected.
var oaepLabel = []byte("relay-tunnel hybrid v1")

// sealedMessage is the CBOR representation of a hybrid ciphertext.
type sealedMessage struct {
	version    uint64
	wrappedKey []byte
	nonce      []byte
	sealed     []byte
}

func (sm *sealedMessage) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(4, w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(sm.version, w); err != nil {
		return err
	}

	for _, field := range [][]byte{sm.wrappedKey, sm.nonce, sm.sealed} {
		if err := cboring.WriteByteString(field, w); err != nil {
			return err
		}
	}

	return nil
}

func (sm *sealedMessage) UnmarshalCbor(r io.Reader) (err error) {
	if n, nErr := cboring.ReadArrayLength(r); nErr != nil {
		return nErr
	} else if n != 4 {
		return fmt.Errorf("expected array of four elements, got %d", n)
	}

	if sm.version, err = cboring.ReadUInt(r); err != nil {
		return
	}

	if sm.wrappedKey, err = readByteString(r); err != nil {
		return
	}

	if sm.nonce, err = readByteString(r); err != nil {
		return
	}

	sm.sealed, err = readByteString(r)
	return
}

// readByteString reads a CBOR byte string, but rejects declared lengths exceeding the remaining input.
func readByteString(r io.Reader) ([]byte, error) {
	n, err := cboring.ReadByteStringLen(r)
	if err != nil {
		return nil, err
	}

	if lr, ok := r.(interface{ Len() int }); ok && n > uint64(lr.Len()) {
		return nil, fmt.Errorf("byte string of %d bytes exceeds the remaining %d bytes", n, lr.Len())
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncryptHybrid seals the plaintext for the holder of the recipient's private key.
func EncryptHybrid(plaintext []byte, recipient *rsa.PublicKey) ([]byte, error) {
	if recipient == nil {
		return nil, newSecurityError("encrypt", fmt.Errorf("no recipient public key"))
	}

	key := make([]byte, symmetricKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, newSecurityError("encrypt", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, newSecurityError("encrypt", err)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, newSecurityError("encrypt", err)
	}

	wrappedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, recipient, key, oaepLabel)
	if err != nil {
		return nil, newSecurityError("encrypt", err)
	}

	sm := &sealedMessage{
		version:    schemeVersion,
		wrappedKey: wrappedKey,
		nonce:      nonce,
		sealed:     aead.Seal(nil, nonce, plaintext, wrappedKey),
	}

	buff := new(bytes.Buffer)
	if err := cboring.Marshal(sm, buff); err != nil {
		return nil, newSecurityError("encrypt", err)
	}
	return buff.Bytes(), nil
}

// DecryptHybrid opens a ciphertext created by EncryptHybrid for the private key's public counterpart.
func DecryptHybrid(ciphertext []byte, priv *rsa.PrivateKey) ([]byte, error) {
	if priv == nil {
		return nil, newSecurityError("decrypt", fmt.Errorf("no private key"))
	}

	sm := new(sealedMessage)
	r := bytes.NewReader(ciphertext)
	if err := cboring.Unmarshal(sm, r); err != nil {
		return nil, newSecurityError("decrypt", fmt.Errorf("malformed ciphertext: %w", err))
	} else if r.Len() != 0 {
		return nil, newSecurityError("decrypt", fmt.Errorf("malformed ciphertext, %d trailing bytes", r.Len()))
	}

	if sm.version != schemeVersion {
		return nil, newSecurityError("decrypt", fmt.Errorf("unsupported scheme version %d", sm.version))
	} else if len(sm.nonce) != nonceSize {
		return nil, newSecurityError("decrypt", fmt.Errorf("invalid nonce length %d", len(sm.nonce)))
	}

	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, sm.wrappedKey, oaepLabel)
	if err != nil {
		return nil, newSecurityError("decrypt", err)
	} else if len(key) != symmetricKeySize {
		return nil, newSecurityError("decrypt", fmt.Errorf("invalid key length %d", len(key)))
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, newSecurityError("decrypt", err)
	}

	plaintext, err := aead.Open(nil, sm.nonce, sm.sealed, sm.wrappedKey)
	if err != nil {
		return nil, newSecurityError("decrypt", err)
	}
	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
