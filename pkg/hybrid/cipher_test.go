// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package hybrid

import (
	"bytes"
	"errors"
	"testing"
)

func mustKeyPair(t *testing.T, cn string) *KeyPair {
	t.Helper()

	kp, err := NewSelfSignedKeyPair(cn, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return kp
}

func TestHybridRoundTrip(t *testing.T) {
	kp := mustKeyPair(t, "agent")

	tests := [][]byte{
		{},
		[]byte("hello world"),
		bytes.Repeat([]byte{0x23, 0x42}, 1<<16),
	}

	for _, plaintext := range tests {
		ciphertext, err := EncryptHybrid(plaintext, kp.PublicKey())
		if err != nil {
			t.Fatal(err)
		}

		if len(plaintext) > 0 && bytes.Contains(ciphertext, plaintext) {
			t.Fatalf("ciphertext contains the plaintext")
		}

		decrypted, err := DecryptHybrid(ciphertext, kp.PrivateKey)
		if err != nil {
			t.Fatal(err)
		}

		if !bytes.Equal(plaintext, decrypted) {
			t.Fatalf("decrypted payload of %d bytes differs from %d plaintext bytes", len(decrypted), len(plaintext))
		}
	}
}

func TestHybridFreshKeyPerMessage(t *testing.T) {
	kp := mustKeyPair(t, "agent")

	c1, err := EncryptHybrid([]byte("same"), kp.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	c2, err := EncryptHybrid([]byte("same"), kp.PublicKey())
	if err != nil {
		t.Fatal(err)
	}

	if bytes.Equal(c1, c2) {
		t.Fatal("two encryptions of the same plaintext are identical")
	}
}

func TestHybridWrongKey(t *testing.T) {
	kp := mustKeyPair(t, "agent")
	other := mustKeyPair(t, "intruder")

	ciphertext, err := EncryptHybrid([]byte("secret"), kp.PublicKey())
	if err != nil {
		t.Fatal(err)
	}

	var secErr *SecurityError
	if _, err := DecryptHybrid(ciphertext, other.PrivateKey); err == nil {
		t.Fatal("decryption with a foreign key succeeded")
	} else if !errors.As(err, &secErr) {
		t.Fatalf("expected SecurityError, got %T", err)
	}
}

func TestHybridTampered(t *testing.T) {
	kp := mustKeyPair(t, "agent")

	ciphertext, err := EncryptHybrid([]byte("do not touch"), kp.PublicKey())
	if err != nil {
		t.Fatal(err)
	}

	tests := map[string][]byte{
		"empty":     {},
		"truncated": ciphertext[:len(ciphertext)/2],
		"garbage":   []byte("definitely not cbor"),
	}

	flipped := append([]byte{}, ciphertext...)
	flipped[len(flipped)-1] ^= 0xff
	tests["flipped"] = flipped
	tests["trailing"] = append(append([]byte{}, ciphertext...), 0x00)

	for name, data := range tests {
		var secErr *SecurityError
		if plaintext, err := DecryptHybrid(data, kp.PrivateKey); err == nil {
			t.Fatalf("%s: decryption succeeded", name)
		} else if plaintext != nil {
			t.Fatalf("%s: partial plaintext returned", name)
		} else if !errors.As(err, &secErr) {
			t.Fatalf("%s: expected SecurityError, got %T", name, err)
		}
	}
}

func TestHybridNoRecipient(t *testing.T) {
	if _, err := EncryptHybrid([]byte("x"), nil); err == nil {
		t.Fatal("encryption without recipient succeeded")
	}
}

func TestProviderLocalRecipient(t *testing.T) {
	kp := mustKeyPair(t, "console")

	p, err := NewProvider(kp)
	if err != nil {
		t.Fatal(err)
	}

	ciphertext, err := p.EncryptHybrid([]byte("note to self"), nil)
	if err != nil {
		t.Fatal(err)
	}

	if plaintext, err := p.DecryptHybrid(ciphertext); err != nil {
		t.Fatal(err)
	} else if string(plaintext) != "note to self" {
		t.Fatalf("unexpected plaintext %q", plaintext)
	}
}
