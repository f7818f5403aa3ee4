// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package codec

import "fmt"

// DefaultInitialKey is the initial key used by TP-Link smart home devices.
const DefaultInitialKey byte = 171

// Autokey is an autokey XOR cipher. The first byte is XORed with the initial key, every following
// byte with the preceding ciphertext byte.
type Autokey struct {
	initialKey byte
}

// NewAutokey creates an Autokey Codec with the DefaultInitialKey.
func NewAutokey() Autokey {
	return NewAutokeyWithKey(DefaultInitialKey)
}

// NewAutokeyWithKey creates an Autokey Codec starting with the given initial key.
func NewAutokeyWithKey(initialKey byte) Autokey {
	return Autokey{initialKey: initialKey}
}

// Encrypt a plaintext.
func (a Autokey) Encrypt(plaintext []byte) []byte {
	ciphertext := make([]byte, len(plaintext))

	key := a.initialKey
	for i, b := range plaintext {
		key ^= b
		ciphertext[i] = key
	}

	return ciphertext
}

// Decrypt a ciphertext. Every byte sequence is a valid ciphertext for this cipher, thus no error
// will ever be returned.
func (a Autokey) Decrypt(ciphertext []byte) ([]byte, error) {
	plaintext := make([]byte, len(ciphertext))

	key := a.initialKey
	for i, c := range ciphertext {
		plaintext[i] = key ^ c
		key = c
	}

	return plaintext, nil
}

func (a Autokey) String() string {
	return fmt.Sprintf("Autokey(%d)", a.initialKey)
}
