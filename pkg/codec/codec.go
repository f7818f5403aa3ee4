// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package codec

import "errors"

// ErrDecryption is returned, possibly wrapped, by a Codec's Decrypt method for malformed ciphertext.
var ErrDecryption = errors.New("codec: malformed ciphertext")

// Codec encrypts outgoing and decrypts incoming payloads. Implementations must be stateless and
// safe for concurrent use. Neither method may modify its input; the returned slice is always
// freshly allocated.
type Codec interface {
	// Encrypt transforms a plaintext into its ciphertext.
	Encrypt(plaintext []byte) []byte

	// Decrypt transforms a ciphertext back into its plaintext. An error wrapping ErrDecryption is
	// returned if the ciphertext is malformed.
	Decrypt(ciphertext []byte) ([]byte, error)
}
