// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package codec contains the symmetric transform applied to every payload crossing the wire.
//
// The Codec interface is what the transport depends on. Autokey is the cipher spoken by TP-Link
// smart home devices: each plaintext byte is XORed with the previous ciphertext byte, starting with
// a fixed initial key. It provides obfuscation, not confidentiality.
//
//	c := codec.NewAutokey()
//	ciphertext := c.Encrypt([]byte(`{"time":{"get_time":{}}}`))
//	plaintext, err := c.Decrypt(ciphertext)
package codec
