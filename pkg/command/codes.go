// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package command

// Error codes as reported by the devices.
const (
	ErrModuleNotSupported = -1
	ErrMethodNotSupported = -2
	ErrInvalidArgument    = -3
	ErrUnknown            = -10
)
