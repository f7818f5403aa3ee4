// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !(aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris)

package transport

import "syscall"

// bufferDiagnostic is not supported on this platform.
func bufferDiagnostic(_ syscall.Conn) Diagnostic {
	return Diagnostic{}
}
