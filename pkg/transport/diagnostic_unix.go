// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// bufferDiagnostic queries SO_SNDBUF and SO_RCVBUF. A closed descriptor results in unknown values.
func bufferDiagnostic(conn syscall.Conn) (d Diagnostic) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return
	}

	_ = rawConn.Control(func(fd uintptr) {
		if n, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF); err == nil {
			d.SendBufferSize = BufferSize{Bytes: n, Known: true}
		}
		if n, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF); err == nil {
			d.ReceiveBufferSize = BufferSize{Bytes: n, Known: true}
		}
	})

	return
}
