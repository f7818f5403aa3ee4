// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// BufferSize is an optional buffer size in bytes, as reported by the OS.
type BufferSize struct {
	Bytes int
	Known bool
}

func (b BufferSize) String() string {
	if !b.Known {
		return "unknown"
	}
	return strconv.Itoa(b.Bytes)
}

// Diagnostic is a best-effort snapshot of a Socket's buffers. Values are unknown on platforms
// without support or for sockets without a descriptor.
type Diagnostic struct {
	SendBufferSize    BufferSize
	ReceiveBufferSize BufferSize
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("SO_SNDBUF:%v SO_RCVBUF:%v", d.SendBufferSize, d.ReceiveBufferSize)
}

// Fields to be attached to a log entry.
func (d Diagnostic) Fields() log.Fields {
	return log.Fields{
		"SO_SNDBUF": d.SendBufferSize.String(),
		"SO_RCVBUF": d.ReceiveBufferSize.String(),
	}
}
