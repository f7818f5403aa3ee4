// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"encoding/json"
	"net"
	"strconv"
)

// Endpoint is the remote address of an exchange.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Response is a parsed reply, mapping each top-level key, e.g., a module name, to its raw JSON value.
type Response map[string]json.RawMessage
