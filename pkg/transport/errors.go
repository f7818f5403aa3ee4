// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"fmt"
	"strings"
)

// Kind classifies an Error. A Kind itself is an error, which allows checks like
// errors.Is(err, transport.Timeout).
type Kind uint

const (
	_ Kind = iota

	// BindFailed indicates that the local endpoint could not be bound. The Socket is unusable.
	BindFailed

	// SendFailed indicates an OS-level transmission error. The Socket was closed as a side effect.
	SendFailed

	// Timeout indicates that no reply arrived before the deadline. The Socket remains usable.
	Timeout

	// SocketClosed indicates that the Socket was closed during or instead of an exchange.
	SocketClosed

	// SocketError indicates an asynchronous OS-level socket error. The Socket was closed.
	SocketError

	// MalformedResponse indicates a reply which could not be decrypted or parsed. The Socket
	// remains usable. This is most likely caused by wrong key material.
	MalformedResponse

	// NotBound indicates an exchange on a Socket which is not bound.
	NotBound

	// ExchangeInProgress indicates an exchange on a Socket with another unresolved exchange.
	ExchangeInProgress

	// Canceled indicates that the exchange's context was done first. The Socket remains usable.
	Canceled
)

func (k Kind) String() string {
	switch k {
	case BindFailed:
		return "bind failed"
	case SendFailed:
		return "send failed"
	case Timeout:
		return "timeout"
	case SocketClosed:
		return "socket closed"
	case SocketError:
		return "socket error"
	case MalformedResponse:
		return "malformed response"
	case NotBound:
		return "not bound"
	case ExchangeInProgress:
		return "exchange in progress"
	case Canceled:
		return "canceled"
	default:
		return "unknown error"
	}
}

func (k Kind) Error() string {
	return "transport: " + k.String()
}

// label for metrics, e.g., "send_failed".
func (k Kind) label() string {
	return strings.ReplaceAll(k.String(), " ", "_")
}

// Error is returned for each failed Socket operation.
type Error struct {
	Kind     Kind
	Endpoint Endpoint

	// Diagnostic is the Socket's buffer readout at the time of failure.
	Diagnostic Diagnostic

	// Raw holds the received datagram for a MalformedResponse.
	Raw []byte

	Cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())

	if e.Endpoint != (Endpoint{}) {
		_, _ = fmt.Fprintf(&b, " (%v)", e.Endpoint)
	}
	if e.Cause != nil {
		_, _ = fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if e.Kind == MalformedResponse || e.Kind == SendFailed || e.Kind == Timeout {
		_, _ = fmt.Fprintf(&b, " [%v]", e.Diagnostic)
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports if the target is this Error's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}
