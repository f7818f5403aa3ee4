// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package transport implements a single-exchange request/response transport over UDP.
//
// A Socket owns one datagram endpoint. Its Exchange method sends one encrypted payload to an
// Endpoint and waits for exactly one encrypted reply, bounded by a deadline. There are neither
// retransmissions nor sequence numbers: one datagram out, one datagram in, or failure.
//
//	s := transport.NewSocket(transport.Config{})
//	if err := s.Open(); err != nil {
//	  // errors.Is(err, transport.BindFailed)
//	}
//	defer s.Close()
//
//	resp, err := s.Exchange(ctx, []byte(`{"time":{"get_time":{}}}`),
//	  transport.Endpoint{Host: "192.168.0.23", Port: 9999}, 2*time.Second)
//
// Only one exchange may be active per Socket. A second concurrent call fails with
// ExchangeInProgress instead of silently superseding the first one. Whichever event terminates an
// exchange first (reply, deadline, close, socket error, context cancellation) determines its
// outcome; all later events for this exchange are dropped.
//
// Every failure is an *Error, whose Kind can be checked with errors.Is.
package transport
