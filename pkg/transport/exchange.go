// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/kasa-go/pkg/telemetry"
)

// outcome terminates an exchange. Exactly one of both fields is set.
type outcome struct {
	response Response
	err      error
}

func (o outcome) label() string {
	var e *Error
	switch {
	case o.err == nil:
		return "success"
	case errors.As(o.err, &e):
		return e.Kind.label()
	default:
		return "error"
	}
}

// exchange is the state of one in-flight request. It is owned by the Socket until its outcome is
// set; the exchange pointer acts as the token that lets events reach it.
type exchange struct {
	generation uint64
	endpoint   Endpoint
	start      time.Time

	once sync.Once
	done chan struct{}
	out  outcome
}

func newExchange(generation uint64, endpoint Endpoint) *exchange {
	return &exchange{
		generation: generation,
		endpoint:   endpoint,
		start:      time.Now(),
		done:       make(chan struct{}),
	}
}

// finish sets the outcome if none was set before and reports if this call was the first one.
func (ex *exchange) finish(out outcome) (first bool) {
	ex.once.Do(func() {
		ex.out = out
		close(ex.done)
		first = true
	})
	return
}

// Exchange sends the payload to the endpoint and waits for exactly one reply, which is decrypted
// and parsed as a JSON object.
//
// A non-positive timeout disables the deadline; the exchange then only ends through a reply, the
// context, or the Socket being closed. The returned error is always an *Error.
func (s *Socket) Exchange(ctx context.Context, payload []byte, endpoint Endpoint, timeout time.Duration) (Response, error) {
	ex, err := s.begin(endpoint)
	if err != nil {
		return nil, err
	}
	defer s.end(ex)

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		deadline = timer.C
	}

	s.send(ex, payload)

	select {
	case <-ex.done:

	case <-deadline:
		if ex.finish(outcome{err: &Error{
			Kind:       Timeout,
			Endpoint:   endpoint,
			Diagnostic: s.Diagnostics(),
			Cause:      fmt.Errorf("no response within %v", timeout),
		}}) {
			s.log().WithFields(log.Fields{
				"exchange": ex.generation,
				"timeout":  timeout,
			}).Debug("Exchange timed out")
		}

	case <-ctx.Done():
		ex.finish(outcome{err: &Error{Kind: Canceled, Endpoint: endpoint, Cause: ctx.Err()}})
	}

	// Another event might have won the race; done is closed either way.
	<-ex.done
	return ex.out.response, ex.out.err
}

// SendAndAwaitResponse is an Exchange without a context and with a timeout in milliseconds.
func (s *Socket) SendAndAwaitResponse(payload []byte, endpoint Endpoint, timeoutMs int) (Response, error) {
	return s.Exchange(context.Background(), payload, endpoint, time.Duration(timeoutMs)*time.Millisecond)
}

// begin registers a new exchange as the active one.
func (s *Socket) begin(endpoint Endpoint) (*exchange, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state != Bound {
		return nil, &Error{Kind: NotBound, Endpoint: endpoint, Cause: fmt.Errorf("socket is %v", s.state)}
	}
	if s.active != nil {
		return nil, &Error{
			Kind:     ExchangeInProgress,
			Endpoint: endpoint,
			Cause:    fmt.Errorf("exchange %d with %v is unresolved", s.active.generation, s.active.endpoint),
		}
	}

	s.generation++
	s.active = newExchange(s.generation, endpoint)

	telemetry.ExchangeStarted()
	return s.active, nil
}

// end unregisters a finished exchange. Datagrams arriving afterwards are dropped.
func (s *Socket) end(ex *exchange) {
	s.mutex.Lock()
	if s.active == ex {
		s.active = nil
	}
	s.mutex.Unlock()

	telemetry.ExchangeFinished(ex.out.label(), ex.start)
}

// send the encrypted payload as one datagram. Failures are set as the exchange's outcome.
func (s *Socket) send(ex *exchange, payload []byte) {
	logger := s.log().WithFields(log.Fields{
		"exchange": ex.generation,
		"endpoint": ex.endpoint,
	})

	addr, err := net.ResolveUDPAddr(network, ex.endpoint.String())
	if err != nil {
		logger.WithError(err).Debug("Resolving endpoint failed")
		ex.finish(outcome{err: &Error{Kind: SendFailed, Endpoint: ex.endpoint, Cause: err}})
		return
	}

	ciphertext := s.codec.Encrypt(payload)

	s.mutex.Lock()
	conn := s.conn
	s.mutex.Unlock()

	if _, err := conn.WriteToUDP(ciphertext, addr); err != nil {
		diagnostic := s.Diagnostics()
		logger.WithFields(diagnostic.Fields()).WithFields(log.Fields{
			"length": len(ciphertext),
			"error":  err,
		}).Debug("Sending datagram failed")

		if ex.finish(outcome{err: &Error{
			Kind:       SendFailed,
			Endpoint:   ex.endpoint,
			Diagnostic: diagnostic,
			Cause:      err,
		}}) {
			_ = s.Close()
		}
		return
	}

	telemetry.DatagramSent(len(ciphertext))
	logger.WithField("length", len(ciphertext)).Debug("Sent datagram")
}

// deliver an incoming datagram to the active exchange, if any.
func (s *Socket) deliver(datagram []byte, from *net.UDPAddr) {
	s.mutex.Lock()
	ex := s.active
	s.mutex.Unlock()

	logger := s.log().WithField("from", from)

	if ex == nil {
		logger.WithField("length", len(datagram)).Debug("Dropping datagram without an active exchange")
		return
	}

	logger = logger.WithField("exchange", ex.generation)

	plaintext, err := s.codec.Decrypt(datagram)
	if err == nil {
		var resp Response
		if err = json.Unmarshal(plaintext, &resp); err == nil && resp == nil {
			err = errors.New("response is not a JSON object")
		}

		if err == nil {
			logger.WithField("message", string(plaintext)).Debug("Received response")
			ex.finish(outcome{response: resp})
			return
		}
	}

	diagnostic := s.Diagnostics()
	logger.WithFields(diagnostic.Fields()).WithFields(log.Fields{
		"raw":       fmt.Sprintf("%x", datagram),
		"decrypted": string(plaintext),
		"error":     err,
	}).Error("Error processing UDP message")

	ex.finish(outcome{err: &Error{
		Kind:       MalformedResponse,
		Endpoint:   ex.endpoint,
		Diagnostic: diagnostic,
		Raw:        datagram,
		Cause:      err,
	}})
}
