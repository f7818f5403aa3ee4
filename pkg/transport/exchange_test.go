// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dtn7/kasa-go/pkg/codec"
)

const timeRequest = `{"time":{"get_time":{}}}`

const timeResponse = `{"time":{"get_time":{"err_code":0,"year":2024,"month":1,"mday":2,"hour":3,"min":4,"sec":5}}}`

// responder answers each request with the datagrams returned by reply. The request passed to
// reply is already decrypted.
type responder struct {
	conn  *net.UDPConn
	codec codec.Codec
	reply func(request []byte) [][]byte

	requests int32
}

func newResponder(t *testing.T, reply func(request []byte) [][]byte) *responder {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}

	r := &responder{
		conn:  conn,
		codec: codec.NewAutokey(),
		reply: reply,
	}

	go r.handle()
	t.Cleanup(func() { _ = conn.Close() })

	return r
}

func (r *responder) handle() {
	buff := make([]byte, maxDatagramSize)
	for {
		n, from, err := r.conn.ReadFromUDP(buff)
		if err != nil {
			return
		}

		atomic.AddInt32(&r.requests, 1)

		request, _ := r.codec.Decrypt(buff[:n])
		for _, datagram := range r.reply(request) {
			_, _ = r.conn.WriteToUDP(datagram, from)
		}
	}
}

func (r *responder) endpoint() Endpoint {
	addr := r.conn.LocalAddr().(*net.UDPAddr)
	return Endpoint{Host: addr.IP.String(), Port: addr.Port}
}

// echoTime replies to each request with an encrypted timeResponse.
func echoTime(_ []byte) [][]byte {
	return [][]byte{codec.NewAutokey().Encrypt([]byte(timeResponse))}
}

// silent never replies.
func silent(_ []byte) [][]byte {
	return nil
}

// waitActive blocks until the Socket has an active exchange.
func waitActive(t *testing.T, s *Socket) {
	for i := 0; i < 200; i++ {
		s.mutex.Lock()
		active := s.active != nil
		s.mutex.Unlock()

		if active {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatal("Socket has no active exchange after 1s")
}

func checkTimeResponse(t *testing.T, resp Response) {
	var module map[string]struct {
		ErrCode int `json:"err_code"`
		Year    int `json:"year"`
	}
	if err := json.Unmarshal(resp["time"], &module); err != nil {
		t.Fatalf("Parsing response errored: %v", err)
	}

	if getTime, ok := module["get_time"]; !ok {
		t.Fatalf("Response misses get_time: %v", module)
	} else if getTime.ErrCode != 0 || getTime.Year != 2024 {
		t.Fatalf("Unexpected get_time response: %+v", getTime)
	}
}

func TestExchange(t *testing.T) {
	var request []byte
	var requestMutex sync.Mutex

	r := newResponder(t, func(req []byte) [][]byte {
		requestMutex.Lock()
		request = append([]byte(nil), req...)
		requestMutex.Unlock()

		return echoTime(req)
	})
	s := openSocket(t)

	resp, err := s.SendAndAwaitResponse([]byte(timeRequest), r.endpoint(), 2000)
	if err != nil {
		t.Fatal(err)
	}
	checkTimeResponse(t, resp)

	requestMutex.Lock()
	defer requestMutex.Unlock()
	if !bytes.Equal(request, []byte(timeRequest)) {
		t.Fatalf("Responder received %q", request)
	}
}

func TestExchangeSequential(t *testing.T) {
	r := newResponder(t, echoTime)
	s := openSocket(t)

	for i := 0; i < 20; i++ {
		resp, err := s.Exchange(context.Background(), []byte(timeRequest), r.endpoint(), time.Second)
		if err != nil {
			t.Fatalf("Exchange %d errored: %v", i, err)
		}
		checkTimeResponse(t, resp)
	}

	if n := atomic.LoadInt32(&r.requests); n != 20 {
		t.Fatalf("Responder received %d requests", n)
	}
}

func TestExchangeTimeout(t *testing.T) {
	const timeout = 200 * time.Millisecond

	r := newResponder(t, silent)
	s := openSocket(t)

	start := time.Now()
	_, err := s.Exchange(context.Background(), []byte(timeRequest), r.endpoint(), timeout)
	if !errors.Is(err, Timeout) {
		t.Fatalf("Expected Timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < timeout {
		t.Fatalf("Timeout fired after %v", elapsed)
	}

	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("%v is no *Error", err)
	}
	if e.Endpoint != r.endpoint() {
		t.Fatalf("Error carries endpoint %v", e.Endpoint)
	}
	_ = e.Diagnostic.String()

	if state := s.State(); state != Bound {
		t.Fatalf("Socket is %v after a Timeout", state)
	}
}

func TestExchangeLateReply(t *testing.T) {
	var late int32
	r := newResponder(t, func(req []byte) [][]byte {
		if atomic.AddInt32(&late, 1) == 1 {
			time.Sleep(300 * time.Millisecond)
		}
		return echoTime(req)
	})
	s := openSocket(t)

	if _, err := s.Exchange(context.Background(), []byte(timeRequest), r.endpoint(), 100*time.Millisecond); !errors.Is(err, Timeout) {
		t.Fatalf("Expected Timeout, got %v", err)
	}

	// The late reply arrives without an active exchange and must be dropped.
	time.Sleep(400 * time.Millisecond)

	resp, err := s.Exchange(context.Background(), []byte(timeRequest), r.endpoint(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	checkTimeResponse(t, resp)
}

func TestExchangeMalformedResponse(t *testing.T) {
	garbage := []byte{0x00, 0x01, 0x02, 0xff}

	var calls int32
	r := newResponder(t, func(req []byte) [][]byte {
		if atomic.AddInt32(&calls, 1) == 1 {
			return [][]byte{garbage}
		}
		return echoTime(req)
	})
	s := openSocket(t)

	_, err := s.Exchange(context.Background(), []byte(timeRequest), r.endpoint(), time.Second)
	if !errors.Is(err, MalformedResponse) {
		t.Fatalf("Expected MalformedResponse, got %v", err)
	}

	var e *Error
	if !errors.As(err, &e) || !bytes.Equal(e.Raw, garbage) {
		t.Fatalf("MalformedResponse does not carry the raw bytes: %v", err)
	}
	if e.Cause == nil {
		t.Fatal("MalformedResponse carries no cause")
	}

	if state := s.State(); state != Bound {
		t.Fatalf("Socket is %v after a MalformedResponse", state)
	}

	resp, err := s.Exchange(context.Background(), []byte(timeRequest), r.endpoint(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	checkTimeResponse(t, resp)
}

func TestExchangeNonObjectResponse(t *testing.T) {
	for _, reply := range []string{`null`, `[1,2,3]`, `"time"`, ``} {
		reply := reply
		r := newResponder(t, func(_ []byte) [][]byte {
			return [][]byte{codec.NewAutokey().Encrypt([]byte(reply))}
		})
		s := openSocket(t)

		if _, err := s.Exchange(context.Background(), []byte(timeRequest), r.endpoint(), time.Second); !errors.Is(err, MalformedResponse) {
			t.Fatalf("Reply %q resulted in %v", reply, err)
		}
	}
}

func TestExchangeNotBound(t *testing.T) {
	s := NewSocket(Config{})
	endpoint := Endpoint{Host: "127.0.0.1", Port: 9999}

	if _, err := s.Exchange(context.Background(), []byte(timeRequest), endpoint, time.Second); !errors.Is(err, NotBound) {
		t.Fatalf("Exchange on an unbound Socket returned %v", err)
	}

	_ = s.Close()
	if _, err := s.Exchange(context.Background(), []byte(timeRequest), endpoint, time.Second); !errors.Is(err, NotBound) {
		t.Fatalf("Exchange on a closed Socket returned %v", err)
	}
}

func TestExchangeInProgressAndClose(t *testing.T) {
	r := newResponder(t, silent)
	s := openSocket(t)

	errCh := make(chan error)
	go func() {
		_, err := s.Exchange(context.Background(), []byte(timeRequest), r.endpoint(), 0)
		errCh <- err
	}()

	waitActive(t, s)

	if _, err := s.Exchange(context.Background(), []byte(timeRequest), r.endpoint(), time.Second); !errors.Is(err, ExchangeInProgress) {
		t.Fatalf("Concurrent exchange returned %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, SocketClosed) {
			t.Fatalf("Expected SocketClosed, got %v", err)
		}

	case <-time.After(time.Second):
		t.Fatal("Exchange did not finish after Close")
	}
}

func TestExchangeCanceled(t *testing.T) {
	r := newResponder(t, silent)
	s := openSocket(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := s.Exchange(ctx, []byte(timeRequest), r.endpoint(), 0)
	if !errors.Is(err, Canceled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected Canceled, got %v", err)
	}

	if state := s.State(); state != Bound {
		t.Fatalf("Socket is %v after cancellation", state)
	}
}

func TestExchangeSendFailed(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("relies on Linux refusing to route from a loopback-bound socket")
	}

	s := openSocket(t)

	// TEST-NET-1 is not reachable from an address bound to the loopback interface.
	_, err := s.Exchange(context.Background(), []byte(timeRequest), Endpoint{Host: "192.0.2.1", Port: 9999}, time.Second)
	if !errors.Is(err, SendFailed) {
		t.Fatalf("Expected SendFailed, got %v", err)
	}

	var e *Error
	if !errors.As(err, &e) || e.Cause == nil {
		t.Fatalf("SendFailed carries no cause: %v", err)
	}

	if state := s.State(); state != Closed {
		t.Fatalf("Socket is %v after SendFailed", state)
	}
}

func TestExchangeUnresolvableEndpoint(t *testing.T) {
	s := openSocket(t)

	_, err := s.Exchange(context.Background(), []byte(timeRequest), Endpoint{Host: "::1", Port: 9999}, time.Second)
	if !errors.Is(err, SendFailed) {
		t.Fatalf("Expected SendFailed, got %v", err)
	}

	// Nothing was sent, thus the Socket is still intact.
	if state := s.State(); state != Bound {
		t.Fatalf("Socket is %v", state)
	}
}

func TestExchangeSocketError(t *testing.T) {
	r := newResponder(t, silent)
	s := openSocket(t)

	errCh := make(chan error)
	go func() {
		_, err := s.Exchange(context.Background(), []byte(timeRequest), r.endpoint(), 0)
		errCh <- err
	}()

	waitActive(t, s)

	cause := errors.New("injected failure")
	s.fail(cause)

	err := <-errCh
	if !errors.Is(err, SocketError) || !errors.Is(err, cause) {
		t.Fatalf("Expected SocketError, got %v", err)
	}

	if state := s.State(); state != Closed {
		t.Fatalf("Socket is %v after SocketError", state)
	}
}

func TestExchangeFinishOnce(t *testing.T) {
	ex := newExchange(1, Endpoint{})

	const racers = 64
	var (
		wins  int32
		start = make(chan struct{})
		wg    sync.WaitGroup
	)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start

			var out outcome
			if i%2 == 0 {
				out.err = &Error{Kind: Timeout}
			} else {
				out.response = Response{}
			}

			if ex.finish(out) {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}

	close(start)
	wg.Wait()

	if wins != 1 {
		t.Fatalf("%d events won the race", wins)
	}
	if (ex.out.err == nil) == (ex.out.response == nil) {
		t.Fatalf("Outcome is inconsistent: %+v", ex.out)
	}
}

func TestExchangeReplyTimeoutRace(t *testing.T) {
	r := newResponder(t, echoTime)
	s := openSocket(t)

	for i := 0; i < 50; i++ {
		resp, err := s.Exchange(context.Background(), []byte(timeRequest), r.endpoint(), time.Millisecond)

		switch {
		case err == nil && resp != nil:
			checkTimeResponse(t, resp)
		case errors.Is(err, Timeout) && resp == nil:
		default:
			t.Fatalf("Exchange %d resulted in response %v and error %v", i, resp, err)
		}
	}

	if state := s.State(); state != Bound {
		t.Fatalf("Socket is %v", state)
	}
}
