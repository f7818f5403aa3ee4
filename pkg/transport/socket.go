// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/kasa-go/pkg/codec"
	"github.com/dtn7/kasa-go/pkg/telemetry"
)

const (
	// network of all Sockets. The devices only speak IPv4.
	network = "udp4"

	// maxDatagramSize is the largest UDP payload over IPv4.
	maxDatagramSize = 65507
)

// socketCounter hands out an ID for each Socket, used for logging.
var socketCounter uint64

// State of a Socket. A Socket moves from Unbound over Binding to Bound, and finally to Closed.
// No transition leaves Closed.
type State uint32

const (
	Unbound State = iota
	Binding
	Bound
	Closed
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Binding:
		return "binding"
	case Bound:
		return "bound"
	case Closed:
		return "closed"
	default:
		return "unknown state"
	}
}

// Config of a Socket.
type Config struct {
	// LocalAddress to bind, e.g., "0.0.0.0:0". An empty value binds an ephemeral port on all
	// interfaces.
	LocalAddress string

	// Codec for all payloads. Defaults to codec.NewAutokey().
	Codec codec.Codec

	// ReadBufferSize and WriteBufferSize set SO_RCVBUF resp. SO_SNDBUF if positive.
	ReadBufferSize  int
	WriteBufferSize int
}

// Socket owns one UDP endpoint and carries at most one exchange at a time.
//
// A Socket can be bound only once. After it was closed, a new Socket has to be created.
type Socket struct {
	id    uint64
	conf  Config
	codec codec.Codec

	// mutex protects all following fields.
	mutex      sync.Mutex
	state      State
	conn       *net.UDPConn
	active     *exchange
	generation uint64

	// readerAck is closed when the reader goroutine has finished.
	readerAck chan struct{}
}

// NewSocket creates a new, unbound Socket. Call Open to bind it.
func NewSocket(conf Config) *Socket {
	c := conf.Codec
	if c == nil {
		c = codec.NewAutokey()
	}

	return &Socket{
		id:    atomic.AddUint64(&socketCounter, 1),
		conf:  conf,
		codec: c,
		state: Unbound,
	}
}

func (s *Socket) String() string {
	return fmt.Sprintf("Socket(%d)", s.id)
}

func (s *Socket) log() *log.Entry {
	return log.WithField("socket", s.id)
}

// State of this Socket.
func (s *Socket) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.state
}

// LocalAddr returns the bound address or nil, if this Socket has no descriptor.
func (s *Socket) LocalAddr() net.Addr {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Diagnostics of this Socket's buffers. This never fails; values are unknown if unavailable.
func (s *Socket) Diagnostics() Diagnostic {
	s.mutex.Lock()
	conn := s.conn
	s.mutex.Unlock()

	if conn == nil {
		return Diagnostic{}
	}
	return bufferDiagnostic(conn)
}

// Open binds this Socket. A Socket can be opened only once; each further attempt fails with
// BindFailed, as does an OS error during binding. In the latter case the Socket is Closed.
func (s *Socket) Open() error {
	s.mutex.Lock()
	if s.state != Unbound {
		state := s.state
		s.mutex.Unlock()

		return &Error{Kind: BindFailed, Cause: fmt.Errorf("socket is %v, expected %v", state, Unbound)}
	}
	s.state = Binding
	s.mutex.Unlock()

	conn, err := s.bind()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err != nil {
		s.state = Closed

		s.log().WithFields(log.Fields{
			"address": s.conf.LocalAddress,
			"error":   err,
		}).Debug("Binding socket failed")

		return &Error{Kind: BindFailed, Cause: err}
	}

	if s.state == Closed {
		_ = conn.Close()
		return &Error{Kind: BindFailed, Cause: errors.New("socket was closed while binding")}
	}

	s.conn = conn
	s.state = Bound
	s.readerAck = make(chan struct{})

	go s.reader(conn, s.readerAck)

	s.log().WithField("address", conn.LocalAddr()).Debug("Socket listening")
	return nil
}

func (s *Socket) bind() (*net.UDPConn, error) {
	var laddr *net.UDPAddr
	if s.conf.LocalAddress != "" {
		addr, err := net.ResolveUDPAddr(network, s.conf.LocalAddress)
		if err != nil {
			return nil, err
		}
		laddr = addr
	}

	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}

	if s.conf.ReadBufferSize > 0 {
		if err := conn.SetReadBuffer(s.conf.ReadBufferSize); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	if s.conf.WriteBufferSize > 0 {
		if err := conn.SetWriteBuffer(s.conf.WriteBufferSize); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	return conn, nil
}

// Close this Socket and release its descriptor. An unresolved exchange fails with SocketClosed.
// Close may be called in every State and any number of times; only the first call might return
// the descriptor's close error.
func (s *Socket) Close() error {
	return s.close(true)
}

// close this Socket. The reader goroutine itself must not wait for its own termination.
func (s *Socket) close(waitReader bool) (err error) {
	s.mutex.Lock()
	if s.state == Closed {
		s.mutex.Unlock()
		return nil
	}

	s.state = Closed
	conn, ex, readerAck := s.conn, s.active, s.readerAck
	s.mutex.Unlock()

	// Fail the exchange first to capture the buffers while the descriptor is still alive.
	if ex != nil {
		ex.finish(outcome{err: &Error{
			Kind:       SocketClosed,
			Endpoint:   ex.endpoint,
			Diagnostic: s.Diagnostics(),
		}})
	}

	if conn != nil {
		err = conn.Close()

		if waitReader {
			<-readerAck
		}
	}

	s.log().Debug("Socket closed")
	return
}

// reader receives datagrams until the descriptor is closed or errors.
func (s *Socket) reader(conn *net.UDPConn, readerAck chan struct{}) {
	defer close(readerAck)

	buff := make([]byte, maxDatagramSize)
	for {
		n, from, err := conn.ReadFromUDP(buff)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.log().Debug("Socket reader finished")
			} else {
				s.fail(err)
			}
			return
		}

		telemetry.DatagramReceived(n)

		// Copy the datagram, the buffer will be reused.
		datagram := make([]byte, n)
		copy(datagram, buff[:n])

		s.deliver(datagram, from)
	}
}

// fail the active exchange with a SocketError and close this Socket.
func (s *Socket) fail(cause error) {
	s.log().WithError(cause).Warn("Socket errored")

	s.mutex.Lock()
	ex := s.active
	s.mutex.Unlock()

	if ex != nil {
		ex.finish(outcome{err: &Error{
			Kind:       SocketError,
			Endpoint:   ex.endpoint,
			Diagnostic: s.Diagnostics(),
			Cause:      cause,
		}})
	}

	_ = s.close(false)
}
