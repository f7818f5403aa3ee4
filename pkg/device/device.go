// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package device sends commands to a single TP-Link smart home device over UDP.
//
// A Device owns one transport.Socket, which is opened on first use and replaced after a terminal
// transport error. Concurrent commands are queued, since a Socket carries only one exchange at
// a time.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/kasa-go/pkg/codec"
	"github.com/dtn7/kasa-go/pkg/command"
	"github.com/dtn7/kasa-go/pkg/transport"
)

const (
	// DefaultPort of the devices' UDP service.
	DefaultPort = 9999

	// DefaultTimeout for a single exchange.
	DefaultTimeout = 10 * time.Second
)

// Config of a Device.
type Config struct {
	Host string

	// Port defaults to DefaultPort.
	Port int

	// Timeout for each command, defaults to DefaultTimeout. A negative value disables the deadline.
	Timeout time.Duration

	// Socket configures the underlying transport.Socket.
	Socket transport.Config
}

// Device represents one remote device.
type Device struct {
	endpoint transport.Endpoint
	timeout  time.Duration
	sockConf transport.Config

	// mutex serializes commands and protects socket.
	mutex  sync.Mutex
	socket *transport.Socket
	closed bool
}

// New creates a Device. No socket is opened until the first command is sent.
func New(conf Config) (*Device, error) {
	if conf.Host == "" {
		return nil, fmt.Errorf("device host is empty")
	}

	if conf.Port == 0 {
		conf.Port = DefaultPort
	} else if conf.Port < 0 || conf.Port > 65535 {
		return nil, fmt.Errorf("device port %d is out of range", conf.Port)
	}

	if conf.Timeout == 0 {
		conf.Timeout = DefaultTimeout
	}

	if conf.Socket.Codec == nil {
		conf.Socket.Codec = codec.NewAutokey()
	}

	return &Device{
		endpoint: transport.Endpoint{Host: conf.Host, Port: conf.Port},
		timeout:  conf.Timeout,
		sockConf: conf.Socket,
	}, nil
}

func (d *Device) String() string {
	return fmt.Sprintf("Device(%v)", d.endpoint)
}

func (d *Device) log() *log.Entry {
	return log.WithField("device", d.endpoint.String())
}

// Endpoint of this Device.
func (d *Device) Endpoint() transport.Endpoint {
	return d.endpoint
}

// Time module of this Device.
func (d *Device) Time() *Time {
	return NewTime(d, "time")
}

// socketLocked returns a bound Socket, opening a new one if necessary. The mutex must be held.
func (d *Device) socketLocked() (*transport.Socket, error) {
	if d.socket != nil && d.socket.State() == transport.Bound {
		return d.socket, nil
	}

	s := transport.NewSocket(d.sockConf)
	if err := s.Open(); err != nil {
		return nil, err
	}

	d.log().WithField("address", s.LocalAddr()).Debug("Opened new socket")

	d.socket = s
	return s, nil
}

// Send a raw JSON payload and return the parsed response without inspecting any err_code.
func (d *Device) Send(ctx context.Context, payload []byte) (transport.Response, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return nil, fmt.Errorf("%v is closed", d)
	}

	s, err := d.socketLocked()
	if err != nil {
		return nil, err
	}

	resp, err := s.Exchange(ctx, payload, d.endpoint, d.timeout)
	if err != nil {
		logger := d.log().WithError(err)

		if isTerminal(err) {
			logger.Debug("Dropping socket after terminal error")

			_ = s.Close()
			d.socket = nil
		} else {
			logger.Debug("Exchange failed")
		}
	}

	return resp, err
}

// SendCommand sends the Command and checks each action's err_code. For a failed action, the
// response is returned together with a *command.ResponseError.
func (d *Device) SendCommand(ctx context.Context, cmd command.Command) (transport.Response, error) {
	payload, err := cmd.Marshal()
	if err != nil {
		return nil, err
	}

	resp, err := d.Send(ctx, payload)
	if err != nil {
		return nil, err
	}

	return resp, cmd.CheckResponse(resp)
}

// Close this Device's socket. Further commands fail.
func (d *Device) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.closed = true
	if d.socket == nil {
		return nil
	}

	err := d.socket.Close()
	d.socket = nil
	return err
}

// isTerminal reports if the socket must not be used for another exchange.
func isTerminal(err error) bool {
	for _, kind := range []transport.Kind{transport.BindFailed, transport.SendFailed, transport.SocketClosed, transport.SocketError} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
