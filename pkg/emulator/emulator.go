// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package emulator answers device commands over UDP, e.g., for tests or development without
// real hardware.
//
// Each incoming datagram is decrypted, parsed as a command.Command, and dispatched to the
// HandlerFunc registered for each module's action. The encrypted, mirrored response is sent
// back to the requester.
package emulator

import (
	"encoding/json"
	"errors"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/kasa-go/pkg/codec"
	"github.com/dtn7/kasa-go/pkg/command"
)

// HandlerFunc handles one action. The returned result gets an "err_code" of 0 attached. A returned
// *command.ResponseError determines the err_code and err_msg, any other error results in
// command.ErrUnknown.
type HandlerFunc func(args json.RawMessage) (map[string]interface{}, error)

// Server is a UDP device emulator.
type Server struct {
	conn  *net.UDPConn
	codec codec.Codec

	modules      map[string]map[string]HandlerFunc
	modulesMutex sync.RWMutex

	stopAck chan struct{}
}

// NewServer binds the address and starts answering requests. A nil Codec defaults to
// codec.NewAutokey().
func NewServer(address string, c codec.Codec) (*Server, error) {
	addr, err := net.ResolveUDPAddr("udp4", address)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, err
	}

	if c == nil {
		c = codec.NewAutokey()
	}

	s := &Server{
		conn:    conn,
		codec:   c,
		modules: make(map[string]map[string]HandlerFunc),
		stopAck: make(chan struct{}),
	}

	go s.handler()

	s.log().Info("Emulator listening")
	return s, nil
}

func (s *Server) log() *log.Entry {
	return log.WithField("emulator", s.conn.LocalAddr().String())
}

// Addr of this Server.
func (s *Server) Addr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Handle registers a HandlerFunc for a module's action, replacing a previous one.
func (s *Server) Handle(module, action string, handler HandlerFunc) {
	s.modulesMutex.Lock()
	defer s.modulesMutex.Unlock()

	if _, ok := s.modules[module]; !ok {
		s.modules[module] = make(map[string]HandlerFunc)
	}
	s.modules[module][action] = handler
}

// Close this Server.
func (s *Server) Close() error {
	err := s.conn.Close()
	<-s.stopAck
	return err
}

func (s *Server) handler() {
	defer close(s.stopAck)

	buff := make([]byte, 65507)
	for {
		n, from, err := s.conn.ReadFromUDP(buff)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.log().WithError(err).Warn("Emulator's socket errored")
			}
			return
		}

		logger := s.log().WithField("peer", from)

		plaintext, err := s.codec.Decrypt(buff[:n])
		if err != nil {
			logger.WithError(err).Warn("Dropping undecryptable request")
			continue
		}

		resp, err := s.Respond(plaintext)
		if err != nil {
			logger.WithError(err).WithField("request", string(plaintext)).Warn("Dropping invalid request")
			continue
		}

		logger.WithFields(log.Fields{
			"request":  string(plaintext),
			"response": string(resp),
		}).Debug("Answering request")

		if _, err := s.conn.WriteToUDP(s.codec.Encrypt(resp), from); err != nil {
			logger.WithError(err).Warn("Sending response errored")
		}
	}
}

// Respond to a plaintext request with the plaintext response.
func (s *Server) Respond(request []byte) ([]byte, error) {
	var cmd map[string]map[string]json.RawMessage
	if err := json.Unmarshal(request, &cmd); err != nil {
		return nil, err
	}
	if _, err := command.Parse(request); err != nil {
		return nil, err
	}

	s.modulesMutex.RLock()
	defer s.modulesMutex.RUnlock()

	resp := make(map[string]interface{})
	for module, actions := range cmd {
		handlers, ok := s.modules[module]
		if !ok {
			resp[module] = map[string]interface{}{
				"err_code": command.ErrModuleNotSupported,
				"err_msg":  "module not support",
			}
			continue
		}

		moduleResp := make(map[string]interface{})
		for action, args := range actions {
			handler, ok := handlers[action]
			if !ok {
				moduleResp[action] = map[string]interface{}{
					"err_code": command.ErrMethodNotSupported,
					"err_msg":  "member not support",
				}
				continue
			}

			moduleResp[action] = call(handler, args)
		}
		resp[module] = moduleResp
	}

	return json.Marshal(resp)
}

func call(handler HandlerFunc, args json.RawMessage) map[string]interface{} {
	result, err := handler(args)
	if err != nil {
		var re *command.ResponseError
		if errors.As(err, &re) {
			return map[string]interface{}{"err_code": re.ErrCode, "err_msg": re.ErrMsg}
		}
		return map[string]interface{}{"err_code": command.ErrUnknown, "err_msg": err.Error()}
	}

	out := make(map[string]interface{}, len(result)+1)
	for k, v := range result {
		out[k] = v
	}
	out["err_code"] = 0
	return out
}
