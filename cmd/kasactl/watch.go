// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/kasa-go/pkg/device"
	"github.com/dtn7/kasa-go/pkg/telemetry"
)

// status of the last poll, served at /status.
type status struct {
	mutex sync.Mutex

	Device     string             `json:"device"`
	Time       *device.DeviceTime `json:"time,omitempty"`
	Error      string             `json:"error,omitempty"`
	LastUpdate time.Time          `json:"last_update"`
}

func (s *status) update(dt device.DeviceTime, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.LastUpdate = time.Now()
	if err != nil {
		s.Error = err.Error()
		return
	}

	s.Time = &dt
	s.Error = ""
}

func (s *status) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s); err != nil {
		log.WithError(err).Warn("Writing status errored")
	}
}

// newRouter for the status server.
func newRouter(st *status) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", telemetry.MetricsHandler()).Methods(http.MethodGet)
	router.Handle("/status", st).Methods(http.MethodGet)
	return router
}

// watch polls the device's time until SIGINT.
func watch(conf config, t *device.Time) error {
	st := &status{Device: conf.device.Host}

	if conf.metrics != "" {
		srv := &http.Server{Addr: conf.metrics, Handler: newRouter(st)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("Status server errored")
			}
		}()
		defer func() { _ = srv.Close() }()

		log.WithField("address", conf.metrics).Info("Serving /metrics and /status")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)

	ticker := time.NewTicker(conf.interval)
	defer ticker.Stop()

	for {
		dt, err := t.GetTime(ctx)
		st.update(dt, err)

		if err != nil {
			log.WithError(err).Warn("Polling device time failed")
		} else {
			log.WithField("time", dt).Info("Polled device time")
		}

		select {
		case <-sigChan:
			log.Info("Shutting down..")
			return nil

		case <-ticker.C:
		}
	}
}
