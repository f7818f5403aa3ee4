// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"os"
	"os/signal"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/kasa-go/pkg/emulator"
)

// waitSigint blocks the current thread until a SIGINT appears.
func waitSigint() {
	signalSyn := make(chan os.Signal, 1)
	signalAck := make(chan struct{})

	signal.Notify(signalSyn, os.Interrupt)

	go func() {
		<-signalSyn
		close(signalAck)
	}()

	<-signalAck
}

func main() {
	if len(os.Args) != 2 && len(os.Args) != 3 {
		log.Fatalf("Usage: %s listen-address [timezone-index]", os.Args[0])
	}

	log.SetLevel(log.DebugLevel)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})

	timezoneIndex := 0
	if len(os.Args) == 3 {
		index, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.WithError(err).Fatal("Invalid time zone index")
		}
		timezoneIndex = index
	}

	server, err := emulator.NewServer(os.Args[1], nil)
	if err != nil {
		log.WithFields(log.Fields{
			"address": os.Args[1],
			"error":   err,
		}).Fatal("Failed to start emulator")
	}

	emulator.RegisterTime(server, time.Now, timezoneIndex)

	waitSigint()
	log.Info("Shutting down..")

	if err := server.Close(); err != nil {
		log.WithError(err).Warn("Closing emulator errored")
	}
}
