// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/kasa-go/pkg/codec"
	"github.com/dtn7/kasa-go/pkg/device"
	"github.com/dtn7/kasa-go/pkg/transport"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Logging logConf
	Device  deviceConf
	Socket  socketConf
	Metrics metricsConf
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// deviceConf describes the Device-configuration block.
type deviceConf struct {
	Host     string
	Port     int
	Timeout  string
	Interval string
	Module   string
}

// socketConf describes the Socket-configuration block.
type socketConf struct {
	LocalAddress string `toml:"local-address"`
	ReadBuffer   int    `toml:"read-buffer"`
	WriteBuffer  int    `toml:"write-buffer"`
	InitialKey   *int   `toml:"initial-key"`
}

// metricsConf describes the Metrics-configuration block.
type metricsConf struct {
	Listen string
}

// config is the validated configuration.
type config struct {
	device   device.Config
	module   string
	interval time.Duration
	metrics  string
}

// parseConfig reads and validates a TOML configuration file and configures logging.
func parseConfig(filename string) (conf config, err error) {
	var tc tomlConfig
	if _, err = toml.DecodeFile(filename, &tc); err != nil {
		return
	}

	configureLogging(tc.Logging)

	return buildConfig(tc)
}

// configureLogging sets logrus' level, caller reporting, and format.
func configureLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}

// buildConfig validates a tomlConfig. All problems are reported at once.
func buildConfig(tc tomlConfig) (conf config, errs error) {
	if tc.Device.Host == "" {
		errs = multierror.Append(errs, fmt.Errorf("device.host is empty"))
	}
	if tc.Device.Port < 0 || tc.Device.Port > 65535 {
		errs = multierror.Append(errs, fmt.Errorf("device.port %d is out of range", tc.Device.Port))
	}

	timeout, err := parseDuration(tc.Device.Timeout, device.DefaultTimeout)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("device.timeout: %v", err))
	}

	interval, err := parseDuration(tc.Device.Interval, 10*time.Second)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("device.interval: %v", err))
	} else if interval <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("device.interval must be positive"))
	}

	module := tc.Device.Module
	if module == "" {
		module = "time"
	}

	if tc.Socket.ReadBuffer < 0 || tc.Socket.WriteBuffer < 0 {
		errs = multierror.Append(errs, fmt.Errorf("socket buffer sizes must not be negative"))
	}

	var c codec.Codec = codec.NewAutokey()
	if key := tc.Socket.InitialKey; key != nil {
		if *key < 0 || *key > 255 {
			errs = multierror.Append(errs, fmt.Errorf("socket.initial-key %d is not a byte", *key))
		} else {
			c = codec.NewAutokeyWithKey(byte(*key))
		}
	}

	if errs != nil {
		return
	}

	conf = config{
		device: device.Config{
			Host:    tc.Device.Host,
			Port:    tc.Device.Port,
			Timeout: timeout,
			Socket: transport.Config{
				LocalAddress:    tc.Socket.LocalAddress,
				Codec:           c,
				ReadBufferSize:  tc.Socket.ReadBuffer,
				WriteBufferSize: tc.Socket.WriteBuffer,
			},
		},
		module:   module,
		interval: interval,
		metrics:  tc.Metrics.Listen,
	}
	return
}

// parseDuration parses a duration string, e.g., "2s", or returns the fallback for an empty string.
func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}
