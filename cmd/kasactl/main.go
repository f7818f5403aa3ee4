// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/kasa-go/pkg/command"
	"github.com/dtn7/kasa-go/pkg/device"
)

// printUsage of kasactl and exit with an error code afterwards.
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage of %s configuration.toml get-time|get-timezone|send|watch:\n\n", os.Args[0])

	_, _ = fmt.Fprintf(os.Stderr, "%s configuration.toml get-time\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Prints the device's current time.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s configuration.toml get-timezone\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Prints the device's time zone index.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s configuration.toml send JSON\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Sends a raw command, e.g., '{\"time\":{\"get_time\":{}}}', and prints the response.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s configuration.toml watch\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Polls the device's time periodically. If metrics.listen is configured,\n")
	_, _ = fmt.Fprintf(os.Stderr, "  /metrics and /status are served there.\n\n")

	os.Exit(1)
}

// printJSON writes v indented to stdout.
func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.WithError(err).Fatal("Encoding output errored")
	}
}

func sendRaw(ctx context.Context, d *device.Device, args []string) error {
	if len(args) != 1 {
		printUsage()
	}

	cmd, err := command.Parse([]byte(args[0]))
	if err != nil {
		return fmt.Errorf("parsing command: %v", err)
	}

	resp, err := d.SendCommand(ctx, cmd)
	if resp != nil {
		printJSON(resp)
	}
	return err
}

func main() {
	if len(os.Args) < 3 {
		printUsage()
	}

	conf, err := parseConfig(os.Args[1])
	if err != nil {
		log.WithError(err).Fatal("Failed to parse config")
	}

	d, err := device.New(conf.device)
	if err != nil {
		log.WithError(err).Fatal("Failed to create device")
	}
	defer func() { _ = d.Close() }()

	ctx := context.Background()
	timeModule := device.NewTime(d, conf.module)

	switch os.Args[2] {
	case "get-time":
		var dt device.DeviceTime
		if dt, err = timeModule.GetTime(ctx); err == nil {
			fmt.Println(dt)
		}

	case "get-timezone":
		var tz device.Timezone
		if tz, err = timeModule.GetTimezone(ctx); err == nil {
			fmt.Println(tz.Index)
		}

	case "send":
		err = sendRaw(ctx, d, os.Args[3:])

	case "watch":
		err = watch(conf, timeModule)

	default:
		printUsage()
	}

	if err != nil {
		log.WithFields(log.Fields{
			"device": d.Endpoint(),
			"error":  err,
		}).Error("Command failed")

		_ = d.Close()
		os.Exit(1)
	}
}
