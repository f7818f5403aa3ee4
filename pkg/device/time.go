// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package device

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dtn7/kasa-go/pkg/command"
)

// DeviceTime is the local wall clock of a device, without any time zone information.
type DeviceTime struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Mday  int `json:"mday"`
	Hour  int `json:"hour"`
	Min   int `json:"min"`
	Sec   int `json:"sec"`
}

// Time in the given location, which should be the device's time zone.
func (dt DeviceTime) Time(loc *time.Location) time.Time {
	return time.Date(dt.Year, time.Month(dt.Month), dt.Mday, dt.Hour, dt.Min, dt.Sec, 0, loc)
}

func (dt DeviceTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", dt.Year, dt.Month, dt.Mday, dt.Hour, dt.Min, dt.Sec)
}

// Timezone of a device, identified by the device's internal index.
type Timezone struct {
	Index int `json:"index"`
}

// Time queries a device's clock. Depending on the device type, the module is called "time" or
// "timesetting".
type Time struct {
	device *Device
	module string
}

// NewTime for the given module name.
func NewTime(device *Device, module string) *Time {
	return &Time{device: device, module: module}
}

func (t *Time) call(ctx context.Context, action string, v interface{}) error {
	resp, err := t.device.SendCommand(ctx, command.New(t.module, action, nil))
	if err != nil {
		return err
	}

	result, err := command.Result(resp, t.module, action)
	if err != nil {
		return err
	}

	return json.Unmarshal(result, v)
}

// GetTime requests the device's current time.
func (t *Time) GetTime(ctx context.Context) (dt DeviceTime, err error) {
	err = t.call(ctx, "get_time", &dt)
	return
}

// GetTimezone requests the device's time zone.
func (t *Time) GetTimezone(ctx context.Context) (tz Timezone, err error) {
	err = t.call(ctx, "get_timezone", &tz)
	return
}
