// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package emulator

import (
	"encoding/json"
	"time"
)

// RegisterTime registers a "time" module with "get_time" and "get_timezone". The clock's location
// is ignored, the device reports its wall clock.
func RegisterTime(s *Server, clock func() time.Time, timezoneIndex int) {
	s.Handle("time", "get_time", func(_ json.RawMessage) (map[string]interface{}, error) {
		now := clock()
		return map[string]interface{}{
			"year":  now.Year(),
			"month": int(now.Month()),
			"mday":  now.Day(),
			"hour":  now.Hour(),
			"min":   now.Minute(),
			"sec":   now.Second(),
		}, nil
	})

	s.Handle("time", "get_timezone", func(_ json.RawMessage) (map[string]interface{}, error) {
		return map[string]interface{}{"index": timezoneIndex}, nil
	})
}
