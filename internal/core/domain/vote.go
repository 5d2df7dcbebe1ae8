package domain

import "time"

// Vote is one terminal's choice for a numbered step. Votes are scoped
// to a step; the full set for a step is cleared when that step is
// (re)announced. Devices are not deduplicated: a device may vote more
// than once for the same step and each vote counts.
type Vote struct {
	Step      int       `json:"step"`
	DeviceID  string    `json:"device_id"`
	Choice    string    `json:"choice"`
	Timestamp time.Time `json:"ts"`
}
