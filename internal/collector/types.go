package collector

import "github.com/cptspacemanspiff/battery-probe/internal/battery"

// Sample is one normalized battery reading taken at Timestamp (unix seconds).
type Sample struct {
	Timestamp int64 `json:"timestamp"`
	battery.Battery
}

// SleepEvent records a sleep/wake cycle.
type SleepEvent struct {
	SleepTime int64  `json:"sleep_time"`
	WakeTime  int64  `json:"wake_time"`
	Type      string `json:"type"` // "suspend" or "shutdown"
}
