package domain

import "time"

// Status is the compact state view exposed to the API layer. Running reflects
// user intent merged with transport connectivity, not the engine's last word;
// see HealthReport for the diagnostic view.
type Status struct {
	Running    bool   `json:"running"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
	Bypass     bool   `json:"bypass"`
	Backend    string `json:"backend"`
}

type DeviceStatus struct {
	Name   string `json:"name"`
	Detail string `json:"detail"`
}

// HealthReport is a diagnostics snapshot assembled from already-held state.
// Producing one never performs I/O.
type HealthReport struct {
	Running        bool           `json:"running"`
	UptimeSeconds  float64        `json:"uptime_seconds"`
	ReconnectCount int            `json:"reconnect_count"`
	Bypass         bool           `json:"bypass"`
	DeviceStatuses []DeviceStatus `json:"device_statuses"`
	LastError      string         `json:"last_error,omitempty"`
	LastCheck      time.Time      `json:"last_check"`
}
