package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/envsort/envsort-core/internal/transport"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	WebSocket     WSMetrics         `json:"websocket"`
	MQTT          MQTTMetrics       `json:"mqtt"`
	Hardware      *HardwareMetrics  `json:"hardware,omitempty"`
	Controller    ControllerMetrics `json:"controller"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// HardwareMetrics contains serial-bridge link statistics.
type HardwareMetrics struct {
	Connected       bool   `json:"connected"`
	Reconnecting    bool   `json:"reconnecting"`
	CommandsTx      uint64 `json:"commands_tx"`
	LinesRx         uint64 `json:"lines_rx"`
	LinesDropped    uint64 `json:"lines_dropped"`
	ErrorsTotal     uint64 `json:"errors_total"`
	ReconnectsTotal uint64 `json:"reconnects_total"`
	LastActivity    string `json:"last_activity,omitempty"`
}

// ControllerMetrics contains session controller statistics.
type ControllerMetrics struct {
	Running        bool   `json:"running"`
	ItemsCompleted int    `json:"items_completed"`
	EventsDropped  uint64 `json:"events_dropped"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	// Collect runtime stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	status := s.ctrl.Status()

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Controller: ControllerMetrics{
			Running:        status.Running,
			ItemsCompleted: status.ItemsCompleted,
			EventsDropped:  status.EventsDropped,
		},
	}

	// MQTT metrics (if available)
	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{
			Connected: s.mqtt.IsConnected(),
		}
	}

	// Hardware link metrics (if available)
	if s.hardware != nil {
		metrics.Hardware = hardwareMetrics(s.hardware.Stats())
	}

	writeJSON(w, http.StatusOK, metrics)
}

func hardwareMetrics(st transport.Stats) *HardwareMetrics {
	m := &HardwareMetrics{
		Connected:       st.Connected,
		Reconnecting:    st.Reconnecting,
		CommandsTx:      st.CommandsTx,
		LinesRx:         st.LinesRx,
		LinesDropped:    st.LinesDropped,
		ErrorsTotal:     st.ErrorsTotal,
		ReconnectsTotal: st.ReconnectsTotal,
	}
	if !st.LastActivity.IsZero() {
		m.LastActivity = st.LastActivity.UTC().Format(time.RFC3339)
	}
	return m
}
