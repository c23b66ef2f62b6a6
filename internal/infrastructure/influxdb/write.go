package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteItemResult writes a completed item validation result to InfluxDB.
//
// This is the primary method for recording sorting throughput.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - sessionID: Session the item belongs to
//   - overall: Aggregate validation verdict (PASS, FAIL, UNKNOWN)
//   - fallback: Whether the item completed via the scanner-1 fallback
//   - durationMS: Time from first scan to completion in milliseconds
//
// Example:
//
//	client.WriteItemResult("ses-a1b2c3d4", "PASS", false, 1240)
func (c *Client) WriteItemResult(sessionID string, overall string, fallback bool, durationMS int64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"item_result",
		map[string]string{
			"session_id": sessionID,
			"overall":    overall,
		},
		map[string]interface{}{
			"count":       1,
			"fallback":    fallback,
			"duration_ms": durationMS,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteScanEvent writes an accepted scan observation for a channel.
//
// Used for tracking per-scanner read rates and debounce effectiveness.
//
// Parameters:
//   - channel: Scan channel number (1-3)
//   - accepted: false when the scan was suppressed by the debounce window
func (c *Client) WriteScanEvent(channel int, accepted bool) {
	if !c.IsConnected() {
		return
	}

	tag := "accepted"
	if !accepted {
		tag = "suppressed"
	}

	point := write.NewPoint(
		"scan_event",
		map[string]string{
			"channel":     channelTag(channel),
			"disposition": tag,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSessionSummary writes aggregate figures when a session ends.
//
// Parameters:
//   - sessionID: The ended session
//   - totalItems: Items completed during the session
//   - durationSec: Session length in seconds
func (c *Client) WriteSessionSummary(sessionID string, totalItems int, durationSec float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"session_summary",
		map[string]string{
			"session_id": sessionID,
		},
		map[string]interface{}{
			"total_items":  totalItems,
			"duration_sec": durationSec,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "kiosk-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}

// channelTag formats a channel number as a tag value.
func channelTag(channel int) string {
	switch channel {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	default:
		return "unknown"
	}
}
