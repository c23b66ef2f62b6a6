package transport

import (
	"fmt"
	"strconv"
	"strings"
)

// Outbound command lines understood by the hardware controller.
const (
	CmdStart    = "start"
	CmdStop     = "stop"
	CmdReset    = "reset"
	CmdStatus   = "status"
	CmdTestPass = "test_pass"
	CmdTestFail = "test_fail"
)

// ScanCommand builds the scan notification line for a channel.
// Format: SCAN{n}:{itemID}:{code}
func ScanCommand(channel int, itemID int64, code string) string {
	return fmt.Sprintf("SCAN%d:%d:%s", channel, itemID, code)
}

// LineKind identifies the type of an inbound hardware line.
type LineKind int

// Inbound line kinds.
const (
	LineUnknown LineKind = iota
	LineScanOK
	LineResult
	LineServo
	LineComplete
	LineScanState
	LineScanTimeout
	LineData
)

// String returns the line kind name for logging.
func (k LineKind) String() string {
	switch k {
	case LineScanOK:
		return "scan_ok"
	case LineResult:
		return "result"
	case LineServo:
		return "servo"
	case LineComplete:
		return "complete"
	case LineScanState:
		return "scan_state"
	case LineScanTimeout:
		return "scan_timeout"
	case LineData:
		return "data"
	default:
		return "unknown"
	}
}

// Line is a parsed inbound hardware line.
//
// Raw always holds the full original line. Channel is set for SCAN{n}_OK
// acknowledgements, Verdict for RESULT lines (PASS, FAIL or UNKNOWN), and
// Arg holds the trailing field (item id, servo angle, state, payload).
type Line struct {
	Kind    LineKind
	Raw     string
	Channel int
	Verdict string
	Arg     string
}

// ParseLine classifies a raw inbound line.
//
// Unrecognised lines come back as LineUnknown with Raw preserved; they
// are logged by the consumer, never treated as fatal.
func ParseLine(raw string) Line {
	line := Line{Kind: LineUnknown, Raw: raw}

	switch {
	case strings.HasPrefix(raw, "SCAN") && strings.Contains(raw, "_OK:"):
		numEnd := strings.Index(raw, "_OK:")
		n, err := strconv.Atoi(raw[4:numEnd])
		if err != nil {
			return line
		}
		line.Kind = LineScanOK
		line.Channel = n
		line.Arg = raw[numEnd+len("_OK:"):]

	case strings.HasPrefix(raw, "RESULT:"):
		rest := raw[len("RESULT:"):]
		verdict, arg, _ := strings.Cut(rest, ":")
		switch verdict {
		case "PASS", "FAIL", "UNKNOWN":
			line.Kind = LineResult
			line.Verdict = verdict
			line.Arg = arg
		}

	case strings.HasPrefix(raw, "SERVO:"):
		line.Kind = LineServo
		line.Arg = raw[len("SERVO:"):]

	case strings.HasPrefix(raw, "COMPLETE:"):
		line.Kind = LineComplete
		line.Arg = raw[len("COMPLETE:"):]

	case strings.HasPrefix(raw, "SCAN_STATE:"):
		line.Kind = LineScanState
		line.Arg = raw[len("SCAN_STATE:"):]

	case strings.HasPrefix(raw, "SCAN_TIMEOUT:"):
		line.Kind = LineScanTimeout
		line.Arg = raw[len("SCAN_TIMEOUT:"):]

	case strings.HasPrefix(raw, "DATA:"):
		line.Kind = LineData
		line.Arg = raw[len("DATA:"):]
	}

	return line
}
