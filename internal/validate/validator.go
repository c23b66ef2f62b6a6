package validate

import (
	"github.com/envsort/envsort-core/internal/scan"
)

// Verdict is the aggregate validation outcome for an item.
type Verdict string

// Validation verdicts.
const (
	VerdictPass Verdict = "PASS"
	VerdictFail Verdict = "FAIL"
)

// Settings selects which channels participate in validation.
// Mutated only through an explicit configuration update, never mid-item.
type Settings struct {
	Scanner1 bool `json:"scanner1"`
	Scanner2 bool `json:"scanner2"`
	Scanner3 bool `json:"scanner3"`
}

// Enabled reports whether a channel participates in validation.
func (s Settings) Enabled(ch scan.Channel) bool {
	switch ch {
	case scan.Channel1:
		return s.Scanner1
	case scan.Channel2:
		return s.Scanner2
	case scan.Channel3:
		return s.Scanner3
	default:
		return false
	}
}

// EnabledChannels returns the enabled channels in fixed order.
func (s Settings) EnabledChannels() []scan.Channel {
	var out []scan.Channel
	for _, ch := range []scan.Channel{scan.Channel1, scan.Channel2, scan.Channel3} {
		if s.Enabled(ch) {
			out = append(out, ch)
		}
	}
	return out
}

// EnabledNumbers returns the enabled channels as protocol numbers.
func (s Settings) EnabledNumbers() []int {
	var out []int
	for _, ch := range s.EnabledChannels() {
		out = append(out, ch.Number())
	}
	return out
}

// Result is the outcome of validating one item.
//
// PerChannel holds nil for channels that were not checked (disabled, or
// enabled but unfilled); those are excluded from the overall decision.
type Result struct {
	PerChannel map[scan.Channel]*bool
	Overall    Verdict
}

// ChannelValid returns the checked outcome for a channel, or false if it
// was not checked.
func (r Result) ChannelValid(ch scan.Channel) bool {
	v := r.PerChannel[ch]
	return v != nil && *v
}

// Validator tests item values against the reference dataset.
type Validator struct {
	ref *Reference
}

// New creates a validator over a loaded reference dataset.
func New(ref *Reference) *Validator {
	return &Validator{ref: ref}
}

// Validate checks each enabled, filled channel independently against the
// reference dataset.
//
// Overall is Pass iff zero channels are enabled (validation disabled),
// or at least one channel was checked and every checked channel matched.
func (v *Validator) Validate(values map[scan.Channel]string, settings Settings) Result {
	result := Result{
		PerChannel: make(map[scan.Channel]*bool, 3),
	}

	checked := 0
	failed := false

	for _, ch := range []scan.Channel{scan.Channel1, scan.Channel2, scan.Channel3} {
		if !settings.Enabled(ch) {
			continue
		}
		value, filled := values[ch]
		if !filled {
			continue
		}

		ok := v.ref.Contains(ch, value)
		result.PerChannel[ch] = &ok
		checked++
		if !ok {
			failed = true
		}
	}

	switch {
	case len(settings.EnabledChannels()) == 0:
		result.Overall = VerdictPass
	case checked > 0 && !failed:
		result.Overall = VerdictPass
	default:
		result.Overall = VerdictFail
	}

	return result
}
