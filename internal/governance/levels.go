// Package governance implements the ordered compliance state machine that
// gates every authentication decision, the versioned threshold snapshots its
// predicates read, and the background monitor that adjusts those thresholds
// from the risk feed.
package governance

import "fmt"

// Level is one of the eight ordered compliance gates. Evaluation is strictly
// monotonic: level k+1 is reached only after level k passed.
type Level uint8

const (
	Rift0 Level = iota // artifact/key presence (fail-closed separation)
	Rift1              // canonical-form and decoherence integrity
	Rift2              // entropy deviation within band
	Rift3              // threat level acceptable
	Rift4              // audit chain health
	Rift5              // session context (device known, not quarantined)
	Rift6              // composite governance score band
	Rift7              // oversight gate (quorum under maximum oversight)
)

// NumLevels is the size of the transition table.
const NumLevels = 8

func (l Level) String() string {
	if l >= NumLevels {
		return fmt.Sprintf("RIFT_?(%d)", uint8(l))
	}
	return fmt.Sprintf("RIFT_%d", uint8(l))
}

// ComplianceFailure reports the first failing gate. Evaluation aborts there;
// later levels are never invoked, and the failure is never auto-retried.
type ComplianceFailure struct {
	Level  Level
	Reason string
}

func (f *ComplianceFailure) Error() string {
	return fmt.Sprintf("compliance failure at %s: %s", f.Level, f.Reason)
}
