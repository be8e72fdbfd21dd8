package admin

import "time"

// Severity is a display band for a message's receive count. It never drives an action.
type Severity string

// Severity bands.
const (
	SeverityNone     Severity = ""
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Receive count thresholds, exclusive.
const (
	receiveCountInfo     = 1
	receiveCountWarning  = 3
	receiveCountCritical = 5
)

// ReceiveCountSeverity returns the display band of a receive count.
func ReceiveCountSeverity(count int) Severity {
	switch {
	case count > receiveCountCritical:
		return SeverityCritical
	case count > receiveCountWarning:
		return SeverityWarning
	case count > receiveCountInfo:
		return SeverityInfo
	default:
		return SeverityNone
	}
}

// AgeBand is a display band for a message's age.
type AgeBand string

// Age bands.
const (
	AgeFresh    AgeBand = "fresh"
	AgeModerate AgeBand = "moderate"
	AgeOld      AgeBand = "old"
	AgeVeryOld  AgeBand = "very-old"
)

// MessageAgeBand returns the display band of a message age.
func MessageAgeBand(age time.Duration) AgeBand {
	switch {
	case age >= 7*24*time.Hour:
		return AgeVeryOld
	case age >= 24*time.Hour:
		return AgeOld
	case age >= time.Hour:
		return AgeModerate
	default:
		return AgeFresh
	}
}
