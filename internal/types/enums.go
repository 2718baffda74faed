package types

// Severity of a check template.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// RunStatus lifecycle: PENDING -> COMPLETED, or PENDING -> EXPIRED.
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusExpired   RunStatus = "EXPIRED"
)

// RunTrigger records what created a run.
type RunTrigger string

const (
	RunTriggerScheduled RunTrigger = "SCHEDULED"
	RunTriggerManual    RunTrigger = "MANUAL"
)

// ResponseStatus is the outcome of one check.
type ResponseStatus string

const (
	ResponsePass ResponseStatus = "PASS"
	ResponseFail ResponseStatus = "FAIL"
)

func (s ResponseStatus) Valid() bool {
	return s == ResponsePass || s == ResponseFail
}
