package constants

// ExecutionStatus is the canonical status stored on execution records.
type ExecutionStatus string

// Stable values (store these exact strings).
const (
	ExecutionRunning   ExecutionStatus = "running"   // session accepted, pipeline in progress
	ExecutionCompleted ExecutionStatus = "completed" // verdicts available
	ExecutionErrored   ExecutionStatus = "errored"   // terminal failure, see error
)

func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionErrored
}

// FraudStatus is the tri-state outcome carried by a verdict.
type FraudStatus string

const (
	FraudYes           FraudStatus = "yes"
	FraudNo            FraudStatus = "no"
	FraudIndeterminate FraudStatus = "indeterminate"
)
