package entity

import "github.com/joseph-ayodele/expense-auditor/constants"

// Verdict is the fraud determination for one expense record.
type Verdict struct {
	SourceID     string                `json:"source_id"`
	IsFraudulent constants.FraudStatus `json:"is_fraudulent"`
	Reasons      []string              `json:"reasons"`
	Confidence   float64               `json:"confidence"`
}

// PageFailure records a page or document that produced no record.
type PageFailure struct {
	SourceID string `json:"source_id"`
	Document string `json:"document"`
	Page     int    `json:"page,omitempty"`
	Reason   string `json:"reason"`
}
