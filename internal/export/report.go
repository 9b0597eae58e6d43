package export

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/expense-auditor/constants"
	"github.com/joseph-ayodele/expense-auditor/internal/common"
	"github.com/joseph-ayodele/expense-auditor/internal/entity"
	"github.com/joseph-ayodele/expense-auditor/internal/validation"
)

// Row is one verdict joined with the expense record it judges.
type Row struct {
	SourceID   string
	Merchant   string
	Date       string
	Amount     string
	City       string
	Status     constants.FraudStatus
	Reasons    []string
	Confidence float64
}

// Report is the renderable view of a completed execution.
type Report struct {
	ExecutionID string
	AgentID     string
	GeneratedAt time.Time
	Currency    string
	Reference   *entity.ReferenceRecord
	Rows        []Row
	Failures    []entity.PageFailure
	// Total sums the parseable amounts of expenses judged not fraudulent.
	Total decimal.Decimal
	// Unpriced counts non-fraudulent rows whose amount could not be parsed.
	Unpriced int
}

// Build assembles the report of a completed execution.
func Build(exec *entity.Execution, currency string, now time.Time) (*Report, error) {
	if exec.Status != constants.ExecutionCompleted || exec.Result == nil {
		return nil, common.NewAppError("NOT_COMPLETED", "execution "+exec.ID.String()+" has no result to report", common.ErrInvalidInput)
	}
	expenses := make(map[string]entity.ExpenseRecord, len(exec.Result.Expenses))
	for _, e := range exec.Result.Expenses {
		expenses[e.SourceID] = e
	}

	r := &Report{
		ExecutionID: exec.ID.String(),
		AgentID:     exec.AgentID,
		GeneratedAt: now.UTC(),
		Currency:    currency,
		Reference:   exec.Result.Reference,
		Failures:    exec.Result.Failures,
		Total:       decimal.Zero,
	}
	for _, v := range exec.Result.Verdicts {
		e, ok := expenses[v.SourceID]
		if !ok {
			e = entity.ExpenseRecord{}
		}
		r.Rows = append(r.Rows, Row{
			SourceID:   v.SourceID,
			Merchant:   orUnknown(e.MerchantName),
			Date:       orUnknown(e.TransactionDate),
			Amount:     orUnknown(e.TotalAmount),
			City:       orUnknown(e.City),
			Status:     v.IsFraudulent,
			Reasons:    v.Reasons,
			Confidence: v.Confidence,
		})
		if v.IsFraudulent != constants.FraudNo {
			continue
		}
		if amount, ok := validation.ParseAmount(e.TotalAmount); ok {
			r.Total = r.Total.Add(amount)
		} else {
			r.Unpriced++
		}
	}
	return r, nil
}

func orUnknown(s string) string {
	if entity.IsUnknown(s) {
		return constants.Unknown
	}
	return s
}

func statusLabel(s constants.FraudStatus) string {
	switch s {
	case constants.FraudNo:
		return "valid"
	case constants.FraudYes:
		return "fraudulent"
	default:
		return "indeterminate"
	}
}
