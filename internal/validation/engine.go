package validation

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/expense-auditor/constants"
	"github.com/joseph-ayodele/expense-auditor/internal/entity"
)

// Reason strings reported on verdicts.
const (
	ReasonMissingField   = "missing field: "
	ReasonDateInvalid    = "date missing/invalid"
	ReasonDateOutside    = "date outside mission period"
	ReasonCityMismatch   = "city does not match destination"
	ReasonAmountInvalid  = "amount missing/invalid"
	ReasonAmountExceeded = "amount exceeds plausibility threshold"
	ReasonAssessmentFail = "assessment unavailable: "
)

// DefaultAmountThreshold is the plausibility ceiling in the base currency.
const DefaultAmountThreshold = 1000

// confidenceByRules maps the number of rules that fired to a confidence score.
var confidenceByRules = [...]float64{0.6, 0.7, 0.85, 0.95, 0.99}

// Validator turns expense records into verdicts against the canonical reference.
// Implementations return exactly one verdict per record, in input order.
type Validator interface {
	Validate(ctx context.Context, expenses []entity.ExpenseRecord, ref entity.ReferenceRecord) ([]entity.Verdict, error)
}

// Config holds the rule thresholds.
type Config struct {
	AmountThreshold float64
	NearbyCities    map[string][]string
}

// RuleEngine is the deterministic, side-effect free validator.
type RuleEngine struct {
	threshold decimal.Decimal
	cities    CityMatcher
	logger    *zap.Logger
}

func NewRuleEngine(cfg Config, logger *zap.Logger) *RuleEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AmountThreshold <= 0 {
		cfg.AmountThreshold = DefaultAmountThreshold
	}
	return &RuleEngine{
		threshold: decimal.NewFromFloat(cfg.AmountThreshold),
		cities:    NewCityMatcher(cfg.NearbyCities),
		logger:    logger,
	}
}

func (e *RuleEngine) Validate(_ context.Context, expenses []entity.ExpenseRecord, ref entity.ReferenceRecord) ([]entity.Verdict, error) {
	window := MissionWindow(ref)
	if window.Inverted {
		e.logger.Warn("validation.window.inverted",
			zap.String("start_date", ref.StartDate),
			zap.String("end_date", ref.EndDate),
		)
	}
	verdicts := make([]entity.Verdict, len(expenses))
	for i, exp := range expenses {
		verdicts[i] = e.evaluate(exp, ref, window)
	}
	return verdicts, nil
}

// Evaluate validates a single record.
func (e *RuleEngine) Evaluate(exp entity.ExpenseRecord, ref entity.ReferenceRecord) entity.Verdict {
	return e.evaluate(exp, ref, MissionWindow(ref))
}

func (e *RuleEngine) evaluate(exp entity.ExpenseRecord, ref entity.ReferenceRecord, window Window) entity.Verdict {
	reasons := []string{}
	fired := 0

	// completeness
	missing := false
	for _, f := range []struct{ name, value string }{
		{constants.FieldMerchantName, exp.MerchantName},
		{constants.FieldTransactionDate, exp.TransactionDate},
		{constants.FieldTotalAmount, exp.TotalAmount},
		{constants.FieldCity, exp.City},
	} {
		if entity.IsUnknown(f.value) {
			reasons = append(reasons, ReasonMissingField+f.name)
			missing = true
		}
	}
	if missing {
		fired++
	}

	// temporal window
	if d, ok := ParseDate(exp.TransactionDate); !ok {
		reasons = append(reasons, ReasonDateInvalid)
		fired++
	} else if !window.Contains(d) {
		reasons = append(reasons, ReasonDateOutside)
		fired++
	}

	// locality
	if !entity.IsUnknown(exp.City) && !entity.IsUnknown(ref.DestinationCity) &&
		!e.cities.Match(exp.City, ref.DestinationCity) {
		reasons = append(reasons, ReasonCityMismatch)
		fired++
	}

	// amount plausibility
	amount, ok := ParseAmount(exp.TotalAmount)
	switch {
	case !ok:
		reasons = append(reasons, ReasonAmountInvalid)
		fired++
	case amount.GreaterThan(e.threshold):
		reasons = append(reasons, ReasonAmountExceeded)
		fired++
	}

	status := constants.FraudNo
	if len(reasons) > 0 {
		status = constants.FraudYes
	}
	if fired >= len(confidenceByRules) {
		fired = len(confidenceByRules) - 1
	}
	return entity.Verdict{
		SourceID:     exp.SourceID,
		IsFraudulent: status,
		Reasons:      reasons,
		Confidence:   confidenceByRules[fired],
	}
}
