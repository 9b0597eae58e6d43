package validation

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/expense-auditor/constants"
	"github.com/joseph-ayodele/expense-auditor/internal/entity"
	"github.com/joseph-ayodele/expense-auditor/internal/llm"
)

// Assessor is the external qualitative-assessment collaborator.
type Assessor interface {
	Assess(ctx context.Context, expense entity.ExpenseRecord, ref entity.ReferenceRecord, nearby []string) (llm.Assessment, error)
}

// AssessedEngine delegates each judgment to an Assessor. A failed assessment yields an
// indeterminate verdict for that record only.
type AssessedEngine struct {
	assessor    Assessor
	cities      CityMatcher
	concurrency int
	logger      *zap.Logger
}

func NewAssessedEngine(a Assessor, cfg Config, concurrency int, logger *zap.Logger) *AssessedEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &AssessedEngine{assessor: a, cities: NewCityMatcher(cfg.NearbyCities), concurrency: concurrency, logger: logger}
}

func (e *AssessedEngine) Validate(ctx context.Context, expenses []entity.ExpenseRecord, ref entity.ReferenceRecord) ([]entity.Verdict, error) {
	verdicts := make([]entity.Verdict, len(expenses))
	nearby := e.cities.Nearby(ref.DestinationCity)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, exp := range expenses {
		g.Go(func() error {
			verdicts[i] = e.assess(gctx, exp, ref, nearby)
			return nil
		})
	}
	// assess never fails, so only cancellation can end the group early
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return verdicts, nil
}

func (e *AssessedEngine) assess(ctx context.Context, exp entity.ExpenseRecord, ref entity.ReferenceRecord, nearby []string) entity.Verdict {
	out, err := e.assessor.Assess(ctx, exp, ref, nearby)
	if err != nil {
		e.logger.Warn("validation.assess.unavailable", zap.String("source_id", exp.SourceID), zap.Error(err))
		return entity.Verdict{
			SourceID:     exp.SourceID,
			IsFraudulent: constants.FraudIndeterminate,
			Reasons:      []string{ReasonAssessmentFail + err.Error()},
			Confidence:   0,
		}
	}
	status := constants.FraudNo
	reasons := out.Reasons
	if out.Fraudulent {
		status = constants.FraudYes
		if len(reasons) == 0 {
			reasons = []string{"flagged by assessment"}
		}
	}
	if reasons == nil {
		reasons = []string{}
	}
	return entity.Verdict{
		SourceID:     exp.SourceID,
		IsFraudulent: status,
		Reasons:      reasons,
		Confidence:   out.Confidence,
	}
}
