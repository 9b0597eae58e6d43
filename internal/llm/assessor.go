package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/expense-auditor/internal/common"
	"github.com/joseph-ayodele/expense-auditor/internal/entity"
)

// AssessorConfig tunes the qualitative assessor.
type AssessorConfig struct {
	Currency  string
	Threshold float64
	Policy    CallPolicy
}

// Assessor asks the inference collaborator for a per-record fraud judgment.
type Assessor struct {
	inf    Inference
	cfg    AssessorConfig
	logger *zap.Logger
}

func NewAssessor(inf Inference, cfg AssessorConfig, logger *zap.Logger) *Assessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = DefaultCallPolicy()
	}
	return &Assessor{inf: inf, cfg: cfg, logger: logger}
}

// Assess judges one expense against the reference. Errors match common.ErrAssessment.
func (a *Assessor) Assess(ctx context.Context, expense entity.ExpenseRecord, ref entity.ReferenceRecord, nearby []string) (Assessment, error) {
	start := time.Now()
	logger := common.LoggerFromContext(ctx, a.logger).With(zap.String("source_id", expense.SourceID))

	system, user := BuildAssessmentPrompt(expense, ref, a.cfg.Threshold, a.cfg.Currency, nearby)
	var resp InferenceResponse
	err := a.cfg.Policy.Do(ctx, logger, "assess", func(ctx context.Context) error {
		var callErr error
		resp, callErr = a.inf.Complete(ctx, InferenceRequest{System: system, User: user})
		return callErr
	})
	if err != nil {
		logger.Warn("llm.assess.inference_error", zap.Error(err), zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return Assessment{}, fmt.Errorf("%w: %w", common.ErrAssessment, err)
	}

	out, err := ParseAssessment(resp.Text)
	if err != nil {
		logger.Warn("llm.assess.parse_error", zap.Error(err))
		return Assessment{}, err
	}
	logger.Info("llm.assess.ok",
		zap.Bool("fraudulent", out.Fraudulent),
		zap.Float64("confidence", out.Confidence),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return out, nil
}

var errNoVerdict = errors.New("response carries no fraud decision")

// ParseAssessment reads {fraudulent, reasons, confidence} (or fraude/raison/confiance) from free text.
func ParseAssessment(text string) (Assessment, error) {
	obj, err := ExtractJSONObject(text)
	if err != nil {
		return Assessment{}, fmt.Errorf("%w: %w", common.ErrAssessment, err)
	}
	m := make(map[string]any, len(obj))
	for k, v := range obj {
		m[foldKey(k)] = v
	}

	decision, ok := parseDecision(first(m, "fraudulent", "is_fraudulent", "fraud", "fraude"))
	if !ok {
		return Assessment{}, fmt.Errorf("%w: %w", common.ErrAssessment, errNoVerdict)
	}
	return Assessment{
		Fraudulent: decision,
		Reasons:    parseReasons(first(m, "reasons", "reason", "raisons", "raison")),
		Confidence: parseConfidence(first(m, "confidence", "confiance")),
	}, nil
}

func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func parseDecision(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "yes", "oui", "true":
			return true, true
		case "no", "non", "false":
			return false, true
		}
	}
	return false, false
}

func parseReasons(v any) []string {
	var out []string
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}

// parseConfidence accepts 0..1, a percentage, or a numeric string. Missing means 0.5.
func parseConfidence(v any) float64 {
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0.5
		}
		f = parsed
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(t), "%")
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
		if err != nil {
			return 0.5
		}
		f = parsed
	default:
		return 0.5
	}
	if f > 1 && f <= 100 {
		f /= 100
	}
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
