package app

import (
	"go.uber.org/zap"

	"github.com/joseph-ayodele/expense-auditor/internal/common"
	"github.com/joseph-ayodele/expense-auditor/internal/document"
	"github.com/joseph-ayodele/expense-auditor/internal/ingest"
	"github.com/joseph-ayodele/expense-auditor/internal/llm"
	"github.com/joseph-ayodele/expense-auditor/internal/llm/openai"
	"github.com/joseph-ayodele/expense-auditor/internal/pipeline"
	"github.com/joseph-ayodele/expense-auditor/internal/validation"
)

// Components are the collaborators of a session pipeline built from one configuration.
type Components struct {
	Inference    llm.Inference
	Extractor    *llm.Extractor
	Decomposer   *document.Decomposer
	Source       *ingest.DirSource
	Validator    validation.Validator
	Orchestrator *pipeline.Orchestrator
}

// CallPolicy returns the inference call policy configured in cfg.
func CallPolicy(cfg common.LLMConfig) llm.CallPolicy {
	return llm.CallPolicy{
		Timeout:     cfg.Timeout,
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.RetryBackoff,
	}
}

// Build wires the pipeline. inf overrides the configured inference client when set.
func Build(cfg *common.Config, inf llm.Inference, logger *zap.Logger) *Components {
	if logger == nil {
		logger = zap.NewNop()
	}
	if inf == nil {
		inf = openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			// the per-attempt deadline comes from the call policy
			Timeout:  cfg.LLM.Timeout + cfg.LLM.Timeout/2,
			JSONMode: true,
		}, logger.Named("openai"))
	}
	policy := CallPolicy(cfg.LLM)

	extractor := llm.NewExtractor(inf, llm.ExtractorConfig{
		Currency: cfg.Validation.Currency,
		Policy:   policy,
	}, logger.Named("extractor"))

	decomposer := document.NewDecomposer(document.Config{
		Pdftoppm:      cfg.Decompose.Pdftoppm,
		HeicConverter: cfg.Decompose.HeicConverter,
		DPI:           cfg.Decompose.DPI,
		MaxPages:      cfg.Decompose.MaxPages,
	}, nil, logger.Named("decomposer"))

	source := ingest.NewDirSource(true, false, logger.Named("source"))
	source.Extensions = decomposer.Extensions()

	rules := validation.Config{
		AmountThreshold: cfg.Validation.AmountThreshold,
		NearbyCities:    cfg.Validation.NearbyCities,
	}
	var validator validation.Validator
	switch cfg.Validation.Mode {
	case "llm":
		assessor := llm.NewAssessor(inf, llm.AssessorConfig{
			Currency:  cfg.Validation.Currency,
			Threshold: cfg.Validation.AmountThreshold,
			Policy:    policy,
		}, logger.Named("assessor"))
		validator = validation.NewAssessedEngine(assessor, rules, cfg.Pipeline.ExtractConcurrency, logger.Named("validation"))
	default:
		validator = validation.NewRuleEngine(rules, logger.Named("validation"))
	}

	orch := pipeline.NewOrchestrator(pipeline.Config{Concurrency: cfg.Pipeline.ExtractConcurrency},
		source, decomposer, extractor, validator, logger.Named("pipeline"))

	return &Components{
		Inference:    inf,
		Extractor:    extractor,
		Decomposer:   decomposer,
		Source:       source,
		Validator:    validator,
		Orchestrator: orch,
	}
}
