package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/expense-auditor/internal/common"
)

// ExtractionError is a per-page failure. It matches common.ErrExtraction.
type ExtractionError struct {
	Stage string // inference, parse or schema
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed at %s: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() []error {
	return []error{common.ErrExtraction, e.Err}
}

// ExtractorConfig tunes the field extractor.
type ExtractorConfig struct {
	Currency string
	Policy   CallPolicy
}

// Extractor implements FieldExtractor on top of an Inference collaborator.
type Extractor struct {
	inf    Inference
	cfg    ExtractorConfig
	logger *zap.Logger
}

func NewExtractor(inf Inference, cfg ExtractorConfig, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = DefaultCallPolicy()
	}
	return &Extractor{inf: inf, cfg: cfg, logger: logger}
}

// Extract runs one page through the inference collaborator and normalizes the answer.
// Every failure is returned as *ExtractionError.
func (e *Extractor) Extract(ctx context.Context, img Image, kind SchemaKind) (Fields, error) {
	rid := uuid.NewString()
	start := time.Now()
	logger := common.LoggerFromContext(ctx, e.logger).With(
		zap.String("req_id", rid),
		zap.String("page", img.Name),
		zap.String("schema", string(kind)),
	)
	logger.Info("llm.extract.start", zap.Int("image_bytes", len(img.Data)))

	req := InferenceRequest{
		System: BuildExtractionSystemPrompt(kind, e.cfg.Currency),
		User:   BuildExtractionUserPrompt(img),
		Image:  &img,
		Schema: BuildFieldSchema(kind),
	}

	var resp InferenceResponse
	err := e.cfg.Policy.Do(ctx, logger, "extract", func(ctx context.Context) error {
		var callErr error
		resp, callErr = e.inf.Complete(ctx, req)
		return callErr
	})
	if err != nil {
		logger.Warn("llm.extract.inference_error",
			zap.Error(err),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		)
		return nil, &ExtractionError{Stage: "inference", Err: err}
	}

	fields, dropped, err := ParseFields(kind, resp.Text)
	if err != nil {
		logger.Warn("llm.extract.parse_error",
			zap.Error(err),
			zap.Int("text_len", len(resp.Text)),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		)
		return nil, err
	}
	if len(dropped) > 0 {
		logger.Debug("llm.extract.dropped_keys", zap.Strings("keys", dropped))
	}

	logger.Info("llm.extract.ok",
		zap.String("model", resp.Model),
		zap.Int("unknown_fields", countUnknown(fields)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return fields, nil
}

// ParseFields turns raw model text into a normalized mapping, or an *ExtractionError.
// It returns the response keys that were not recognized.
func ParseFields(kind SchemaKind, text string) (Fields, []string, error) {
	obj, err := ExtractJSONObject(text)
	if err != nil {
		return nil, nil, &ExtractionError{Stage: "parse", Err: err}
	}
	fields, dropped := NormalizeFields(kind, obj)
	if err := ValidateFields(kind, fields); err != nil {
		return nil, dropped, &ExtractionError{Stage: "schema", Err: err}
	}
	return fields, dropped, nil
}

func countUnknown(f Fields) int {
	n := 0
	for _, v := range f {
		if IsSentinel(v) {
			n++
		}
	}
	return n
}
