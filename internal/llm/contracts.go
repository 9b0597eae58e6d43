package llm

import (
	"context"
	"time"
)

// SchemaKind selects which field set an extraction targets.
type SchemaKind string

const (
	SchemaExpense   SchemaKind = "expense"
	SchemaReference SchemaKind = "reference"
)

// Image is one page handed to the inference collaborator.
type Image struct {
	Name     string // provenance hint, never sent upstream
	MIMEType string // image/png or image/jpeg
	Data     []byte
}

// Fields is a normalized field mapping: every declared key present, missing values set to "unknown".
type Fields map[string]string

// InferenceRequest is one structured-inference call. Image is nil for text-only calls.
type InferenceRequest struct {
	System string
	User   string
	Image  *Image
	Schema map[string]any
}

// InferenceResponse carries the raw free text returned by the model.
type InferenceResponse struct {
	Text    string
	Model   string
	Elapsed time.Duration
}

// Inference is the external structured-inference capability.
type Inference interface {
	Complete(ctx context.Context, req InferenceRequest) (InferenceResponse, error)
}

// FieldExtractor converts one page image into a field mapping.
type FieldExtractor interface {
	Extract(ctx context.Context, img Image, kind SchemaKind) (Fields, error)
}

// Assessment is a qualitative fraud judgment returned by the model.
type Assessment struct {
	Fraudulent bool
	Reasons    []string
	Confidence float64
}

// InferenceFunc adapts a function to Inference.
type InferenceFunc func(ctx context.Context, req InferenceRequest) (InferenceResponse, error)

func (f InferenceFunc) Complete(ctx context.Context, req InferenceRequest) (InferenceResponse, error) {
	return f(ctx, req)
}
