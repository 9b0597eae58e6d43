package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/expense-auditor/internal/common"
	"github.com/joseph-ayodele/expense-auditor/internal/entity"
	"github.com/joseph-ayodele/expense-auditor/internal/llm"
)

func TestParseAssessment(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    llm.Assessment
		wantErr bool
	}{
		{
			name: "english keys",
			text: `{"fraudulent": true, "reasons": ["city mismatch"], "confidence": 0.8}`,
			want: llm.Assessment{Fraudulent: true, Reasons: []string{"city mismatch"}, Confidence: 0.8},
		},
		{
			name: "french keys with single reason",
			text: "```json\n{\"fraude\": \"Non\", \"raison\": \"cohérent\", \"confiance\": \"90%\"}\n```",
			want: llm.Assessment{Fraudulent: false, Reasons: []string{"cohérent"}, Confidence: 0.9},
		},
		{
			name: "missing confidence defaults",
			text: `{"fraude": "Oui", "raison": []}`,
			want: llm.Assessment{Fraudulent: true, Confidence: 0.5},
		},
		{name: "undecided", text: `{"fraude": "Inconnu"}`, wantErr: true},
		{name: "no json", text: `I think it is fine.`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := llm.ParseAssessment(tt.text)
			if tt.wantErr {
				require.ErrorIs(t, err, common.ErrAssessment)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAssessor_FailureMatchesAssessmentError(t *testing.T) {
	inf := &fakeInference{respond: func(int32, llm.InferenceRequest) (string, error) {
		return "", errors.New("quota exceeded")
	}}
	a := llm.NewAssessor(inf, llm.AssessorConfig{Threshold: 1000, Currency: "MAD", Policy: fastPolicy()}, nil)

	_, err := a.Assess(context.Background(), entity.ExpenseRecord{}, entity.ReferenceRecord{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrAssessment)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestAssessor_PromptCarriesRecords(t *testing.T) {
	inf := &fakeInference{respond: func(_ int32, req llm.InferenceRequest) (string, error) {
		assert.Nil(t, req.Image)
		assert.Contains(t, req.System, "1000 MAD")
		assert.Contains(t, req.User, "Casablanca")
		assert.Contains(t, req.User, "Mohammedia")
		return `{"fraudulent": false, "reasons": [], "confidence": 0.7}`, nil
	}}
	a := llm.NewAssessor(inf, llm.AssessorConfig{Threshold: 1000, Currency: "MAD", Policy: fastPolicy()}, nil)

	got, err := a.Assess(context.Background(),
		entity.ExpenseRecord{City: "Mohammedia"},
		entity.ReferenceRecord{DestinationCity: "Casablanca"},
		[]string{"Mohammedia"},
	)
	require.NoError(t, err)
	assert.False(t, got.Fraudulent)
	assert.Equal(t, 0.7, got.Confidence)
}
