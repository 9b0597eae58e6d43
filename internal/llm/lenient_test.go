package llm_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/expense-auditor/internal/llm"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    map[string]any
		wantErr bool
	}{
		{
			name: "bare object",
			text: `{"city": "Rabat"}`,
			want: map[string]any{"city": "Rabat"},
		},
		{
			name: "markdown fence and prose",
			text: "Voici le JSON:\n```json\n{\"city\": \"Rabat\", \"total_amount\": 500}\n```\nBonne journée",
			want: map[string]any{"city": "Rabat", "total_amount": json.Number("500")},
		},
		{
			name: "brace in prose before object",
			text: "use {curly} braces: {\"city\": \"Fès\"}",
			want: map[string]any{"city": "Fès"},
		},
		{
			name: "first of two objects",
			text: `{"a": "1"} {"b": "2"}`,
			want: map[string]any{"a": "1"},
		},
		{name: "no object", text: "I cannot read this image.", wantErr: true},
		{name: "truncated object", text: `{"city": "Rab`, wantErr: true},
		{name: "array only", text: `["a", "b"]`, wantErr: true},
		{
			name:    "truncated outer object hides nested object",
			text:    "```json\n{\"merchant_name\": \"Hotel X\", \"total_amount\": {\"value\": 500}, \"city\": \"Rabat\"\n```",
			wantErr: true,
		},
		{
			name: "malformed closed object then valid object",
			text: `{"city": Rabat} {"city": "Rabat"}`,
			want: map[string]any{"city": "Rabat"},
		},
		{
			name: "braces inside strings of a malformed object",
			text: `{"note": "a } b", bad} {"city": "Fès"}`,
			want: map[string]any{"city": "Fès"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := llm.ExtractJSONObject(tt.text)
			if tt.wantErr {
				require.ErrorIs(t, err, llm.ErrNoJSONObject)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
