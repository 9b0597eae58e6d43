package llm_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/expense-auditor/internal/llm"
)

func TestNormalizeFields_Expense(t *testing.T) {
	raw := map[string]any{
		"merchant_name":    "Hotel X",
		"transaction_date": "13/04/2025",
		"total_amount":     json.Number("500"),
		"city":             "Rabat",
		"tip":              "20",
	}
	got, dropped := llm.NormalizeFields(llm.SchemaExpense, raw)

	assert.Equal(t, llm.Fields{
		"merchant_name":    "Hotel X",
		"transaction_date": "2025-04-13",
		"total_amount":     "500",
		"address":          "unknown",
		"city":             "Rabat",
	}, got)
	assert.Equal(t, []string{"tip"}, dropped)
}

func TestNormalizeFields_FrenchKeysAndSentinels(t *testing.T) {
	raw := map[string]any{
		"Nom du commerce":    "Café Atlas",
		"Date de la facture": "inconnu",
		"Montant total":      720.5,
		"Adresse complète":   nil,
		"Ville":              "Marrakech",
	}
	got, dropped := llm.NormalizeFields(llm.SchemaExpense, raw)

	assert.Empty(t, dropped)
	assert.Equal(t, "Café Atlas", got["merchant_name"])
	assert.Equal(t, "unknown", got["transaction_date"])
	assert.Equal(t, "720.5", got["total_amount"])
	assert.Equal(t, "unknown", got["address"])
	assert.Equal(t, "Marrakech", got["city"])
}

func TestNormalizeFields_Reference(t *testing.T) {
	raw := map[string]any{
		"Nom de l'employé":    "Said El Khatib",
		"Date de début":       "2025-04-12",
		"Date de fin":         "2025-04-14",
		"Destination":         "Rabat",
		"Objet de la mission": "N/A",
	}
	got, _ := llm.NormalizeFields(llm.SchemaReference, raw)

	assert.Equal(t, llm.Fields{
		"traveler_name":    "Said El Khatib",
		"destination_city": "Rabat",
		"start_date":       "2025-04-12",
		"end_date":         "2025-04-14",
		"purpose":          "unknown",
	}, got)
}

func TestNormalizeFields_CanonicalKeyWins(t *testing.T) {
	raw := map[string]any{"city": "Rabat", "ville": "Salé"}
	got, _ := llm.NormalizeFields(llm.SchemaExpense, raw)
	assert.Equal(t, "Rabat", got["city"])
}

func TestNormalizeFields_EmptyResponse(t *testing.T) {
	got, _ := llm.NormalizeFields(llm.SchemaExpense, map[string]any{})
	for _, f := range llm.DeclaredFields(llm.SchemaExpense) {
		assert.Equal(t, "unknown", got[f], f)
	}
}

func TestNormalizeDate(t *testing.T) {
	assert.Equal(t, "2025-04-13", llm.NormalizeDate("2025-04-13"))
	assert.Equal(t, "2025-04-13", llm.NormalizeDate("13.04.2025"))
	assert.Equal(t, "2025-04-13", llm.NormalizeDate(" 2025/04/13 "))
	assert.Equal(t, "13 avril 2025", llm.NormalizeDate("13 avril 2025"))
}

func TestIsSentinel(t *testing.T) {
	for _, s := range []string{"", "unknown", "Inconnu", " non disponible ", "N/A", "null"} {
		assert.True(t, llm.IsSentinel(s), s)
	}
	assert.False(t, llm.IsSentinel("Rabat"))
}
