package llm

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/expense-auditor/internal/entity"
)

var fieldGuidance = map[string]string{
	"merchant_name":    "name of the establishment (restaurant, hotel, shop, etc.)",
	"transaction_date": "date of the invoice, format YYYY-MM-DD",
	"total_amount":     "total amount as a number only, converted to the base currency if it is not already",
	"address":          "full address as printed",
	"city":             "city where the expense was made",
	"traveler_name":    "full name of the person on mission",
	"destination_city": "destination city of the mission",
	"start_date":       "first day of the mission, format YYYY-MM-DD",
	"end_date":         "last day of the mission, format YYYY-MM-DD",
	"purpose":          "reason or description of the mission",
}

var examples = map[SchemaKind]string{
	SchemaExpense:   `{"merchant_name": "Hotel Atlas", "transaction_date": "2025-04-14", "total_amount": "720.50", "address": "Av. Hassan II, Marrakech", "city": "Marrakech"}`,
	SchemaReference: `{"traveler_name": "Said El Khatib", "destination_city": "Rabat", "start_date": "2025-04-12", "end_date": "2025-04-14", "purpose": "Sector conference"}`,
}

// BuildExtractionSystemPrompt composes the system message for a page extraction of kind.
func BuildExtractionSystemPrompt(kind SchemaKind, currency string) string {
	subject := "an invoice or receipt"
	if kind == SchemaReference {
		subject = "a travel authorization (mission order)"
	}
	if strings.TrimSpace(currency) == "" {
		currency = "MAD"
	}

	var fields strings.Builder
	for _, f := range DeclaredFields(kind) {
		fields.WriteString("- \"")
		fields.WriteString(f)
		fields.WriteString("\": ")
		fields.WriteString(fieldGuidance[f])
		fields.WriteString("\n")
	}

	parts := []string{
		"You extract structured information from the image of " + subject + ".",
		"Return ONLY one valid JSON object with exactly these keys:\n" + fields.String(),
		"Amounts are expressed in " + currency + ".",
		"Use ISO-8601 dates (YYYY-MM-DD).",
		"If a value is not visible or not readable, use the string \"unknown\". Never output null.",
		"Do not add explanations, prefixes or markdown fences.",
		"Example:\n" + examples[kind],
		"JSON Schema:\n" + mustJSON(BuildFieldSchema(kind)),
	}
	return strings.Join(parts, "\n")
}

// BuildExtractionUserPrompt packages the page hint that accompanies the image.
func BuildExtractionUserPrompt(img Image) string {
	var b strings.Builder
	if name := strings.TrimSpace(img.Name); name != "" {
		b.WriteString("Page: ")
		b.WriteString(name)
		b.WriteString("\n")
	}
	b.WriteString("The page image is attached. Return only the JSON object.")
	return b.String()
}

// BuildAssessmentPrompt asks for a qualitative audit of one expense against the mission order.
func BuildAssessmentPrompt(expense entity.ExpenseRecord, ref entity.ReferenceRecord, threshold float64, currency string, nearby []string) (system, user string) {
	system = strings.Join([]string{
		"You are an expense auditor. You receive one invoice and the reference mission order.",
		"Analyse the following points:",
		"1. If any of date, city, amount or merchant name is missing, the invoice is fraudulent.",
		"2. Is the date inside the mission period, with a tolerance of one day before and after?",
		"3. Is the city the destination or a nearby city?",
		"4. Is the amount reasonable for the kind of merchant? Amounts above " +
			strconv.FormatFloat(threshold, 'f', -1, 64) + " " + currency + " are suspicious.",
		"5. Is the kind of merchant consistent with a business trip?",
		"6. Could this invoice be a personal expense?",
		`Answer ONLY with a JSON object: {"fraudulent": true|false, "reasons": ["clear explanation", ...], "confidence": 0.0-1.0}`,
	}, "\n")

	var b strings.Builder
	b.WriteString("Invoice:\n")
	b.WriteString("- city: " + expense.City + "\n")
	b.WriteString("- date: " + expense.TransactionDate + "\n")
	b.WriteString("- amount: " + expense.TotalAmount + "\n")
	b.WriteString("- merchant name: " + expense.MerchantName + "\n")
	b.WriteString("- address: " + expense.Address + "\n")
	b.WriteString("\nMission order:\n")
	b.WriteString("- destination: " + ref.DestinationCity + "\n")
	if len(nearby) > 0 {
		b.WriteString("- accepted nearby cities: " + strings.Join(nearby, ", ") + "\n")
	}
	b.WriteString("- start date: " + ref.StartDate + "\n")
	b.WriteString("- end date: " + ref.EndDate + "\n")
	return system, b.String()
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
