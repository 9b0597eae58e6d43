package entity

import (
	"fmt"

	"github.com/joseph-ayodele/expense-auditor/constants"
)

// Provenance locates the page a record was extracted from. Page is 1-based.
type Provenance struct {
	SourceID string `json:"source_id"`
	Document string `json:"document"`
	Page     int    `json:"page"`
}

// SourceID formats the provenance identifier of a document page.
func SourceID(document string, page int) string {
	return fmt.Sprintf("%s (page %d)", document, page)
}

// ExpenseRecord is one detected expense. Every field except SourceID may hold constants.Unknown.
type ExpenseRecord struct {
	Provenance
	MerchantName    string `json:"merchant_name"`
	TransactionDate string `json:"transaction_date"`
	TotalAmount     string `json:"total_amount"`
	Address         string `json:"address"`
	City            string `json:"city"`
}

// ReferenceRecord carries the travel-authorization fields.
type ReferenceRecord struct {
	Provenance
	TravelerName    string `json:"traveler_name"`
	DestinationCity string `json:"destination_city"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	Purpose         string `json:"purpose"`
}

// NewExpenseRecord builds a record from a normalized field mapping.
func NewExpenseRecord(p Provenance, fields map[string]string) ExpenseRecord {
	return ExpenseRecord{
		Provenance:      p,
		MerchantName:    fieldOrUnknown(fields, constants.FieldMerchantName),
		TransactionDate: fieldOrUnknown(fields, constants.FieldTransactionDate),
		TotalAmount:     fieldOrUnknown(fields, constants.FieldTotalAmount),
		Address:         fieldOrUnknown(fields, constants.FieldAddress),
		City:            fieldOrUnknown(fields, constants.FieldCity),
	}
}

// NewReferenceRecord builds a reference record from a normalized field mapping.
func NewReferenceRecord(p Provenance, fields map[string]string) ReferenceRecord {
	return ReferenceRecord{
		Provenance:      p,
		TravelerName:    fieldOrUnknown(fields, constants.FieldTravelerName),
		DestinationCity: fieldOrUnknown(fields, constants.FieldDestinationCity),
		StartDate:       fieldOrUnknown(fields, constants.FieldStartDate),
		EndDate:         fieldOrUnknown(fields, constants.FieldEndDate),
		Purpose:         fieldOrUnknown(fields, constants.FieldPurpose),
	}
}

// Fields returns the record's named values in declaration order.
func (r ReferenceRecord) Fields() map[string]string {
	return map[string]string{
		constants.FieldTravelerName:    r.TravelerName,
		constants.FieldDestinationCity: r.DestinationCity,
		constants.FieldStartDate:       r.StartDate,
		constants.FieldEndDate:         r.EndDate,
		constants.FieldPurpose:         r.Purpose,
	}
}

// AllUnknown reports whether the record carries no information at all.
func (r ReferenceRecord) AllUnknown() bool {
	for _, v := range r.Fields() {
		if !IsUnknown(v) {
			return false
		}
	}
	return true
}

// IsUnknown reports whether v is the unknown sentinel (or empty).
func IsUnknown(v string) bool {
	return v == "" || v == constants.Unknown
}

func fieldOrUnknown(fields map[string]string, key string) string {
	if v, ok := fields[key]; ok && v != "" {
		return v
	}
	return constants.Unknown
}
