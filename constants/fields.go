package constants

// Unknown marks a field the extractor could not read.
const Unknown = "unknown"

// Expense document fields.
const (
	FieldMerchantName    = "merchant_name"
	FieldTransactionDate = "transaction_date"
	FieldTotalAmount     = "total_amount"
	FieldAddress         = "address"
	FieldCity            = "city"
)

// Travel authorization fields.
const (
	FieldTravelerName    = "traveler_name"
	FieldDestinationCity = "destination_city"
	FieldStartDate       = "start_date"
	FieldEndDate         = "end_date"
	FieldPurpose         = "purpose"
)

var ExpenseFields = []string{
	FieldMerchantName,
	FieldTransactionDate,
	FieldTotalAmount,
	FieldAddress,
	FieldCity,
}

var ReferenceFields = []string{
	FieldTravelerName,
	FieldDestinationCity,
	FieldStartDate,
	FieldEndDate,
	FieldPurpose,
}

// DateLayout is the ISO calendar date format used in prompts and records.
const DateLayout = "2006-01-02"
