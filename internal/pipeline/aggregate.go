package pipeline

import (
	"github.com/joseph-ayodele/expense-auditor/constants"
	"github.com/joseph-ayodele/expense-auditor/internal/entity"
)

// aggregateExpenses keeps the successful outcomes as expense records, in outcome order.
func aggregateExpenses(outcomes []pageOutcome) []entity.ExpenseRecord {
	out := make([]entity.ExpenseRecord, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		out = append(out, entity.NewExpenseRecord(o.Provenance, o.Fields))
	}
	return out
}

// aggregateReferences keeps successful outcomes that carry at least one known field.
// A blank page of a multi-page order would otherwise shadow the page holding the data.
func aggregateReferences(outcomes []pageOutcome) (records []entity.ReferenceRecord, blank []entity.PageFailure) {
	records = make([]entity.ReferenceRecord, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		rec := entity.NewReferenceRecord(o.Provenance, o.Fields)
		if rec.AllUnknown() {
			blank = append(blank, entity.PageFailure{
				SourceID: o.Provenance.SourceID,
				Document: o.Provenance.Document,
				Page:     o.Provenance.Page,
				Reason:   "reference page carries no readable field",
			})
			continue
		}
		records = append(records, rec)
	}
	return records, blank
}

// Conflict is a reference field whose value differs between records.
type Conflict struct {
	Field    string
	Kept     string
	Ignored  string
	SourceID string
}

// CanonicalReference selects records[0] and fills each of its unknown fields from the
// first later record that knows it. Differing known values keep the first and are reported.
func CanonicalReference(records []entity.ReferenceRecord) (entity.ReferenceRecord, []Conflict) {
	if len(records) == 0 {
		return entity.ReferenceRecord{}, nil
	}
	canon := records[0]
	var conflicts []Conflict
	for _, rec := range records[1:] {
		for _, f := range []struct {
			name string
			dst  *string
			src  string
		}{
			{constants.FieldTravelerName, &canon.TravelerName, rec.TravelerName},
			{constants.FieldDestinationCity, &canon.DestinationCity, rec.DestinationCity},
			{constants.FieldStartDate, &canon.StartDate, rec.StartDate},
			{constants.FieldEndDate, &canon.EndDate, rec.EndDate},
			{constants.FieldPurpose, &canon.Purpose, rec.Purpose},
		} {
			switch {
			case entity.IsUnknown(f.src):
			case entity.IsUnknown(*f.dst):
				*f.dst = f.src
			case *f.dst != f.src:
				conflicts = append(conflicts, Conflict{Field: f.name, Kept: *f.dst, Ignored: f.src, SourceID: rec.SourceID})
			}
		}
	}
	return canon, conflicts
}
