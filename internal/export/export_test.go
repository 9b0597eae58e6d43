package export_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/expense-auditor/constants"
	"github.com/joseph-ayodele/expense-auditor/internal/common"
	"github.com/joseph-ayodele/expense-auditor/internal/entity"
	"github.com/joseph-ayodele/expense-auditor/internal/export"
)

func completedExecution() *entity.Execution {
	exp := func(doc, merchant, amount, city string) entity.ExpenseRecord {
		return entity.ExpenseRecord{
			Provenance:      entity.Provenance{SourceID: entity.SourceID(doc, 1), Document: doc, Page: 1},
			MerchantName:    merchant,
			TransactionDate: "2025-04-13",
			TotalAmount:     amount,
			City:            city,
		}
	}
	return &entity.Execution{
		ID:      uuid.New(),
		AgentID: "agent-1",
		Status:  constants.ExecutionCompleted,
		Result: &entity.Result{
			Reference: &entity.ReferenceRecord{TravelerName: "Saïd", DestinationCity: "Rabat", StartDate: "2025-04-12", EndDate: "2025-04-14"},
			Expenses: []entity.ExpenseRecord{
				exp("hotel.png", "Hôtel Atlas", "1.234,50", "Rabat"),
				exp("taxi.png", "Petit Taxi", "80", "Casablanca"),
				exp("cafe.png", "Café", "unknown", "Rabat"),
				exp("dinner.png", "Riad", "300", "Rabat"),
			},
			Verdicts: []entity.Verdict{
				{SourceID: "hotel.png (page 1)", IsFraudulent: constants.FraudNo, Reasons: []string{}, Confidence: 0.6},
				{SourceID: "taxi.png (page 1)", IsFraudulent: constants.FraudYes, Reasons: []string{"city does not match destination"}, Confidence: 0.7},
				{SourceID: "cafe.png (page 1)", IsFraudulent: constants.FraudNo, Reasons: []string{}, Confidence: 0.6},
				{SourceID: "dinner.png (page 1)", IsFraudulent: constants.FraudIndeterminate, Reasons: []string{"assessment unavailable: timeout"}, Confidence: 0},
			},
			Failures: []entity.PageFailure{{SourceID: "scan.pdf (page 2)", Document: "scan.pdf", Page: 2, Reason: "extraction failed"}},
		},
	}
}

func TestBuild_TotalsOnlyValidExpenses(t *testing.T) {
	r, err := export.Build(completedExecution(), "MAD", time.Now())
	require.NoError(t, err)

	require.Len(t, r.Rows, 4)
	assert.Equal(t, "Hôtel Atlas", r.Rows[0].Merchant)
	assert.Equal(t, "1234.50", r.Total.StringFixed(2))
	assert.Equal(t, 1, r.Unpriced)
	assert.Len(t, r.Failures, 1)
}

func TestBuild_RequiresCompletedExecution(t *testing.T) {
	exec := completedExecution()
	exec.Status = constants.ExecutionRunning
	_, err := export.Build(exec, "MAD", time.Now())
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestWritePDF(t *testing.T) {
	r, err := export.Build(completedExecution(), "MAD", time.Now())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, export.WritePDF(&buf, r))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestWritePDF_Paginates(t *testing.T) {
	exec := completedExecution()
	base := exec.Result.Verdicts[0]
	for i := 0; i < 120; i++ {
		exec.Result.Verdicts = append(exec.Result.Verdicts, base)
	}
	r, err := export.Build(exec, "MAD", time.Now())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, export.WritePDF(&buf, r))
	assert.Greater(t, bytes.Count(buf.Bytes(), []byte("/Type /Page\n")), 1)
}

func TestWriteXLSX(t *testing.T) {
	r, err := export.Build(completedExecution(), "MAD", time.Now())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, export.WriteXLSX(&buf, r))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("Verdicts")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 5)
	assert.Equal(t, "Document", rows[0][0])
	assert.Equal(t, "taxi.png (page 1)", rows[2][0])
	assert.Equal(t, "fraudulent", rows[2][5])

	total, err := f.GetCellValue("Verdicts", "D7")
	require.NoError(t, err)
	assert.Equal(t, "1234.5", total)

	failures, err := f.GetRows("Failures")
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, "scan.pdf", failures[1][0])
}

func TestService_Render(t *testing.T) {
	svc := export.NewService("MAD", nil)
	exec := completedExecution()

	pdf, err := svc.Render(context.Background(), exec, export.FormatPDF)
	require.NoError(t, err)
	assert.NotEmpty(t, pdf)

	xlsx, err := svc.Render(context.Background(), exec, export.FormatXLSX)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(xlsx, []byte("PK")))
}

func TestParseFormat(t *testing.T) {
	f, err := export.ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, export.FormatPDF, f)
	assert.Equal(t, "application/pdf", f.ContentType())

	f, err = export.ParseFormat("xlsx")
	require.NoError(t, err)
	assert.Contains(t, f.ContentType(), "spreadsheetml")

	_, err = export.ParseFormat("csv")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
