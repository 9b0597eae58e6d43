package export

import (
	"fmt"
	"io"
	"strings"

	"codeberg.org/go-pdf/fpdf"

	"github.com/joseph-ayodele/expense-auditor/constants"
)

const (
	pdfMargin     = 15.0
	pdfLineHeight = 5.0
	pdfBottom     = 20.0
)

var pdfColumns = []struct {
	title string
	width float64
}{
	{"Document", 42},
	{"Merchant", 32},
	{"Date", 22},
	{"Amount", 22},
	{"City", 22},
	{"Status", 20},
	{"Reasons", 0}, // takes the remaining width
}

// WritePDF renders r as an A4 report: one row per verdict, then the payable total.
func WritePDF(w io.Writer, r *Report) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfBottom)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 5, fmt.Sprintf("Execution %s - page %d/{nb}", r.ExecutionID, pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pageW, pageH := pdf.GetPageSize()
	widths := make([]float64, len(pdfColumns))
	used := 0.0
	for i, c := range pdfColumns {
		widths[i] = c.width
		used += c.width
	}
	widths[len(widths)-1] = pageW - 2*pdfMargin - used

	header := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFillColor(230, 230, 230)
		for i, c := range pdfColumns {
			pdf.CellFormat(widths[i], 7, c.title, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 15)
	pdf.CellFormat(0, 9, tr("Expense validation report"), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, tr("Generated "+r.GeneratedAt.Format("2006-01-02 15:04 MST")), "", 1, "L", false, 0, "")
	if r.AgentID != "" {
		pdf.CellFormat(0, 5, tr("Agent: "+r.AgentID), "", 1, "L", false, 0, "")
	}
	if ref := r.Reference; ref != nil {
		pdf.CellFormat(0, 5, tr(fmt.Sprintf("Mission: %s to %s, %s - %s", ref.TravelerName, ref.DestinationCity, ref.StartDate, ref.EndDate)), "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)
	header()

	pdf.SetFont("Helvetica", "", 8)
	for _, row := range r.Rows {
		reasons := "-"
		if len(row.Reasons) > 0 {
			reasons = strings.Join(row.Reasons, "; ")
		}
		cells := []string{row.SourceID, row.Merchant, row.Date, row.Amount, row.City, statusLabel(row.Status), reasons}

		lines := make([][]string, len(cells))
		height := 1
		for i, c := range cells {
			lines[i] = pdf.SplitText(tr(c), widths[i]-2)
			if len(lines[i]) > height {
				height = len(lines[i])
			}
		}
		rowH := float64(height) * pdfLineHeight
		if pdf.GetY()+rowH > pageH-pdfBottom {
			pdf.AddPage()
			header()
			pdf.SetFont("Helvetica", "", 8)
		}

		switch row.Status {
		case constants.FraudNo:
			pdf.SetTextColor(0, 120, 0)
		case constants.FraudYes:
			pdf.SetTextColor(190, 0, 0)
		default:
			pdf.SetTextColor(160, 110, 0)
		}
		x, y := pdf.GetX(), pdf.GetY()
		for i := range cells {
			pdf.Rect(x, y, widths[i], rowH, "D")
			for j, l := range lines[i] {
				pdf.SetXY(x+1, y+float64(j)*pdfLineHeight)
				pdf.CellFormat(widths[i]-2, pdfLineHeight, l, "", 0, "L", false, 0, "")
			}
			x += widths[i]
		}
		pdf.SetXY(pdfMargin, y+rowH)
	}

	pdf.SetTextColor(0, 0, 0)
	if len(r.Failures) > 0 {
		if pdf.GetY()+pdfLineHeight*float64(len(r.Failures)+2) > pageH-pdfBottom {
			pdf.AddPage()
		}
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(0, 6, "Pages not processed", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 8)
		for _, f := range r.Failures {
			pdf.MultiCell(0, pdfLineHeight, tr(f.SourceID+": "+f.Reason), "", "L", false)
		}
	}

	if pdf.GetY()+20 > pageH-pdfBottom {
		pdf.AddPage()
	}
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 7, tr(fmt.Sprintf("Total payable to the employee: %s %s", r.Total.StringFixed(2), r.Currency)), "", 1, "L", false, 0, "")
	if r.Unpriced > 0 {
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("%d valid expense(s) without a readable amount are not included.", r.Unpriced), "", 1, "L", false, 0, "")
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("pdf render: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("pdf write: %w", err)
	}
	return nil
}
