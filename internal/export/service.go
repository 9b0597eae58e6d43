package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/expense-auditor/internal/common"
	"github.com/joseph-ayodele/expense-auditor/internal/entity"
)

// Format is a report output format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "pdf" (the default when empty) and "xlsx".
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatPDF:
		return FormatPDF, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", common.InvalidInputf("unsupported report format %q", s)
	}
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/pdf"
}

// Service renders execution reports.
type Service struct {
	currency string
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(currency string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{currency: currency, logger: logger, now: time.Now}
}

// Render returns the report of exec in the given format.
func (s *Service) Render(ctx context.Context, exec *entity.Execution, format Format) ([]byte, error) {
	start := time.Now()
	r, err := Build(exec, s.currency, s.now())
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	switch format {
	case FormatXLSX:
		err = WriteXLSX(&buf, r)
	case FormatPDF:
		err = WritePDF(&buf, r)
	default:
		err = common.InvalidInputf("unsupported report format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("render %s report: %w", format, err)
	}

	s.logger.Info("export.report.ok",
		zap.String("execution_id", r.ExecutionID),
		zap.String("format", string(format)),
		zap.Int("rows", len(r.Rows)),
		zap.Int("bytes", buf.Len()),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return buf.Bytes(), nil
}
