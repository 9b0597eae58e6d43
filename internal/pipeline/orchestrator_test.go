package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/expense-auditor/constants"
	"github.com/joseph-ayodele/expense-auditor/internal/common"
	"github.com/joseph-ayodele/expense-auditor/internal/document"
	"github.com/joseph-ayodele/expense-auditor/internal/entity"
	"github.com/joseph-ayodele/expense-auditor/internal/ingest"
	"github.com/joseph-ayodele/expense-auditor/internal/llm"
	"github.com/joseph-ayodele/expense-auditor/internal/pipeline"
	"github.com/joseph-ayodele/expense-auditor/internal/validation"
)

type fakeSource struct {
	files map[string][]string
	err   error
}

func (f fakeSource) List(_ context.Context, location string) ([]ingest.SourceFile, ingest.DirStats, error) {
	if f.err != nil {
		return nil, ingest.DirStats{}, f.err
	}
	var out []ingest.SourceFile
	for _, name := range f.files[location] {
		out = append(out, ingest.SourceFile{Name: name, Path: "/src/" + location + "/" + name})
	}
	return out, ingest.DirStats{}, nil
}

// fakeDecomposer returns pages[name] pages, or an unsupported error when absent.
// A set err is returned for every document.
type fakeDecomposer struct {
	pages map[string]int
	err   error
}

func (f fakeDecomposer) Decompose(_ context.Context, doc document.Document) ([]document.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	n, ok := f.pages[doc.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", document.ErrUnsupportedFormat, doc.Name)
	}
	out := make([]document.Page, n)
	for i := range out {
		out[i] = document.Page{Document: doc.Name, Index: i + 1, MIMEType: "image/png", Data: []byte{byte(i)}}
	}
	return out, nil
}

// fakeExtractor answers by source id; ids missing from the table fail.
type fakeExtractor struct {
	mu       sync.Mutex
	fields   map[string]llm.Fields
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    func(name string) time.Duration
}

func (f *fakeExtractor) Extract(ctx context.Context, img llm.Image, _ llm.SchemaKind) (llm.Fields, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay != nil {
		select {
		case <-time.After(f.delay(img.Name)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fields, ok := f.fields[img.Name]
	if !ok {
		return nil, &llm.ExtractionError{Stage: "inference", Err: errors.New("simulated collaborator error")}
	}
	return fields, nil
}

func expenseFields(city, date, amount string) llm.Fields {
	return llm.Fields{
		constants.FieldMerchantName:    "Hotel X",
		constants.FieldTransactionDate: date,
		constants.FieldTotalAmount:     amount,
		constants.FieldAddress:         "...",
		constants.FieldCity:            city,
	}
}

func referenceFields(dest, start, end string) llm.Fields {
	return llm.Fields{
		constants.FieldTravelerName:    "Said",
		constants.FieldDestinationCity: dest,
		constants.FieldStartDate:       start,
		constants.FieldEndDate:         end,
		constants.FieldPurpose:         "conference",
	}
}

func newOrchestrator(src fakeSource, dec fakeDecomposer, ex *fakeExtractor, concurrency int) *pipeline.Orchestrator {
	return pipeline.NewOrchestrator(
		pipeline.Config{Concurrency: concurrency},
		src, dec, ex,
		validation.NewRuleEngine(validation.Config{AmountThreshold: 1000}, nil),
		nil,
	)
}

func TestRun_StateSequenceAndVerdicts(t *testing.T) {
	src := fakeSource{files: map[string][]string{
		"exp": {"hotel.png", "taxi.png"},
		"ref": {"order.pdf"},
	}}
	dec := fakeDecomposer{pages: map[string]int{"hotel.png": 1, "taxi.png": 1, "order.pdf": 1}}
	ex := &fakeExtractor{fields: map[string]llm.Fields{
		"hotel.png (page 1)": expenseFields("Rabat", "2025-04-13", "500"),
		"taxi.png (page 1)":  expenseFields("Casablanca", "2025-04-13", "200"),
		"order.pdf (page 1)": referenceFields("Rabat", "2025-04-12", "2025-04-14"),
	}}
	o := newOrchestrator(src, dec, ex, 2)

	s := pipeline.NewSession("s1", "exp", "ref")
	var seen []pipeline.State
	for !s.State.Terminal() {
		s = o.Step(context.Background(), s)
		seen = append(seen, s.State)
	}
	assert.Equal(t, []pipeline.State{
		pipeline.StateExpensesExtracted,
		pipeline.StateReferenceExtracted,
		pipeline.StateValidated,
	}, seen)

	require.Len(t, s.Verdicts, 2)
	assert.Equal(t, "hotel.png (page 1)", s.Verdicts[0].SourceID)
	assert.Equal(t, constants.FraudNo, s.Verdicts[0].IsFraudulent)
	assert.Equal(t, constants.FraudYes, s.Verdicts[1].IsFraudulent)
	assert.Contains(t, s.Verdicts[1].Reasons, validation.ReasonCityMismatch)
	require.NotNil(t, s.Result())
	assert.Equal(t, "Rabat", s.Result().Reference.DestinationCity)
}

func TestRun_MissingReferenceErrorsWithPartialState(t *testing.T) {
	src := fakeSource{files: map[string][]string{
		"exp": {"hotel.png"},
		"ref": {"order.pdf"},
	}}
	dec := fakeDecomposer{pages: map[string]int{"hotel.png": 1, "order.pdf": 2}}
	ex := &fakeExtractor{fields: map[string]llm.Fields{
		"hotel.png (page 1)": expenseFields("Rabat", "2025-04-13", "500"),
		// page 1 of the order fails, page 2 is blank
		"order.pdf (page 2)": referenceFields(constants.Unknown, constants.Unknown, constants.Unknown),
	}}
	ex.fields["order.pdf (page 2)"][constants.FieldTravelerName] = constants.Unknown
	ex.fields["order.pdf (page 2)"][constants.FieldPurpose] = constants.Unknown

	s, err := newOrchestrator(src, dec, ex, 4).Run(context.Background(), pipeline.NewSession("s2", "exp", "ref"))

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMissingReference)
	assert.Equal(t, pipeline.StateErrored, s.State)
	assert.Empty(t, s.Verdicts)
	assert.Nil(t, s.Result())
	// partial state is preserved
	assert.Len(t, s.Expenses, 1)
	assert.Len(t, s.Failures, 2)
}

func TestRun_FailedPageIsSkipped(t *testing.T) {
	src := fakeSource{files: map[string][]string{
		"exp": {"bundle.pdf"},
		"ref": {"order.png"},
	}}
	dec := fakeDecomposer{pages: map[string]int{"bundle.pdf": 3, "order.png": 1}}
	ex := &fakeExtractor{fields: map[string]llm.Fields{
		"bundle.pdf (page 1)": expenseFields("Rabat", "2025-04-12", "100"),
		"bundle.pdf (page 3)": expenseFields("Rabat", "2025-04-14", "300"),
		"order.png (page 1)":  referenceFields("Rabat", "2025-04-12", "2025-04-14"),
	}}

	s, err := newOrchestrator(src, dec, ex, 3).Run(context.Background(), pipeline.NewSession("s3", "exp", "ref"))
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateValidated, s.State)

	require.Len(t, s.Verdicts, 2)
	assert.Equal(t, "bundle.pdf (page 1)", s.Verdicts[0].SourceID)
	assert.Equal(t, "bundle.pdf (page 3)", s.Verdicts[1].SourceID)
	require.Len(t, s.Failures, 1)
	assert.Equal(t, "bundle.pdf (page 2)", s.Failures[0].SourceID)
	assert.Equal(t, 2, s.Failures[0].Page)
}

func TestRun_DeterministicOrderUnderConcurrency(t *testing.T) {
	names := []string{"a.pdf", "b.pdf", "c.png"}
	src := fakeSource{files: map[string][]string{"exp": names, "ref": {"order.png"}}}
	dec := fakeDecomposer{pages: map[string]int{"a.pdf": 4, "b.pdf": 3, "c.png": 1, "order.png": 1}}
	fields := map[string]llm.Fields{"order.png (page 1)": referenceFields("Rabat", "2025-04-12", "2025-04-14")}
	var want []string
	for _, n := range names {
		for p := 1; p <= dec.pages[n]; p++ {
			id := fmt.Sprintf("%s (page %d)", n, p)
			fields[id] = expenseFields("Rabat", "2025-04-13", "10")
			want = append(want, id)
		}
	}
	// later pages finish first
	delays := map[string]time.Duration{}
	for i, id := range want {
		delays[id] = time.Duration(len(want)-i) * 3 * time.Millisecond
	}
	ex := &fakeExtractor{fields: fields, delay: func(name string) time.Duration { return delays[name] }}

	s, err := newOrchestrator(src, dec, ex, 3).Run(context.Background(), pipeline.NewSession("s4", "exp", "ref"))
	require.NoError(t, err)

	var got []string
	for i, v := range s.Verdicts {
		got = append(got, v.SourceID)
		assert.Equal(t, s.Expenses[i].SourceID, v.SourceID)
	}
	assert.Equal(t, want, got)
	assert.LessOrEqual(t, ex.peak.Load(), int32(3))
}

func TestRun_UnsupportedDocumentIsSkipped(t *testing.T) {
	src := fakeSource{files: map[string][]string{"exp": {"notes.docx", "hotel.png"}, "ref": {"order.png"}}}
	dec := fakeDecomposer{pages: map[string]int{"hotel.png": 1, "order.png": 1}}
	ex := &fakeExtractor{fields: map[string]llm.Fields{
		"hotel.png (page 1)": expenseFields("Rabat", "2025-04-13", "500"),
		"order.png (page 1)": referenceFields("Rabat", "2025-04-12", "2025-04-14"),
	}}

	s, err := newOrchestrator(src, dec, ex, 2).Run(context.Background(), pipeline.NewSession("s5", "exp", "ref"))
	require.NoError(t, err)
	assert.Len(t, s.Verdicts, 1)
	require.Len(t, s.Failures, 1)
	assert.Equal(t, "notes.docx", s.Failures[0].Document)
}

func TestRun_TransportFailureIsFatal(t *testing.T) {
	src := fakeSource{err: common.Transport("list bucket", errors.New("connection refused"))}
	o := newOrchestrator(src, fakeDecomposer{}, &fakeExtractor{}, 1)

	s, err := o.Run(context.Background(), pipeline.NewSession("s6", "exp", "ref"))
	assert.ErrorIs(t, err, common.ErrTransport)
	assert.Equal(t, pipeline.StateErrored, s.State)
}

func TestRun_UnavailableRendererIsFatal(t *testing.T) {
	src := fakeSource{files: map[string][]string{"exp": {"invoices.pdf"}, "ref": {"order.png"}}}
	dec := fakeDecomposer{err: common.Transport("pdftoppm unavailable for invoices.pdf", exec.ErrNotFound)}
	ex := &fakeExtractor{}
	o := newOrchestrator(src, dec, ex, 1)

	s, err := o.Run(context.Background(), pipeline.NewSession("s6b", "exp", "ref"))
	require.ErrorIs(t, err, common.ErrTransport)
	assert.ErrorIs(t, err, exec.ErrNotFound)
	assert.Equal(t, pipeline.StateErrored, s.State)
	assert.Empty(t, s.Verdicts)
	assert.Zero(t, ex.peak.Load(), "no page reaches the extractor")
}

func TestStep_TerminalStatesHaveNoTransition(t *testing.T) {
	o := newOrchestrator(fakeSource{}, fakeDecomposer{}, &fakeExtractor{}, 1)
	s := pipeline.NewSession("s7", "exp", "ref")
	s.State = pipeline.StateValidated

	next := o.Step(context.Background(), s)
	assert.Equal(t, pipeline.StateErrored, next.State)
	assert.ErrorIs(t, next.Err, common.ErrInvalidTransition)
}

func TestStep_DoesNotMutateInputSnapshot(t *testing.T) {
	src := fakeSource{files: map[string][]string{"exp": {"hotel.png"}, "ref": {"order.png"}}}
	dec := fakeDecomposer{pages: map[string]int{"hotel.png": 1, "order.png": 1}}
	ex := &fakeExtractor{fields: map[string]llm.Fields{
		"hotel.png (page 1)": expenseFields("Rabat", "2025-04-13", "500"),
		"order.png (page 1)": referenceFields("Rabat", "2025-04-12", "2025-04-14"),
	}}
	o := newOrchestrator(src, dec, ex, 1)

	created := pipeline.NewSession("s8", "exp", "ref")
	afterExpenses := o.Step(context.Background(), created)
	afterReference := o.Step(context.Background(), afterExpenses)

	assert.Equal(t, pipeline.StateCreated, created.State)
	assert.Empty(t, created.Expenses)
	assert.Equal(t, pipeline.StateExpensesExtracted, afterExpenses.State)
	assert.Nil(t, afterExpenses.Reference)
	assert.Equal(t, pipeline.StateReferenceExtracted, afterReference.State)
}

func TestCanonicalReference(t *testing.T) {
	first := entity.NewReferenceRecord(entity.Provenance{SourceID: "order.pdf (page 1)"},
		referenceFields(constants.Unknown, "2025-04-12", constants.Unknown))
	second := entity.NewReferenceRecord(entity.Provenance{SourceID: "order.pdf (page 2)"},
		referenceFields("Rabat", "2025-04-13", "2025-04-14"))

	canon, conflicts := pipeline.CanonicalReference([]entity.ReferenceRecord{first, second})

	assert.Equal(t, "order.pdf (page 1)", canon.SourceID)
	assert.Equal(t, "Rabat", canon.DestinationCity)
	assert.Equal(t, "2025-04-12", canon.StartDate)
	assert.Equal(t, "2025-04-14", canon.EndDate)
	require.Len(t, conflicts, 1)
	assert.Equal(t, constants.FieldStartDate, conflicts[0].Field)
	assert.Equal(t, "2025-04-13", conflicts[0].Ignored)
	assert.Equal(t, "order.pdf (page 2)", conflicts[0].SourceID)
}

func TestCanonicalReference_Empty(t *testing.T) {
	canon, conflicts := pipeline.CanonicalReference(nil)
	assert.Empty(t, canon.SourceID)
	assert.Empty(t, conflicts)
}
