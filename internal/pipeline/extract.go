package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/expense-auditor/internal/common"
	"github.com/joseph-ayodele/expense-auditor/internal/document"
	"github.com/joseph-ayodele/expense-auditor/internal/entity"
	"github.com/joseph-ayodele/expense-auditor/internal/llm"
)

// pageOutcome is the result of extracting one page. Exactly one of Fields and Err is set.
type pageOutcome struct {
	Provenance entity.Provenance
	Fields     llm.Fields
	Err        error
}

// extractLocation lists, decomposes and extracts every page behind a source location.
// Outcomes follow document order, then page order, regardless of completion order.
// Only listing failures, unusable converters and cancellation are returned as errors.
func (o *Orchestrator) extractLocation(ctx context.Context, location string, kind llm.SchemaKind, logger *zap.Logger) ([]pageOutcome, []entity.PageFailure, error) {
	start := time.Now()
	files, stats, err := o.source.List(ctx, location)
	if err != nil {
		return nil, nil, err
	}

	var failures []entity.PageFailure
	for _, name := range stats.Skipped {
		failures = append(failures, entity.PageFailure{
			SourceID: name,
			Document: name,
			Reason:   document.ErrUnsupportedFormat.Error(),
		})
	}

	var pages []document.Page
	for _, f := range files {
		docPages, err := o.decomposer.Decompose(ctx, document.Document{Name: f.Name, Path: f.Path})
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			if errors.Is(err, common.ErrTransport) {
				return nil, nil, err
			}
			failures = append(failures, entity.PageFailure{SourceID: f.Name, Document: f.Name, Reason: err.Error()})
			continue
		}
		pages = append(pages, docPages...)
	}

	outcomes := make([]pageOutcome, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for i, p := range pages {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("extract %s page %d: panic: %v", p.Document, p.Index, r)
				}
			}()
			prov := entity.Provenance{SourceID: entity.SourceID(p.Document, p.Index), Document: p.Document, Page: p.Index}
			fields, err := o.extractor.Extract(gctx, llm.Image{Name: prov.SourceID, MIMEType: p.MIMEType, Data: p.Data}, kind)
			outcomes[i] = pageOutcome{Provenance: prov, Fields: fields, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var pageErrs error
	for _, out := range outcomes {
		if out.Err == nil {
			continue
		}
		pageErrs = multierr.Append(pageErrs, out.Err)
		failures = append(failures, entity.PageFailure{
			SourceID: out.Provenance.SourceID,
			Document: out.Provenance.Document,
			Page:     out.Provenance.Page,
			Reason:   out.Err.Error(),
		})
	}
	if pageErrs != nil {
		logger.Warn("pipeline.extract.partial",
			zap.String("schema", string(kind)),
			zap.Int("failed_pages", len(multierr.Errors(pageErrs))),
			zap.Bool("all_extraction_failures", allExtraction(pageErrs)),
		)
	}

	logger.Info("pipeline.extract.done",
		zap.String("schema", string(kind)),
		zap.Int("documents", len(files)),
		zap.Int("pages", len(pages)),
		zap.Int("failures", len(failures)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return outcomes, failures, nil
}

func allExtraction(err error) bool {
	for _, e := range multierr.Errors(err) {
		if !errors.Is(e, common.ErrExtraction) {
			return false
		}
	}
	return true
}
