package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// PageCount opens a PDF and reports its page count. Malformed files return ErrCorruptDocument.
func PageCount(path string) (n int, err error) {
	// the reader panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("%w: %v", ErrCorruptDocument, r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	defer func() { _ = f.Close() }()
	n = r.NumPage()
	if n == 0 {
		return 0, fmt.Errorf("%w: no pages", ErrCorruptDocument)
	}
	return n, nil
}

func (d *Decomposer) pdfPages(ctx context.Context, doc Document) ([]Page, error) {
	count, err := PageCount(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", doc.Name, err)
	}
	last := count
	if d.cfg.MaxPages > 0 && last > d.cfg.MaxPages {
		d.logger.Warn("document.pdf.truncated",
			zap.String("document", doc.Name),
			zap.Int("pages", count),
			zap.Int("max_pages", d.cfg.MaxPages),
		)
		last = d.cfg.MaxPages
	}

	tmpDir, err := os.MkdirTemp("", "ea-pp-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			d.logger.Warn("document.pdf.cleanup_error", zap.String("dir", tmpDir), zap.Error(err))
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r <dpi> -png -f 1 -l <last> <in.pdf> <tmp/page>
	args := []string{"-r", strconv.Itoa(d.cfg.DPI), "-png", "-f", "1", "-l", strconv.Itoa(last), doc.Path, prefix}
	if _, errb, err := d.runner.Run(ctx, d.cfg.Pdftoppm, args...); err != nil {
		return nil, toolError("pdftoppm", doc.Name, err, errb)
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: pdftoppm produced no images for %s", ErrCorruptDocument, doc.Name)
	}
	sort.Slice(matches, func(i, j int) bool {
		return renderedPageNumber(matches[i]) < renderedPageNumber(matches[j])
	})

	pages := make([]Page, 0, len(matches))
	for i, m := range matches {
		b, err := os.ReadFile(m)
		if err != nil {
			return nil, fmt.Errorf("read rendered page: %w", err)
		}
		pages = append(pages, Page{Document: doc.Name, Index: i + 1, MIMEType: "image/png", Data: b})
	}
	return pages, nil
}

// renderedPageNumber parses N out of <prefix>-N.png; pdftoppm zero-pads N by page count.
func renderedPageNumber(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".png")
	i := strings.LastIndexByte(base, '-')
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(base[i+1:])
	if err != nil {
		return 0
	}
	return n
}
