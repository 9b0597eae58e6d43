package document

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/expense-auditor/constants"
)

var (
	// ErrUnsupportedFormat is returned for documents that are neither PDF nor a raster image.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrCorruptDocument is returned when a supported format cannot be read.
	ErrCorruptDocument = errors.New("corrupt document")
)

// Config controls rasterization.
type Config struct {
	Pdftoppm      string // binary name or path
	HeicConverter string // heif-convert | magick | sips; empty disables HEIC
	DPI           int    // default 200
	MaxPages      int    // 0 means all pages
}

// Document is one source file.
type Document struct {
	Name string // display name used in provenance
	Path string
}

// Page is one rasterized page. Index is 1-based and follows the document's page order.
type Page struct {
	Document string
	Index    int
	MIMEType string
	Data     []byte
}

// Decomposer expands documents into ordered page images.
type Decomposer struct {
	cfg    Config
	runner Runner
	logger *zap.Logger
}

func NewDecomposer(cfg Config, runner Runner, logger *zap.Logger) *Decomposer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	return &Decomposer{cfg: cfg, runner: runner, logger: logger}
}

// Decompose returns the page images of doc. Unsupported or unreadable documents yield no pages
// and an error matching ErrUnsupportedFormat or ErrCorruptDocument; callers skip them.
// A converter that cannot be started yields a common.ErrTransport error instead.
func (d *Decomposer) Decompose(ctx context.Context, doc Document) ([]Page, error) {
	start := time.Now()
	if doc.Name == "" {
		doc.Name = filepath.Base(doc.Path)
	}
	logger := d.logger.With(zap.String("document", doc.Name))

	mt, err := mimetype.DetectFile(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("detect %s: %w", doc.Name, err)
	}

	var pages []Page
	switch kind := classify(mt, filepath.Ext(doc.Path)); kind {
	case kindPDF:
		pages, err = d.pdfPages(ctx, doc)
	case kindRaster:
		pages, err = rasterPage(doc, mt.String())
	case kindHEIC:
		pages, err = d.heicPage(ctx, doc)
	default:
		err = fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, doc.Name, mt.String())
	}
	if err != nil {
		logger.Warn("document.decompose.skipped", zap.String("mime", mt.String()), zap.Error(err))
		return nil, err
	}

	logger.Info("document.decompose.ok",
		zap.String("mime", mt.String()),
		zap.Int("pages", len(pages)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return pages, nil
}

// Extensions returns the file extensions this decomposer can turn into pages.
// HEIC and HEIF are left out when no converter is configured.
func (d *Decomposer) Extensions() map[string]struct{} {
	out := make(map[string]struct{}, len(constants.AllowedExtensions))
	for ext := range constants.AllowedExtensions {
		if d.cfg.HeicConverter == "" && constants.IsHEICExt(ext) {
			continue
		}
		out[ext] = struct{}{}
	}
	return out
}

type docKind int

const (
	kindUnsupported docKind = iota
	kindPDF
	kindRaster
	kindHEIC
)

func classify(mt *mimetype.MIME, ext string) docKind {
	switch {
	case mt.Is("application/pdf"):
		return kindPDF
	case mt.Is("image/heic"), mt.Is("image/heif"), mt.Is("image/heic-sequence"), mt.Is("image/heif-sequence"):
		return kindHEIC
	case mt.Is("image/jpeg"), mt.Is("image/png"), mt.Is("image/webp"), mt.Is("image/gif"),
		mt.Is("image/bmp"), mt.Is("image/tiff"):
		return kindRaster
	}
	// some HEIC encoders produce brands mimetype does not know
	if constants.IsHEICExt(ext) {
		return kindHEIC
	}
	return kindUnsupported
}
