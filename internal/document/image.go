package document

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// rasterPage validates a single-image document. JPEG and PNG pass through;
// other raster formats are re-encoded as PNG so every page is sendable upstream.
func rasterPage(doc Document, mime string) ([]Page, error) {
	b, err := os.ReadFile(doc.Path)
	if err != nil {
		return nil, err
	}
	if mime == "image/jpeg" || mime == "image/png" {
		if _, _, err := image.DecodeConfig(bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptDocument, doc.Name, err)
		}
		return []Page{{Document: doc.Name, Index: 1, MIMEType: mime, Data: b}}, nil
	}
	out, err := toPNG(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptDocument, doc.Name, err)
	}
	return []Page{{Document: doc.Name, Index: 1, MIMEType: "image/png", Data: out}}, nil
}

func toPNG(b []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// heicPage converts a HEIC/HEIF photo to PNG with the configured external converter.
func (d *Decomposer) heicPage(ctx context.Context, doc Document) ([]Page, error) {
	tmpDir, err := os.MkdirTemp("", "ea-heic-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	out := filepath.Join(tmpDir, "page.png")

	switch d.cfg.HeicConverter {
	case "heif-convert":
		_, errb, err := d.runner.Run(ctx, "heif-convert", doc.Path, out)
		if err != nil {
			return nil, toolError("heif-convert", doc.Name, err, errb)
		}
	case "magick":
		_, errb, err := d.runner.Run(ctx, "magick", doc.Path, out)
		if err != nil {
			return nil, toolError("magick", doc.Name, err, errb)
		}
	case "sips":
		_, errb, err := d.runner.Run(ctx, "sips", "-s", "format", "png", doc.Path, "--out", out)
		if err != nil {
			return nil, toolError("sips", doc.Name, err, errb)
		}
	default:
		return nil, fmt.Errorf("%w: HEIC needs a converter (heif-convert | magick | sips)", ErrUnsupportedFormat)
	}

	b, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("%w: HEIC conversion produced no output: %v", ErrCorruptDocument, err)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("%w: converted HEIC is not a PNG: %v", ErrCorruptDocument, err)
	}
	return []Page{{Document: doc.Name, Index: 1, MIMEType: "image/png", Data: b}}, nil
}
