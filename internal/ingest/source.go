package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/expense-auditor/constants"
	"github.com/joseph-ayodele/expense-auditor/internal/common"
)

// DirSource reads a source location from the local filesystem.
type DirSource struct {
	SkipHidden bool
	Recursive  bool
	// Extensions lists the accepted extensions without the dot. Nil means
	// constants.AllowedExtensions.
	Extensions map[string]struct{}
	logger     *zap.Logger
}

func NewDirSource(skipHidden, recursive bool, logger *zap.Logger) *DirSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirSource{SkipHidden: skipHidden, Recursive: recursive, logger: logger}
}

// List returns the supported documents under root sorted by relative name.
// Byte-identical files are listed once. An unreadable root is a transport failure.
func (s *DirSource) List(ctx context.Context, root string) ([]SourceFile, DirStats, error) {
	var stats DirStats
	if strings.TrimSpace(root) == "" {
		return nil, stats, common.InvalidInputf("source location is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, stats, common.Transport("resolve source location", err)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, stats, common.Transport(fmt.Sprintf("open source location %s", root), err)
	}
	if !st.IsDir() {
		return nil, stats, common.InvalidInputf("source location %s is not a directory", root)
	}

	var files []SourceFile
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == abs {
			return walkErr
		}
		stats.Scanned++
		if walkErr != nil {
			s.logger.Warn("ingest.walk_error", zap.String("path", path), zap.Error(walkErr))
			stats.Failed++
			return nil
		}
		if s.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if !s.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(abs, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		rel = filepath.ToSlash(rel)
		ext := constants.NormalizeExt(filepath.Ext(path))
		if !s.accepts(ext) {
			stats.Skipped = append(stats.Skipped, rel)
			return nil
		}
		stats.Matched++

		sum, size, err := hashFile(path)
		if err != nil {
			s.logger.Warn("ingest.hash_error", zap.String("path", path), zap.Error(err))
			stats.Failed++
			return nil
		}
		files = append(files, SourceFile{Name: rel, Path: path, Ext: ext, Size: size, HashHex: sum})
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, stats, err
		}
		return nil, stats, common.Transport("walk source location", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	sort.Strings(stats.Skipped)

	seen := make(map[string]string, len(files))
	out := files[:0]
	for _, f := range files {
		if first, dup := seen[f.HashHex]; dup {
			s.logger.Info("ingest.duplicate_skipped", zap.String("file", f.Name), zap.String("same_as", first))
			stats.Deduplicated++
			continue
		}
		seen[f.HashHex] = f.Name
		out = append(out, f)
	}

	s.logger.Info("ingest.list.ok",
		zap.String("root", abs),
		zap.Uint32("scanned", stats.Scanned),
		zap.Uint32("matched", stats.Matched),
		zap.Uint32("deduplicated", stats.Deduplicated),
		zap.Int("skipped", len(stats.Skipped)),
	)
	return out, stats, nil
}

func (s *DirSource) accepts(ext string) bool {
	allowed := s.Extensions
	if allowed == nil {
		allowed = constants.AllowedExtensions
	}
	_, ok := allowed[ext]
	return ok
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
