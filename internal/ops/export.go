package ops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/w9en/qsolog/internal/adif"
	"github.com/w9en/qsolog/internal/config"
	"github.com/w9en/qsolog/internal/errors"
	"github.com/w9en/qsolog/internal/logbook"
	"github.com/w9en/qsolog/internal/qso"
)

// ProgramID names this application in interchange headers.
const ProgramID = "qsolog"

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path    string // optional, default: <base>/exports/<call>-<timestamp>.adi
	Version string // producing application version, written to the header
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportText renders records as a complete interchange file: header, then
// one encoded record per contact in the order given.
func ExportText(records []*qso.Record, version string) string {
	var b strings.Builder
	b.WriteString(adif.Header(ProgramID, versionOrDev(version)))
	for _, r := range records {
		b.WriteString(adif.Encode(qso.ToADIF(r)))
	}
	return b.String()
}

// Snapshot returns every contact in ascending id order, read in one
// transaction.
func Snapshot(ctx context.Context, store *logbook.Store) ([]*qso.Record, error) {
	var records []*qso.Record
	err := store.InTx(ctx, func(tx *logbook.Tx) error {
		var err error
		records, err = tx.All(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Export writes every contact, in ascending id order, to an interchange file.
// The destination is replaced atomically: on any failure a pre-existing file
// at the same path is left untouched.
func Export(ctx context.Context, store *logbook.Store, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	now := time.Now()

	exportPath := input.Path
	if exportPath == "" {
		var err error
		exportPath, err = defaultExportPath(cfg, now)
		if err != nil {
			return nil, err
		}
	}

	// Validate ALL paths (both user-provided and default) for security
	if err := ValidatePath(exportPath, PathCheckWrite, cfg); err != nil {
		return nil, err
	}

	records, err := Snapshot(ctx, store)
	if err != nil {
		return nil, err
	}

	if err := writeAtomic(exportPath, ExportText(records, input.Version)); err != nil {
		return nil, err
	}

	store.Logger().Info("export complete", zap.String("path", exportPath), zap.Int("count", len(records)))
	return &ExportOutput{
		Path:       exportPath,
		Count:      len(records),
		ExportedAt: now.Unix(),
	}, nil
}

// writeAtomic writes text to a temp file beside path, syncs it, and renames it
// into place.
func writeAtomic(path, text string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	suffix, err := generateULID()
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + suffix + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	// Clean up temp file on failure (original file is preserved)
	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.WriteString(text); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}

	// Close before atomic replace (required on Windows; fine elsewhere).
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// Check if destination is a symlink (os.Rename would follow it)
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("export path is a symlink")
	}

	// On Windows, os.Rename fails if the destination exists. Fail safely
	// (preserving the existing file) rather than delete+rename.
	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("export destination already exists; overwriting is not supported on Windows yet (choose a new path or delete the existing file)")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return nil
}

// defaultExportPath generates the default export path.
// Format: <base>/exports/<call>-<timestamp>.adi, or qsolog-<timestamp>.adi without a station call.
func defaultExportPath(cfg *config.Config, now time.Time) (string, error) {
	dir, err := ExportsDir(cfg)
	if err != nil {
		return "", err
	}

	name := ProgramID
	if cfg != nil && strings.TrimSpace(cfg.Station.Call) != "" {
		// Sanitize to prevent path traversal/injection via the configured call
		name = SanitizeForFilename(strings.ToLower(strings.TrimSpace(cfg.Station.Call)))
	}

	filename := fmt.Sprintf("%s-%s.adi", name, now.Format("2006-01-02T150405"))
	return filepath.Join(dir, filename), nil
}

func versionOrDev(v string) string {
	if strings.TrimSpace(v) == "" {
		return "dev"
	}
	return v
}
