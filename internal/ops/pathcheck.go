package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/w9en/qsolog/internal/config"
	"github.com/w9en/qsolog/internal/errors"
)

// PathCheckMode indicates whether the path check is for reading or writing.
type PathCheckMode int

const (
	PathCheckRead  PathCheckMode = iota // import source
	PathCheckWrite                      // export destination
)

// ValidatePath vets an interchange file path before it is opened:
//   - no ".." component
//   - a .adi or .adif extension
//   - the file sits directly in the exports directory or an allowed_paths
//     entry, unless allow_unsafe_paths is set
//   - neither the file nor its directory is a symlink
//   - for reads, the file exists
//
// Only direct children of an allowed directory are accepted, so no
// intermediate component can be swapped for a symlink after the check.
// The final component is opened with O_NOFOLLOW.
func ValidatePath(path string, mode PathCheckMode, cfg *config.Config) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}
	if !hasInterchangeExt(absPath) {
		return errors.NewInvalidRequest("path must have .adi or .adif extension")
	}

	if cfg == nil || !cfg.AllowUnsafePaths {
		if err := checkDirectory(filepath.Dir(absPath), cfg); err != nil {
			return err
		}
	}

	if mode == PathCheckRead {
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			return errors.NewFileNotFound(path)
		}
	}
	if isSymlink(absPath) {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	return nil
}

// checkDirectory requires dir to be one of the allowed directories and not
// itself a symlink.
func checkDirectory(dir string, cfg *config.Config) error {
	allowed, err := getAllowedDirs(cfg)
	if err != nil {
		return err
	}
	if !isDirectlyInAllowedDir(dir, allowed) {
		return errors.NewInvalidRequest(fmt.Sprintf(
			"file must be directly in an allowed directory (no subdirectories); allowed: %v", allowed))
	}
	if isSymlink(dir) {
		return errors.NewInvalidRequest("parent directory must not be a symlink")
	}
	return nil
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// getAllowedDirs returns the exports directory and every absolute
// allowed_paths entry, cleaned. Entries that are symlinks are resolved so
// they match the real directory.
func getAllowedDirs(cfg *config.Config) ([]string, error) {
	exports, err := ExportsDir(cfg)
	if err != nil {
		return nil, err
	}
	candidates := []string{exports}
	if cfg != nil {
		for _, p := range cfg.AllowedPaths {
			if filepath.IsAbs(p) {
				candidates = append(candidates, p)
			}
		}
	}

	dirs := make([]string, 0, len(candidates))
	for _, d := range candidates {
		abs, err := filepath.Abs(filepath.Clean(d))
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid allowed path: %v", err))
		}
		if isSymlink(abs) {
			if abs, err = filepath.EvalSymlinks(abs); err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
		}
		dirs = append(dirs, abs)
	}
	return dirs, nil
}

// isDirectlyInAllowedDir reports whether dir is exactly one of allowed.
func isDirectlyInAllowedDir(dir string, allowed []string) bool {
	dir = filepath.Clean(dir)
	for _, a := range allowed {
		if dir == filepath.Clean(a) {
			return true
		}
	}
	return false
}

// ExportsDir returns the exports directory for cfg, falling back to the
// default base directory when cfg does not name one.
func ExportsDir(cfg *config.Config) (string, error) {
	if cfg != nil && cfg.BaseDir != "" {
		return cfg.ExportsDir(), nil
	}
	base, err := config.DefaultBaseDir()
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return filepath.Join(base, "exports"), nil
}

// hasInterchangeExt reports whether path ends in .adi or .adif (any case).
func hasInterchangeExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".adi", ".adif":
		return true
	}
	return false
}

// containsTraversal reports whether any component of path is "..". Both
// separators are checked so Windows paths typed with "/" are caught.
func containsTraversal(path string) bool {
	parts := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == filepath.Separator
	})
	for _, part := range parts {
		if part == ".." {
			return true
		}
	}
	return false
}

// SanitizeForFilename turns s into a safe file-name stem: separators and
// ".." become dashes, control characters are dropped, runs of dashes
// collapse. An empty result becomes "unnamed".
func SanitizeForFilename(s string) string {
	s = strings.NewReplacer("/", "-", "\\", "-", "..", "-").Replace(s)
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	if s = strings.Trim(s, "-"); s == "" {
		return "unnamed"
	}
	return s
}
