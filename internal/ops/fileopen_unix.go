//go:build !windows

package ops

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/w9en/qsolog/internal/errors"
)

// openNoFollow opens path without following a symlink in the final
// component. Directory components are covered by ValidatePath.
func openNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	fd, err := syscall.Open(path, flag|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, uint32(perm))
	switch {
	case err == nil:
		return os.NewFile(uintptr(fd), path), nil
	case stderrors.Is(err, syscall.ELOOP):
		return nil, errors.NewInvalidRequest("path must not be a symlink").WithDetail("path", path)
	case stderrors.Is(err, syscall.ENOENT) && flag&os.O_CREATE == 0:
		return nil, errors.NewFileNotFound(path)
	}
	return nil, err
}

// openFileNoFollow opens an export temp file for writing.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return openNoFollow(path, flag, perm)
}

// openFileNoFollowRead opens an import source.
func openFileNoFollowRead(path string) (*os.File, error) {
	return openNoFollow(path, syscall.O_RDONLY, 0)
}
