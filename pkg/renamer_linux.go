package pkg

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// renameNoReplaceSys is renameat2(RENAME_NOREPLACE): it fails with EEXIST
// instead of replacing destPath.
func renameNoReplaceSys(srcPath, destPath string) error {
	err := unix.Renameat2(unix.AT_FDCWD, srcPath, unix.AT_FDCWD, destPath, unix.RENAME_NOREPLACE)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.ENOSYS), errors.Is(err, unix.EINVAL), errors.Is(err, unix.EOPNOTSUPP):
		// Old kernels and file systems that do not implement the flag.
		return errNoReplaceUnsupported
	default:
		return &os.LinkError{Op: "rename", Old: srcPath, New: destPath, Err: err}
	}
}
