package pkg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Renamer moves files to their allocated names. It never overwrites an
// existing entry and never touches file content.
type Renamer struct {
	fs afero.Fs
}

// NewRenamer returns a Renamer operating on fsys.
func NewRenamer(fsys afero.Fs) *Renamer {
	return &Renamer{fs: fsys}
}

// Apply renames sourcePath to targetName inside the same folder. With dryRun
// set it only reports the planned rename. A target that already exists yields
// an error wrapping ErrTargetExists; the caller reports it as failed.
func (r *Renamer) Apply(sourcePath, targetName string, dryRun bool) (Outcome, error) {
	oldName := filepath.Base(sourcePath)
	if dryRun {
		return Outcome{Kind: OutcomePlanned, OldName: oldName, NewName: targetName}, nil
	}

	destPath := filepath.Join(filepath.Dir(sourcePath), targetName)
	if err := r.MoveFile(sourcePath, destPath); err != nil {
		return FailedOutcome(oldName, err), err
	}
	return Outcome{Kind: OutcomeRenamed, OldName: oldName, NewName: targetName}, nil
}

// MoveFile moves srcPath to destPath, failing if destPath already exists.
func (r *Renamer) MoveFile(srcPath, destPath string) error {
	if _, ok := r.fs.(*afero.OsFs); ok {
		return moveExclusive(srcPath, destPath)
	}

	// Generic afero filesystems have no exclusive rename; check then move.
	if _, err := lstat(r.fs, destPath); err == nil {
		return fmt.Errorf("failed to move %s to %s: %w", srcPath, destPath, ErrTargetExists)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check target %s: %w", destPath, err)
	}
	if err := r.fs.Rename(srcPath, destPath); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", srcPath, destPath, err)
	}
	return nil
}

// Kernel hooks, replaced in tests to emulate volumes without hard links or
// without an exclusive rename.
var (
	renameNoReplace = renameNoReplaceSys
	linkFile        = os.Link
)

// errNoReplaceUnsupported means the platform or volume has no exclusive rename.
var errNoReplaceUnsupported = errors.New("exclusive rename not supported")

// moveExclusive renames srcPath to destPath unless destPath exists. The kernel
// checks and renames in one step where it can; elsewhere link-then-remove is used.
func moveExclusive(srcPath, destPath string) error {
	err := renameNoReplace(srcPath, destPath)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errNoReplaceUnsupported):
		return linkThenRemove(srcPath, destPath)
	case errors.Is(err, fs.ErrExist):
		// Case-only renames on case-insensitive volumes see the source itself.
		if sameEntry(srcPath, destPath) {
			return renameChecked(srcPath, destPath)
		}
		return fmt.Errorf("failed to move %s to %s: %w", srcPath, destPath, ErrTargetExists)
	default:
		return fmt.Errorf("failed to move %s to %s: %w", srcPath, destPath, err)
	}
}

// linkThenRemove links destPath to srcPath and then drops srcPath. link(2)
// fails when destPath exists.
func linkThenRemove(srcPath, destPath string) error {
	err := linkFile(srcPath, destPath)
	switch {
	case err == nil:
		if rmErr := os.Remove(srcPath); rmErr != nil {
			_ = os.Remove(destPath)
			return fmt.Errorf("failed to remove %s after linking to %s: %w", srcPath, destPath, rmErr)
		}
		return nil
	case errors.Is(err, fs.ErrExist):
		if sameEntry(srcPath, destPath) {
			return renameChecked(srcPath, destPath)
		}
		return fmt.Errorf("failed to move %s to %s: %w", srcPath, destPath, ErrTargetExists)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("failed to move %s to %s: %w", srcPath, destPath, err)
	default:
		// No hard links here: FAT/exFAT (EPERM), protected_hardlinks (EPERM),
		// EOPNOTSUPP, EXDEV, EMLINK. Fall back to a checked plain rename.
		if _, statErr := os.Lstat(destPath); statErr == nil {
			return fmt.Errorf("failed to move %s to %s: %w", srcPath, destPath, ErrTargetExists)
		}
		return renameChecked(srcPath, destPath)
	}
}

func renameChecked(srcPath, destPath string) error {
	if err := os.Rename(srcPath, destPath); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", srcPath, destPath, err)
	}
	return nil
}

func sameEntry(a, b string) bool {
	infoA, err := os.Stat(a)
	if err != nil {
		return false
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(infoA, infoB)
}
