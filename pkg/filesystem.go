package pkg

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// CandidateFile is a JPEG found directly inside the scanned folder.
type CandidateFile struct {
	Name string // base name as found on disk
	Path string
	Ext  string // lower-cased ".jpg" or ".jpeg"
	Size int64
}

// Directory is the scanned folder as seen by one run. Besides answering
// existence queries against the filesystem it remembers the names this run
// has moved files away from, so a dry-run sees the same directory state a
// real run would.
type Directory struct {
	fs   afero.Fs
	path string

	mu      sync.Mutex
	vacated map[string]bool
}

// OpenDirectory validates that dir is a directory on fsys.
func OpenDirectory(fsys afero.Fs, dir string) (*Directory, error) {
	info, err := fsys.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("folder '%s' does not exist: %w", dir, ErrNotADirectory)
		}
		return nil, fmt.Errorf("error accessing folder '%s': %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path '%s': %w", dir, ErrNotADirectory)
	}
	return &Directory{fs: fsys, path: dir, vacated: make(map[string]bool)}, nil
}

// Path returns the folder path.
func (d *Directory) Path() string { return d.path }

// Join returns the path of name inside the folder.
func (d *Directory) Join(name string) string { return filepath.Join(d.path, name) }

// ListCandidates returns the folder's immediate .jpg/.jpeg children in name order.
// Subdirectories are never descended into; symlinks and other non-regular
// entries are not candidates.
func (d *Directory) ListCandidates() ([]CandidateFile, error) {
	entries, err := afero.ReadDir(d.fs, d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read folder %s: %w", d.path, err)
	}

	candidates := []CandidateFile{}
	for _, entry := range entries {
		if !entry.Mode().IsRegular() || !IsJPEGName(entry.Name()) {
			continue
		}
		candidates = append(candidates, CandidateFile{
			Name: entry.Name(),
			Path: d.Join(entry.Name()),
			Ext:  NormalizedExtension(entry.Name()),
			Size: entry.Size(),
		})
	}
	return candidates, nil
}

// Exists reports whether any entry, a dangling symlink included, occupies
// name in the folder. Names vacated by
// this run count as free. Stat failures other than "not exist" count as
// occupied so they can never lead to an overwrite.
func (d *Directory) Exists(name string) bool {
	d.mu.Lock()
	vacated := d.vacated[name]
	d.mu.Unlock()
	if vacated {
		return false
	}
	_, err := lstat(d.fs, d.Join(name))
	return err == nil || !os.IsNotExist(err)
}

// lstat does not follow symlinks where fsys supports it, so a dangling link
// still occupies its name.
func lstat(fsys afero.Fs, path string) (os.FileInfo, error) {
	if l, ok := fsys.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return fsys.Stat(path)
}

// ExistsFor returns an existence predicate from the point of view of source:
// the entry source itself occupies is not a collision.
func (d *Directory) ExistsFor(source CandidateFile) func(name string) bool {
	return func(name string) bool {
		if name == source.Name {
			return false
		}
		if !d.Exists(name) {
			return false
		}
		return !d.isSameEntry(source, name)
	}
}

// isSameEntry catches case-insensitive volumes where name resolves to source.
func (d *Directory) isSameEntry(source CandidateFile, name string) bool {
	srcInfo, err := d.fs.Stat(source.Path)
	if err != nil {
		return false
	}
	dstInfo, err := d.fs.Stat(d.Join(name))
	if err != nil {
		return false
	}
	return os.SameFile(srcInfo, dstInfo)
}

// MarkMoved records that oldName has been (or, in a dry-run, would be) moved to newName.
func (d *Directory) MarkMoved(oldName, newName string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vacated[oldName] = true
	delete(d.vacated, newName)
}
