package pkg

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrNoExif is returned when a JPEG carries no EXIF sub-IFD at all.
	ErrNoExif = errors.New("no EXIF metadata")
	// ErrNoDateTimeOriginal is returned when EXIF is present but has no usable DateTimeOriginal tag.
	ErrNoDateTimeOriginal = errors.New("no DateTimeOriginal tag")
	// ErrTargetExists is returned when a move would replace an existing entry.
	ErrTargetExists = errors.New("target already exists")
	// ErrNotADirectory is returned when the folder argument is not a directory.
	ErrNotADirectory = errors.New("not a directory")
	// ErrReportInsideFolder is returned when a dry-run would write its report into the scanned folder.
	ErrReportInsideFolder = errors.New("dry-run report must be written outside the scanned folder")
)

// MetadataError reports a file whose metadata could not be parsed at all,
// typically a corrupt JPEG or a non-image carrying a .jpg name.
type MetadataError struct {
	Path string
	Err  error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("failed to read metadata from %s: %v", e.Path, e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// OutcomeKind classifies what happened to a single candidate file.
type OutcomeKind int

const (
	OutcomeRenamed OutcomeKind = iota
	OutcomePlanned
	OutcomeSkippedNoExif
	OutcomeSkippedNoDateTimeOriginal
	OutcomeSkippedAlreadyNamed
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeRenamed:
		return "renamed"
	case OutcomePlanned:
		return "planned"
	case OutcomeSkippedNoExif:
		return "skipped-no-exif"
	case OutcomeSkippedNoDateTimeOriginal:
		return "skipped-no-datetimeoriginal"
	case OutcomeSkippedAlreadyNamed:
		return "skipped-already-named"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Skipped reports whether the kind is one of the skip outcomes.
func (k OutcomeKind) Skipped() bool {
	return k == OutcomeSkippedNoExif || k == OutcomeSkippedNoDateTimeOriginal || k == OutcomeSkippedAlreadyNamed
}

// Outcome is the per-file result reported by the batch driver.
type Outcome struct {
	Kind    OutcomeKind
	OldName string
	NewName string // empty unless renamed, planned or already named
	Err     error  // set only for OutcomeFailed
}

// String renders the outcome as its console line.
func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeRenamed:
		return fmt.Sprintf("Renamed: %s -> %s", o.OldName, o.NewName)
	case OutcomePlanned:
		return fmt.Sprintf("[DRY-RUN] Would rename: %s -> %s", o.OldName, o.NewName)
	case OutcomeSkippedNoExif:
		return "Skipped (no EXIF): " + o.OldName
	case OutcomeSkippedNoDateTimeOriginal:
		return "Skipped (no DateTimeOriginal): " + o.OldName
	case OutcomeSkippedAlreadyNamed:
		return "Skipped (already named): " + o.OldName
	default:
		return fmt.Sprintf("Failed: %s (%s)", o.OldName, ErrorKind(o.Err))
	}
}

// FailedOutcome builds the outcome for a file that could not be processed.
func FailedOutcome(oldName string, err error) Outcome {
	return Outcome{Kind: OutcomeFailed, OldName: oldName, Err: err}
}

// SkippedOutcome maps a metadata absence error onto its skip outcome.
// It returns false when err is not one of the absence sentinels.
func SkippedOutcome(oldName string, err error) (Outcome, bool) {
	switch {
	case errors.Is(err, ErrNoExif):
		return Outcome{Kind: OutcomeSkippedNoExif, OldName: oldName}, true
	case errors.Is(err, ErrNoDateTimeOriginal):
		return Outcome{Kind: OutcomeSkippedNoDateTimeOriginal, OldName: oldName}, true
	}
	return Outcome{}, false
}

// ErrorKind returns the short name printed in a Failed line.
func ErrorKind(err error) string {
	var metaErr *MetadataError
	switch {
	case err == nil:
		return "UnknownError"
	case errors.As(err, &metaErr):
		return "MetadataError"
	case errors.Is(err, ErrTargetExists), errors.Is(err, fs.ErrExist):
		return "TargetExists"
	case errors.Is(err, fs.ErrPermission):
		return "PermissionDenied"
	case errors.Is(err, fs.ErrNotExist):
		return "NotFound"
	default:
		return "IOError"
	}
}
