package pkg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	"github.com/spf13/afero"
)

// jpegSOI is the start-of-image marker every JPEG begins with.
var jpegSOI = []byte{0xFF, 0xD8}

var errNotJPEG = errors.New("missing JPEG start-of-image marker")

// CaptureReader extracts the capture instant of a photo.
//
// Implementations return ErrNoExif or ErrNoDateTimeOriginal (possibly wrapped)
// when the instant is simply absent, and any other error when the file could
// not be read or parsed.
type CaptureReader interface {
	ReadCaptureInstant(path string) (time.Time, error)
}

// CaptureReaderFunc adapts a plain function to CaptureReader.
type CaptureReaderFunc func(path string) (time.Time, error)

func (f CaptureReaderFunc) ReadCaptureInstant(path string) (time.Time, error) {
	return f(path)
}

// ExifReader reads DateTimeOriginal from JPEG files using goexif.
type ExifReader struct {
	fs afero.Fs
}

// NewExifReader returns an ExifReader over fsys.
func NewExifReader(fsys afero.Fs) *ExifReader {
	return &ExifReader{fs: fsys}
}

// ReadCaptureInstant opens photoPath, checks that it starts like a JPEG and returns its
// EXIF DateTimeOriginal.
func (r *ExifReader) ReadCaptureInstant(photoPath string) (time.Time, error) {
	file, err := r.fs.Open(photoPath)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to open file %s: %w", photoPath, err)
	}
	defer file.Close()

	// Only the SOI marker is checked; exif.Decode handles the segments, so
	// arithmetic-coded or lossless JPEGs still yield their EXIF.
	soi := make([]byte, len(jpegSOI))
	if _, err := io.ReadFull(file, soi); err != nil || !bytes.Equal(soi, jpegSOI) {
		return time.Time{}, &MetadataError{Path: photoPath, Err: errNotJPEG}
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return time.Time{}, fmt.Errorf("failed to rewind %s: %w", photoPath, err)
	}

	x, err := exif.Decode(file)
	if err != nil {
		if isMissingExifSegment(err) {
			return time.Time{}, ErrNoExif
		}
		if x == nil || exif.IsCriticalError(err) {
			return time.Time{}, &MetadataError{Path: photoPath, Err: err}
		}
		// Non-critical: some sub-IFD failed to load, the rest is usable.
	}

	// DateTimeOriginal lives in the Exif sub-IFD; without the pointer there is no such directory.
	if _, err := x.Get(exif.ExifIFDPointer); err != nil {
		return time.Time{}, ErrNoExif
	}

	dateTag, err := x.Get(exif.DateTimeOriginal)
	if err != nil {
		return time.Time{}, ErrNoDateTimeOriginal
	}
	t, err := parseExifDateTime(dateTag)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrNoDateTimeOriginal, err)
	}
	return t, nil
}

// isMissingExifSegment reports whether exif.Decode failed only because the JPEG
// has no APP1 segment (io.EOF while seeking the marker) or an APP1 segment
// that is not EXIF, e.g. XMP.
func isMissingExifSegment(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	return strings.Contains(err.Error(), "failed to find exif intro marker")
}

// parseExifDateTime parses an EXIF datetime tag.
// Handles "YYYY:MM:DD HH:MM:SS" and the date-only fallback "YYYY:MM:DD".
// The result carries the camera's field values in UTC; EXIF has no reliable zone.
func parseExifDateTime(tag *tiff.Tag) (time.Time, error) {
	if tag == nil {
		return time.Time{}, fmt.Errorf("tag is nil")
	}
	dateStr, err := tag.StringVal() // Handles potential null terminators.
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get string value from EXIF date tag: %w", err)
	}
	dateStr = strings.TrimSpace(dateStr)

	layout := "2006:01:02 15:04:05"
	t, err := time.Parse(layout, dateStr)
	if err != nil {
		layoutDateOnly := "2006:01:02"
		t, errDateOnly := time.Parse(layoutDateOnly, dateStr)
		if errDateOnly != nil {
			return time.Time{}, fmt.Errorf("failed to parse EXIF date string '%s' with layout '%s' or '%s': %w", dateStr, layout, layoutDateOnly, err)
		}
		return t, nil
	}
	return t, nil
}
