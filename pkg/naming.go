package pkg

import (
	"path/filepath"
	"strings"
	"time"
)

// DefaultPrefix is prepended to every timestamp-derived name.
const DefaultPrefix = "IMG_"

// timestampLayout renders as YYYYMMDD_HHMMSS.
const timestampLayout = "20060102_150405"

// jpegExtensions maps the lower-cased extensions eligible for renaming.
var jpegExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
}

// FormatTimestamp renders a capture instant as a fixed 15-character string.
// The instant's stored field values are used as-is; no zone conversion happens.
func FormatTimestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

// BaseName returns the name stem shared by every file captured in the same second.
func BaseName(prefix string, t time.Time) string {
	return prefix + FormatTimestamp(t)
}

// NormalizedExtension returns ".jpg" or ".jpeg" for a JPEG file name,
// whatever the case of its suffix. Anything else falls back to ".jpg".
func NormalizedExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if jpegExtensions[ext] {
		return ext
	}
	return ".jpg"
}

// IsJPEGName reports whether name carries a .jpg or .jpeg suffix, case-insensitively.
func IsJPEGName(name string) bool {
	return jpegExtensions[strings.ToLower(filepath.Ext(name))]
}
