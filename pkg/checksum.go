package pkg

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// CalculateFileHash calculates the SHA-256 hash of a file's content.
// The run report uses it to let users verify that renaming left content intact.
func CalculateFileHash(fsys afero.Fs, filePath string) (string, error) {
	file, err := fsys.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s for hashing: %w", filePath, err)
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to copy file content to hasher for %s: %w", filePath, err)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
