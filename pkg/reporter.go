package pkg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ReportEntry is one file's line in the run report.
type ReportEntry struct {
	OldName   string `yaml:"old_name"`
	NewName   string `yaml:"new_name,omitempty"`
	Outcome   string `yaml:"outcome"`
	ErrorKind string `yaml:"error_kind,omitempty"`
	Error     string `yaml:"error,omitempty"`
	SHA256    string `yaml:"sha256,omitempty"`
}

// RunSummary counts outcomes per kind.
type RunSummary struct {
	Scanned      int    `yaml:"scanned"`
	Renamed      int    `yaml:"renamed"`
	Planned      int    `yaml:"planned"`
	Skipped      int    `yaml:"skipped"`
	Failed       int    `yaml:"failed"`
	BytesRenamed string `yaml:"bytes_renamed"`
}

// RunReport collects every outcome of one batch run.
type RunReport struct {
	RunID      string        `yaml:"run_id"`
	Folder     string        `yaml:"folder"`
	DryRun     bool          `yaml:"dry_run"`
	StartedAt  time.Time     `yaml:"started_at"`
	FinishedAt time.Time     `yaml:"finished_at"`
	Summary    RunSummary    `yaml:"summary"`
	Files      []ReportEntry `yaml:"files"`

	bytesRenamed uint64
}

// NewRunReport starts a report for a run over folder.
func NewRunReport(folder string, dryRun bool) *RunReport {
	return &RunReport{
		RunID:     uuid.NewString(),
		Folder:    folder,
		DryRun:    dryRun,
		StartedAt: time.Now(),
		Files:     []ReportEntry{},
	}
}

// Record adds the outcome for a file of the given size. checksum may be empty.
func (r *RunReport) Record(o Outcome, size int64, checksum string) {
	entry := ReportEntry{OldName: o.OldName, NewName: o.NewName, Outcome: o.Kind.String(), SHA256: checksum}
	r.Summary.Scanned++
	switch {
	case o.Kind == OutcomeRenamed:
		r.Summary.Renamed++
		if size > 0 {
			r.bytesRenamed += uint64(size)
		}
	case o.Kind == OutcomePlanned:
		r.Summary.Planned++
	case o.Kind.Skipped():
		r.Summary.Skipped++
	default:
		r.Summary.Failed++
		entry.ErrorKind = ErrorKind(o.Err)
		if o.Err != nil {
			entry.Error = o.Err.Error()
		}
	}
	r.Files = append(r.Files, entry)
}

// Finish stamps the end time and renders the byte total.
func (r *RunReport) Finish() {
	r.FinishedAt = time.Now()
	r.Summary.BytesRenamed = humanize.Bytes(r.bytesRenamed)
}

// SummaryLine returns a one-line human summary of the run.
func (r *RunReport) SummaryLine() string {
	s := r.Summary
	if r.DryRun {
		return fmt.Sprintf("Run Summary (dry-run): Scanned: %s, Planned: %s, Skipped: %s, Failed: %s",
			humanize.Comma(int64(s.Scanned)), humanize.Comma(int64(s.Planned)), humanize.Comma(int64(s.Skipped)), humanize.Comma(int64(s.Failed)))
	}
	return fmt.Sprintf("Run Summary: Scanned: %s, Renamed: %s (%s), Skipped: %s, Failed: %s",
		humanize.Comma(int64(s.Scanned)), humanize.Comma(int64(s.Renamed)), humanize.Bytes(r.bytesRenamed),
		humanize.Comma(int64(s.Skipped)), humanize.Comma(int64(s.Failed)))
}

// IsInsideFolder reports whether path lies in folder or below it.
func IsInsideFolder(folder, path string) (bool, error) {
	absFolder, err := filepath.Abs(folder)
	if err != nil {
		return false, fmt.Errorf("failed to resolve folder %s: %w", folder, err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	rel, err := filepath.Rel(absFolder, absPath)
	if err != nil {
		return false, nil
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)), nil
}

// GenerateReport writes the run report as YAML to reportPath.
func GenerateReport(reportPath string, report *RunReport) error {
	reportDir := filepath.Dir(reportPath)
	if err := os.MkdirAll(reportDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory for report '%s': %w", reportDir, err)
	}

	file, err := os.Create(reportPath)
	if err != nil {
		return fmt.Errorf("failed to create report file '%s': %w", reportPath, err)
	}
	defer file.Close()

	enc := yaml.NewEncoder(file)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report '%s': %w", reportPath, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to flush report '%s': %w", reportPath, err)
	}
	return nil
}
