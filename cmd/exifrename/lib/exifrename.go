package exifrename

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/user/exif-renamer/pkg"
)

// Deps are the collaborators of a run. Tests swap in an in-memory filesystem
// or a fake metadata reader.
type Deps struct {
	Fs     afero.Fs
	Reader pkg.CaptureReader
	Out    io.Writer
}

// DefaultDeps operates on the real filesystem and prints to stdout.
func DefaultDeps() Deps {
	fsys := afero.NewOsFs()
	return Deps{Fs: fsys, Reader: pkg.NewExifReader(fsys), Out: os.Stdout}
}

// captureResult is the metadata read for one candidate.
type captureResult struct {
	instant time.Time
	err     error
	read    bool
}

// readCaptureInstants reads every candidate's capture instant with up to
// workers concurrent readers. Results are indexed like files.
func readCaptureInstants(ctx context.Context, reader pkg.CaptureReader, files []pkg.CandidateFile, workers int, verbose bool) []captureResult {
	results := make([]captureResult, len(files))
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, file := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			instant, err := reader.ReadCaptureInstant(file.Path)
			results[i] = captureResult{instant: instant, err: err, read: true}
			if verbose {
				if err != nil {
					log.Printf("  - Metadata for %s: %v\n", file.Name, err)
				} else {
					log.Printf("  - Capture instant for %s: %s\n", file.Name, instant.Format("2006-01-02 15:04:05"))
				}
			}
			return nil
		})
	}
	_ = g.Wait() // workers never fail; per-file errors live in results
	return results
}

// processSingleFile decides and applies the rename of one file.
// It must be called for one file at a time, in listing order.
func processSingleFile(file pkg.CandidateFile, capture captureResult, dir *pkg.Directory, ledger *pkg.AllocationLedger, renamer *pkg.Renamer, cfg *pkg.Config) pkg.Outcome {
	if capture.err != nil {
		if skipped, ok := pkg.SkippedOutcome(file.Name, capture.err); ok {
			return skipped
		}
		return pkg.FailedOutcome(file.Name, capture.err)
	}

	baseName := pkg.BaseName(cfg.Prefix, capture.instant)
	targetName := ledger.Allocate(baseName, file.Ext, dir.ExistsFor(file))
	if cfg.Verbose {
		log.Printf("  - Allocated %s for %s (base %s)\n", targetName, file.Name, baseName)
	}

	if targetName == file.Name {
		return pkg.Outcome{Kind: pkg.OutcomeSkippedAlreadyNamed, OldName: file.Name, NewName: targetName}
	}

	outcome, err := renamer.Apply(file.Path, targetName, cfg.DryRun)
	if err != nil {
		if cfg.Verbose {
			log.Printf("  - Error renaming %s to %s: %v\n", file.Name, targetName, err)
		}
		return outcome
	}
	dir.MarkMoved(file.Name, targetName)
	return outcome
}

// processImageFiles runs every candidate through the pipeline and prints one
// line per outcome. It stops between files once ctx is done.
func processImageFiles(ctx context.Context, files []pkg.CandidateFile, dir *pkg.Directory, deps Deps, cfg *pkg.Config, report *pkg.RunReport) error {
	captures := readCaptureInstants(ctx, deps.Reader, files, cfg.Workers, cfg.Verbose)

	ledger := pkg.NewAllocationLedger()
	renamer := pkg.NewRenamer(deps.Fs)

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !captures[i].read {
			return fmt.Errorf("metadata for %s was not read", file.Name)
		}

		outcome := processSingleFile(file, captures[i], dir, ledger, renamer, cfg)
		fmt.Fprintln(deps.Out, outcome.String())

		var checksum string
		if cfg.Checksum {
			checksum = fileChecksum(deps.Fs, dir, outcome, cfg.Verbose)
		}
		report.Record(outcome, file.Size, checksum)
	}
	return nil
}

// fileChecksum hashes the file where it lives after the outcome. Hashing
// errors only cost the report column.
func fileChecksum(fsys afero.Fs, dir *pkg.Directory, outcome pkg.Outcome, verbose bool) string {
	name := outcome.OldName
	if outcome.Kind == pkg.OutcomeRenamed {
		name = outcome.NewName
	}
	sum, err := pkg.CalculateFileHash(fsys, dir.Join(name))
	if err != nil {
		if verbose {
			log.Printf("  - Error hashing %s: %v\n", name, err)
		}
		return ""
	}
	return sum
}

// Run renames the JPEG files of cfg.Folder after their capture instant.
// A folder that is not a directory is reported as an error wrapping
// pkg.ErrNotADirectory, and a dry-run whose report would land inside the
// folder as pkg.ErrReportInsideFolder. Per-file problems never abort the run.
func Run(ctx context.Context, cfg *pkg.Config, deps Deps) (*pkg.RunReport, error) {
	dir, err := pkg.OpenDirectory(deps.Fs, cfg.Folder)
	if err != nil {
		return nil, err
	}
	if cfg.DryRun && cfg.Report != "" {
		inside, err := pkg.IsInsideFolder(dir.Path(), cfg.Report)
		if err != nil {
			return nil, err
		}
		if inside {
			return nil, fmt.Errorf("report path %s: %w", cfg.Report, pkg.ErrReportInsideFolder)
		}
	}

	files, err := dir.ListCandidates()
	if err != nil {
		return nil, err
	}
	if cfg.Verbose {
		log.Printf("Found %d JPEG file(s) in %s (dry-run: %t)\n", len(files), dir.Path(), cfg.DryRun)
	}

	report := pkg.NewRunReport(dir.Path(), cfg.DryRun)
	runErr := processImageFiles(ctx, files, dir, deps, cfg, report)
	report.Finish()

	if cfg.Verbose {
		log.Println(report.SummaryLine())
	}
	if cfg.Report != "" {
		if genErr := pkg.GenerateReport(cfg.Report, report); genErr != nil {
			return report, fmt.Errorf("failed to generate run report: %w", genErr)
		}
	}
	return report, runErr
}

// RunApplicationLogic runs against the real filesystem and stdout.
func RunApplicationLogic(ctx context.Context, cfg *pkg.Config) (*pkg.RunReport, error) {
	return Run(ctx, cfg, DefaultDeps())
}
