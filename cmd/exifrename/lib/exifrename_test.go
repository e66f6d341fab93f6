package exifrename

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/exif-renamer/internal/exiftest"
	"github.com/user/exif-renamer/pkg"
)

const instant = "2024:03:01 10:00:00"

func newConfig(folder string) *pkg.Config {
	cfg := pkg.DefaultConfig()
	cfg.Folder = folder
	return &cfg
}

// runOS runs against a real directory and returns the printed lines.
func runOS(t *testing.T, cfg *pkg.Config) ([]string, *pkg.RunReport) {
	t.Helper()
	var out bytes.Buffer
	deps := DefaultDeps()
	deps.Out = &out
	report, err := Run(context.Background(), cfg, deps)
	require.NoError(t, err)
	return outputLines(out.String()), report
}

func outputLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// snapshot returns name -> content for every entry of dir.
func snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		out[e.Name()] = string(content)
	}
	return out
}

func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func TestRun_SameSecondBurstAndMissingMetadata(t *testing.T) {
	dir := t.TempDir()
	exiftest.WriteFile(t, dir, "a.jpg", exiftest.JPEGWithDateTimeOriginal(instant))
	exiftest.WriteFile(t, dir, "b.jpg", exiftest.JPEGWithDateTimeOriginal(instant))
	exiftest.WriteFile(t, dir, "c.jpeg", exiftest.PlainJPEG())

	lines, report := runOS(t, newConfig(dir))

	assert.Equal(t, []string{
		"Renamed: a.jpg -> IMG_20240301_100000.jpg",
		"Renamed: b.jpg -> IMG_20240301_100000_1.jpg",
		"Skipped (no EXIF): c.jpeg",
	}, lines)
	assert.Equal(t, []string{"IMG_20240301_100000.jpg", "IMG_20240301_100000_1.jpg", "c.jpeg"}, sortedNames(snapshot(t, dir)))
	assert.Equal(t, 2, report.Summary.Renamed)
	assert.Equal(t, 1, report.Summary.Skipped)
}

func TestRun_PreExistingTargetForcesSuffixOne(t *testing.T) {
	dir := t.TempDir()
	exiftest.WriteFile(t, dir, "IMG_20240301_100000.jpg", []byte("unrelated, not even a JPEG"))
	exiftest.WriteFile(t, dir, "d.jpg", exiftest.JPEGWithDateTimeOriginal(instant))

	lines, _ := runOS(t, newConfig(dir))

	assert.Equal(t, []string{
		"Failed: IMG_20240301_100000.jpg (MetadataError)",
		"Renamed: d.jpg -> IMG_20240301_100000_1.jpg",
	}, lines)
	files := snapshot(t, dir)
	assert.Equal(t, "unrelated, not even a JPEG", files["IMG_20240301_100000.jpg"], "pre-existing file must be untouched")
	assert.Contains(t, files, "IMG_20240301_100000_1.jpg")
}

func TestRun_NoDateTimeOriginalAndCorruptFilesDoNotAbort(t *testing.T) {
	dir := t.TempDir()
	exiftest.WriteFile(t, dir, "1-nodate.jpg", exiftest.JPEGWithoutDateTimeOriginal())
	exiftest.WriteFile(t, dir, "2-broken.JPG", []byte("garbage"))
	exiftest.WriteFile(t, dir, "3-good.JPEG", exiftest.JPEGWithDateTimeOriginal("2023:12:24 18:30:05"))
	exiftest.WriteFile(t, dir, "4-notes.txt", []byte("ignored"))

	lines, report := runOS(t, newConfig(dir))

	assert.Equal(t, []string{
		"Skipped (no DateTimeOriginal): 1-nodate.jpg",
		"Failed: 2-broken.JPG (MetadataError)",
		"Renamed: 3-good.JPEG -> IMG_20231224_183005.jpeg",
	}, lines)
	assert.Equal(t, 1, report.Summary.Failed)
	assert.Contains(t, snapshot(t, dir), "4-notes.txt")
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	exiftest.WriteFile(t, dir, "a.jpg", exiftest.JPEGWithDateTimeOriginal(instant))
	exiftest.WriteFile(t, dir, "b.jpg", exiftest.JPEGWithDateTimeOriginal(instant))
	exiftest.WriteFile(t, dir, "c.jpg", exiftest.JPEGWithDateTimeOriginal("2024:03:01 10:00:01"))

	runOS(t, newConfig(dir))
	before := snapshot(t, dir)

	lines, report := runOS(t, newConfig(dir))

	assert.Equal(t, []string{
		"Skipped (already named): IMG_20240301_100000.jpg",
		"Skipped (already named): IMG_20240301_100000_1.jpg",
		"Skipped (already named): IMG_20240301_100001.jpg",
	}, lines)
	assert.Equal(t, before, snapshot(t, dir))
	assert.Equal(t, 0, report.Summary.Renamed)
}

func TestRun_DryRunMatchesRealRunAndChangesNothing(t *testing.T) {
	layouts := map[string][]byte{
		// Already carries a name another file's timestamp maps to; renaming
		// it first frees that name for b.jpg.
		"IMG_20240301_100000.jpg": exiftest.JPEGWithDateTimeOriginal("2024:03:01 10:00:01"),
		"b.jpg":                   exiftest.JPEGWithDateTimeOriginal(instant),
		"c.jpg":                   exiftest.JPEGWithDateTimeOriginal(instant),
		"d.jpeg":                  exiftest.PlainJPEG(),
		"e.jpg":                   exiftest.JPEGWithDateTimeOriginal("2024:03:01 10:00:01"),
	}
	dryDir, realDir := t.TempDir(), t.TempDir()
	for name, content := range layouts {
		exiftest.WriteFile(t, dryDir, name, content)
		exiftest.WriteFile(t, realDir, name, content)
	}
	before := snapshot(t, dryDir)

	dryCfg := newConfig(dryDir)
	dryCfg.DryRun = true
	dryLines, _ := runOS(t, dryCfg)
	realLines, _ := runOS(t, newConfig(realDir))

	assert.Equal(t, before, snapshot(t, dryDir), "dry-run must not touch the directory")
	require.Len(t, dryLines, len(realLines))
	for i := range realLines {
		assert.Equal(t, realLines[i], strings.Replace(dryLines[i], "[DRY-RUN] Would rename: ", "Renamed: ", 1))
	}
	assert.Equal(t, []string{
		"Renamed: IMG_20240301_100000.jpg -> IMG_20240301_100001.jpg",
		"Renamed: b.jpg -> IMG_20240301_100000.jpg",
		"Renamed: c.jpg -> IMG_20240301_100000_1.jpg",
		"Skipped (no EXIF): d.jpeg",
		"Renamed: e.jpg -> IMG_20240301_100001_1.jpg",
	}, realLines)
}

func TestRun_ConcurrentReadersKeepListingOrder(t *testing.T) {
	fsys := afero.NewMemMapFs()
	const n = 40
	for i := 0; i < n; i++ {
		// Every fourth file shares a second with its predecessors.
		ts := fmt.Sprintf("2024:03:01 10:00:%02d", i/4)
		exiftest.WriteFs(t, fsys, "/burst", fmt.Sprintf("p%03d.jpg", i), exiftest.JPEGWithDateTimeOriginal(ts))
	}

	plan := func(workers int) []string {
		cfg := newConfig("/burst")
		cfg.DryRun = true
		cfg.Workers = workers
		var out bytes.Buffer
		_, err := Run(context.Background(), cfg, Deps{Fs: fsys, Reader: pkg.NewExifReader(fsys), Out: &out})
		require.NoError(t, err)
		return outputLines(out.String())
	}

	sequential := plan(1)
	require.Len(t, sequential, n)
	assert.Equal(t, "[DRY-RUN] Would rename: p000.jpg -> IMG_20240301_100000.jpg", sequential[0])
	assert.Equal(t, "[DRY-RUN] Would rename: p003.jpg -> IMG_20240301_100000_3.jpg", sequential[3])
	assert.Equal(t, "[DRY-RUN] Would rename: p004.jpg -> IMG_20240301_100001.jpg", sequential[4])
	assert.Equal(t, sequential, plan(8))
}

// raceFs hides one name from the first Stat, simulating a file that
// appears between the allocator's check and the move.
type raceFs struct {
	afero.Fs
	hide  string
	stats int
}

func (r *raceFs) Stat(name string) (os.FileInfo, error) {
	if filepath.Base(name) == r.hide {
		r.stats++
		if r.stats == 1 {
			return nil, os.ErrNotExist
		}
	}
	return r.Fs.Stat(name)
}

func TestRun_LateCollisionIsReportedAsFailed(t *testing.T) {
	mem := afero.NewMemMapFs()
	exiftest.WriteFs(t, mem, "/race", "a.jpg", []byte("A"))
	exiftest.WriteFs(t, mem, "/race", "IMG_20240301_100000.jpg", []byte("T"))
	fsys := &raceFs{Fs: mem, hide: "IMG_20240301_100000.jpg"}

	reader := pkg.CaptureReaderFunc(func(path string) (time.Time, error) {
		if filepath.Base(path) == "a.jpg" {
			return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), nil
		}
		return time.Time{}, pkg.ErrNoExif
	})

	var out bytes.Buffer
	_, err := Run(context.Background(), newConfig("/race"), Deps{Fs: fsys, Reader: reader, Out: &out})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Skipped (no EXIF): IMG_20240301_100000.jpg",
		"Failed: a.jpg (TargetExists)",
	}, outputLines(out.String()))
	content, err := afero.ReadFile(mem, "/race/IMG_20240301_100000.jpg")
	require.NoError(t, err)
	assert.Equal(t, "T", string(content), "existing target must not be overwritten")
	exists, _ := afero.Exists(mem, "/race/a.jpg")
	assert.True(t, exists, "source must stay in place after a failed move")
}

func TestRun_NotADirectory(t *testing.T) {
	dir := t.TempDir()
	file := exiftest.WriteFile(t, dir, "a.jpg", exiftest.PlainJPEG())

	for _, path := range []string{file, filepath.Join(dir, "missing")} {
		_, err := Run(context.Background(), newConfig(path), DefaultDeps())
		assert.True(t, errors.Is(err, pkg.ErrNotADirectory), "path %s: err = %v", path, err)
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	dir := t.TempDir()
	exiftest.WriteFile(t, dir, "a.jpg", exiftest.JPEGWithDateTimeOriginal(instant))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	deps := DefaultDeps()
	deps.Out = &out
	_, err := Run(ctx, newConfig(dir), deps)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.String())
	assert.Contains(t, snapshot(t, dir), "a.jpg")
}

func TestRun_WritesReport(t *testing.T) {
	dir := t.TempDir()
	exiftest.WriteFile(t, dir, "a.jpg", exiftest.JPEGWithDateTimeOriginal(instant))
	reportPath := filepath.Join(t.TempDir(), "report.yaml")

	cfg := newConfig(dir)
	cfg.Report = reportPath
	cfg.Verbose = true
	_, report := runOS(t, cfg)

	content, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), report.RunID)
	assert.Contains(t, string(content), "new_name: IMG_20240301_100000.jpg")
	assert.Contains(t, string(content), "outcome: renamed")
	assert.NotContains(t, string(content), "sha256:")
}

func TestRun_ChecksumFollowsRenamedFile(t *testing.T) {
	dir := t.TempDir()
	renamed := exiftest.JPEGWithDateTimeOriginal(instant)
	plain := exiftest.PlainJPEG()
	exiftest.WriteFile(t, dir, "a.jpg", renamed)
	exiftest.WriteFile(t, dir, "b.jpg", plain)

	cfg := newConfig(dir)
	cfg.Checksum = true
	_, report := runOS(t, cfg)

	require.Len(t, report.Files, 2)
	assert.Equal(t, "IMG_20240301_100000.jpg", report.Files[0].NewName)
	assert.Equal(t, fmt.Sprintf("%x", sha256.Sum256(renamed)), report.Files[0].SHA256)
	assert.Equal(t, fmt.Sprintf("%x", sha256.Sum256(plain)), report.Files[1].SHA256)
}

func TestProcessSingleFile_AlreadyNamedSkipsExecutor(t *testing.T) {
	fsys := afero.NewMemMapFs()
	exiftest.WriteFs(t, fsys, "/d", "IMG_20240301_100000.jpg", []byte("x"))
	dir, err := pkg.OpenDirectory(fsys, "/d")
	require.NoError(t, err)
	files, err := dir.ListCandidates()
	require.NoError(t, err)

	ledger := pkg.NewAllocationLedger()
	capture := captureResult{instant: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), read: true}
	outcome := processSingleFile(files[0], capture, dir, ledger, pkg.NewRenamer(fsys), newConfig("/d"))

	assert.Equal(t, pkg.OutcomeSkippedAlreadyNamed, outcome.Kind)
	assert.True(t, ledger.Allocated("IMG_20240301_100000.jpg"), "the kept name is still reserved for this run")
}

func TestRun_DryRunRefusesReportInsideFolder(t *testing.T) {
	dir := t.TempDir()
	exiftest.WriteFile(t, dir, "a.jpg", exiftest.JPEGWithDateTimeOriginal(instant))
	before := snapshot(t, dir)

	cfg := newConfig(dir)
	cfg.DryRun = true
	cfg.Report = filepath.Join(dir, "plan.yaml")
	var out bytes.Buffer
	deps := DefaultDeps()
	deps.Out = &out

	_, err := Run(context.Background(), cfg, deps)
	require.ErrorIs(t, err, pkg.ErrReportInsideFolder)
	assert.Empty(t, out.String())
	assert.Equal(t, before, snapshot(t, dir))

	cfg.Report = filepath.Join(t.TempDir(), "plan.yaml")
	lines, _ := runOS(t, cfg)
	assert.Equal(t, []string{"[DRY-RUN] Would rename: a.jpg -> IMG_20240301_100000.jpg"}, lines)
	assert.Equal(t, before, snapshot(t, dir))
}

func TestRun_RenamesJPEGsTheImageDecoderRejects(t *testing.T) {
	dir := t.TempDir()
	exiftest.WriteFile(t, dir, "arith.jpg", exiftest.ArithmeticJPEGWithDateTimeOriginal(instant))

	lines, _ := runOS(t, newConfig(dir))

	assert.Equal(t, []string{"Renamed: arith.jpg -> IMG_20240301_100000.jpg"}, lines)
}
