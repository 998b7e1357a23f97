package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/snretrieve/internal/event"
	"github.com/bamsammich/snretrieve/internal/filter"
	"github.com/bamsammich/snretrieve/internal/metrics"
	"github.com/bamsammich/snretrieve/internal/stats"
	"github.com/bamsammich/snretrieve/internal/stornext"
)

func policy(workers int) Policy {
	return Policy{Workers: workers}
}

func TestRun_MixedResidency(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeFile(t, src, "f1", []byte("0123456789"))
	writeFile(t, src, "f2", []byte("stub"))
	writeFile(t, src, "f3", []byte("new content"))
	writeFile(t, dst, "f3", []byte("old"))

	mgr := newFakeManager()
	mgr.residency["f1"] = stornext.OnDisk
	mgr.residency["f2"] = stornext.Offline

	events, collect := drainEvents(t)
	res := Run(context.Background(), Config{
		Src: src, Dst: dst, Policy: policy(2), Manager: mgr, Events: events,
	})
	evs := collect()

	require.NoError(t, res.Err)
	assert.True(t, res.OK())
	s := res.Summary
	assert.Equal(t, int64(3), s.Total)
	assert.Equal(t, int64(2), s.Succeeded)
	assert.Equal(t, int64(1), s.Skipped)
	assert.Equal(t, int64(0), s.Failed)
	assert.Equal(t, int64(1), s.Copied)
	assert.Equal(t, int64(1), s.Retrieved)
	assert.Equal(t, int64(10), s.Bytes)

	got, err := os.ReadFile(filepath.Join(dst, "f1"))
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(got))

	got, err = os.ReadFile(filepath.Join(dst, "f2"))
	require.NoError(t, err)
	assert.Equal(t, "retrieved:f2", string(got))

	got, err = os.ReadFile(filepath.Join(dst, "f3"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(got), "existing destination must not be touched")

	require.NotEmpty(t, evs)
	assert.Equal(t, event.ScanStarted, evs[0].Type)
	assert.Equal(t, event.ScanComplete, evs[1].Type)
	assert.Equal(t, int64(3), evs[1].Total)
}

func TestRun_Selection(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeFile(t, src, "a.mov", []byte("a"))
	writeFile(t, src, "b.tmp", []byte("b"))

	sel := filter.New()
	require.NoError(t, sel.Exclude("*.tmp"))

	res := Run(context.Background(), Config{
		Src: src, Dst: dst, Select: sel, Policy: policy(1), Manager: newFakeManager(),
	})
	require.NoError(t, res.Err)
	assert.Equal(t, int64(1), res.Summary.Total)
	assert.FileExists(t, filepath.Join(dst, "a.mov"))
	assert.NoFileExists(t, filepath.Join(dst, "b.tmp"))
}

func TestRunResult_OK(t *testing.T) {
	assert.True(t, RunResult{}.OK())
	assert.False(t, RunResult{Err: errors.New("boom")}.OK())
	assert.False(t, RunResult{ScanErrs: []error{errors.New("unreadable")}}.OK())
	assert.False(t, RunResult{Summary: stats.Summary{Total: 1, Failed: 1}}.OK())
}

func TestRun_RetrieveFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeFile(t, src, "a/f1", []byte("x"))
	writeFile(t, src, "a/f2", []byte("y"))

	mgr := newFakeManager()
	mgr.residency["f1"] = stornext.Offline
	mgr.residency["f2"] = stornext.Offline
	mgr.retrieveErr["f2"] = errNoMedia

	res := Run(context.Background(), Config{Src: src, Dst: dst, Policy: policy(2), Manager: mgr})

	require.NoError(t, res.Err)
	assert.False(t, res.OK())
	assert.Equal(t, int64(1), res.Summary.Succeeded)
	assert.Equal(t, int64(1), res.Summary.Failed)
	require.Len(t, res.Summary.Failures, 1)
	assert.Equal(t, filepath.Join(src, "a", "f2"), res.Summary.Failures[0].Path)
	assert.Equal(t, errNoMedia.Error(), res.Summary.Failures[0].Detail)
	assert.NoFileExists(t, filepath.Join(dst, "a", "f2"))
}

func TestRun_Idempotent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	for _, name := range []string{"a", "b/c", "b/d/e"} {
		writeFile(t, src, name, []byte(name))
	}
	mgr := newFakeManager()
	mgr.residency["e"] = stornext.Offline

	first := Run(context.Background(), Config{Src: src, Dst: dst, Policy: policy(3), Manager: mgr})
	require.True(t, first.OK())
	assert.Equal(t, int64(3), first.Summary.Succeeded)

	second := Run(context.Background(), Config{Src: src, Dst: dst, Policy: policy(3), Manager: mgr})
	require.True(t, second.OK())
	assert.Equal(t, int64(3), second.Summary.Skipped)
	assert.Zero(t, second.Summary.Succeeded)
	assert.Equal(t, 1, mgr.retrievedCount(), "second run must not retrieve again")
}

func TestRun_DryRunLeavesDestinationUntouched(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeFile(t, src, "sub/on", []byte("on disk"))
	writeFile(t, src, "sub/off", []byte(""))
	mgr := newFakeManager()
	mgr.residency["off"] = stornext.Offline

	res := Run(context.Background(), Config{
		Src: src, Dst: dst, Policy: Policy{Workers: 2, DryRun: true}, Manager: mgr,
	})

	require.NoError(t, res.Err)
	assert.True(t, res.OK())
	assert.Equal(t, int64(2), res.Summary.DryRun)
	assert.NoDirExists(t, dst)
	assert.Zero(t, mgr.retrievedCount())
}

func TestRun_ConcurrencyBound(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	mgr := newFakeManager()
	mgr.delay = 10 * time.Millisecond
	for i := range 24 {
		name := string(rune('a'+i)) + ".dat"
		writeFile(t, src, name, []byte(name))
		mgr.residency[name] = stornext.Offline
	}

	collector := stats.NewCollector()
	res := Run(context.Background(), Config{
		Src: src, Dst: dst, Policy: policy(3), Manager: mgr, Stats: collector,
	})

	require.True(t, res.OK())
	s := res.Summary
	assert.Equal(t, s.Total, s.Succeeded+s.Skipped+s.Failed+s.DryRun)
	assert.LessOrEqual(t, mgr.peak.Load(), int64(3))
	assert.LessOrEqual(t, collector.Snapshot().PeakActive, int64(3))
	assert.Equal(t, int64(24), collector.Snapshot().FilesRetrieved)
}

func TestRun_CancelledRecordsEveryFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	mgr := newFakeManager()
	mgr.delay = time.Second
	for i := range 10 {
		name := string(rune('a'+i)) + ".dat"
		writeFile(t, src, name, []byte("x"))
		mgr.residency[name] = stornext.Offline
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	res := Run(ctx, Config{Src: src, Dst: dst, Policy: policy(2), Manager: mgr})

	require.NoError(t, res.Err)
	s := res.Summary
	assert.True(t, s.Complete())
	assert.Equal(t, int64(10), s.Failed)
	for _, f := range s.Failures {
		assert.Equal(t, "cancelled", f.Detail)
	}
}

func TestRun_DirectoryModes(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeFile(t, src, "open/f", []byte("1"))
	writeFile(t, src, "locked/f", []byte("2"))
	require.NoError(t, os.Chmod(filepath.Join(src, "open"), 0o750))
	require.NoError(t, os.Chmod(filepath.Join(src, "locked"), 0o555))
	t.Cleanup(func() {
		_ = os.Chmod(filepath.Join(src, "locked"), 0o755)
		_ = os.Chmod(filepath.Join(dst, "locked"), 0o755)
	})
	mtime := time.Date(2020, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(src, "open"), mtime, mtime))

	res := Run(context.Background(), Config{Src: src, Dst: dst, Policy: policy(2), Manager: newFakeManager()})
	require.True(t, res.OK(), "%+v", res.Summary.Failures)

	info, err := os.Stat(filepath.Join(dst, "open"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o750), info.Mode().Perm())
	assert.True(t, info.ModTime().Equal(mtime))

	info, err = os.Stat(filepath.Join(dst, "locked"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o555), info.Mode().Perm())
	assert.FileExists(t, filepath.Join(dst, "locked", "f"))
}

func TestRun_RejectsNestedDestination(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "f", []byte("x"))

	for _, dst := range []string{src, filepath.Join(src, "out")} {
		res := Run(context.Background(), Config{Src: src, Dst: dst, Policy: policy(1), Manager: newFakeManager()})
		assert.Error(t, res.Err, dst)
		assert.False(t, res.OK())
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	res := Run(context.Background(), Config{Src: "a", Dst: "b", Policy: policy(0), Manager: newFakeManager()})
	assert.Error(t, res.Err)

	res = Run(context.Background(), Config{Src: "a", Dst: "b", Policy: policy(1)})
	assert.ErrorContains(t, res.Err, "storage manager")

	res = Run(context.Background(), Config{Src: "/nonexistent/src", Dst: t.TempDir(), Policy: policy(1), Manager: newFakeManager()})
	assert.Error(t, res.Err)
}

func TestRun_MetricsFinish(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeFile(t, src, "f", []byte("x"))
	rec := metrics.NewRecorder()

	res := Run(context.Background(), Config{
		Src: src, Dst: filepath.Join(dir, "dst"), Policy: policy(1), Manager: newFakeManager(), Metrics: rec,
	})
	require.True(t, res.OK())

	out := filepath.Join(dir, "snretrieve.prom")
	require.NoError(t, rec.WriteTextfile(out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "snretrieve_last_run_success 1")
}
