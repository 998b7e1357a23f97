package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeFileInfo = `case "$1" in
  *offline*) echo "Location: TAPE" ;;
  *) echo "Exists on Disk: Yes" ;;
esac
`

const fakeRetrieve = `dst=""
while [ $# -gt 1 ]; do
  case "$1" in
    -n) dst="$2"; shift 2 ;;
    -c|-G) echo "$1 $2" >> "$(dirname "$0")/retrieve.args"; shift 2 ;;
    *) shift ;;
  esac
done
case "$1" in
  *fail*) echo "no media available" >&2; exit 3 ;;
esac
cp "$1" "$dst"
`

// fakeTools writes stand-in StorNext binaries and returns their directory.
func fakeTools(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range map[string]string{"fsfileinfo": fakeFileInfo, "fsretrieve": fakeRetrieve} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body), 0o755))
	}
	return dir
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Retrieve(t *testing.T) {
	bin := fakeTools(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTree(t, src, map[string]string{
		"f1":              "0123456789",
		"sub/offline.mov": "tape data",
		"f3":              "new",
	})
	writeTree(t, dst, map[string]string{"f3": "old"})
	logFile := filepath.Join(dir, "run.log")

	code, stdout, stderr := runCLI(t, src, dst, "-p", "2", "-c", "2", "-g", "bulk", "-l", logFile, "--bin-dir", bin)

	assert.Equal(t, 0, code, stderr)
	assert.Regexp(t, `Succeeded\s+2`, stdout)
	assert.Regexp(t, `Skipped\s+1`, stdout)
	assert.Contains(t, stderr, "[SUCCESS] retrieval complete")

	got, err := os.ReadFile(filepath.Join(dst, "sub", "offline.mov"))
	require.NoError(t, err)
	assert.Equal(t, "tape data", string(got))

	got, err = os.ReadFile(filepath.Join(dst, "f3"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	retrieveArgs, err := os.ReadFile(filepath.Join(bin, "retrieve.args"))
	require.NoError(t, err)
	assert.Equal(t, "-c 2\n-G bulk\n", string(retrieveArgs))

	logged, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "[DEBUG] copied f1")
	assert.NotContains(t, string(logged), "\x1b[", "log file must be uncolored")
	assert.NotContains(t, stderr, "copied f1", "per-file lines need --verbose")
}

func TestRun_FailedFileExitsOne(t *testing.T) {
	bin := fakeTools(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeTree(t, src, map[string]string{"offline-fail.mov": "x", "ok": "y"})

	code, stdout, stderr := runCLI(t, src, filepath.Join(dir, "dst"), "--bin-dir", bin)

	assert.Equal(t, 1, code)
	assert.Regexp(t, `Failed\s+1`, stdout)
	assert.Contains(t, stdout, "no media available")
	assert.Contains(t, stderr, "[ERROR] failed offline-fail.mov")
}

func TestRun_DryRun(t *testing.T) {
	bin := fakeTools(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTree(t, src, map[string]string{"a/offline.mov": "x", "b": "y"})

	code, _, stderr := runCLI(t, src, dst, "--dry-run", "--bin-dir", bin)

	assert.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "[DRY-RUN] would retrieve a/offline.mov")
	assert.Contains(t, stderr, "[DRY-RUN] would copy b")
	assert.NoDirExists(t, dst)
}

func TestRun_Selection(t *testing.T) {
	bin := fakeTools(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTree(t, src, map[string]string{
		"reel1/f1.dpx":  "1",
		"reel1/f2.dpx":  "2",
		"reel1/notes":   "n",
		"reel2/f3.dpx":  "3",
		"scratch/x.tmp": "x",
	})
	rules := filepath.Join(dir, "rules")
	require.NoError(t, os.WriteFile(rules, []byte("# no scratch\n- scratch/\n"), 0o644))
	list := filepath.Join(dir, "missing.txt")
	require.NoError(t, os.WriteFile(list, []byte(strings.Join([]string{
		filepath.Join(src, "reel1", "f1.dpx"),
		filepath.Join(src, "reel1", "notes"),
		"reel2/f3.dpx",
		"/elsewhere/f9.dpx",
	}, "\n")), 0o644))

	code, stdout, stderr := runCLI(t, src, dst, "--bin-dir", bin,
		"--exclude", "notes", "--filter", rules, "--files-from", list)

	assert.Equal(t, 0, code, stderr)
	assert.Regexp(t, `Total\s+2`, stdout)
	assert.FileExists(t, filepath.Join(dst, "reel1", "f1.dpx"))
	assert.FileExists(t, filepath.Join(dst, "reel2", "f3.dpx"))
	assert.NoFileExists(t, filepath.Join(dst, "reel1", "f2.dpx"))
	assert.NoFileExists(t, filepath.Join(dst, "reel1", "notes"))
	assert.NoDirExists(t, filepath.Join(dst, "scratch"))
	assert.Contains(t, stderr, "listed path is outside the source directory")
}

func TestRun_ArgumentErrors(t *testing.T) {
	bin := fakeTools(t)
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "dst")

	tests := map[string][]string{
		"no args":          {},
		"one arg":          {src},
		"zero parallel":    {src, dst, "-p", "0", "--bin-dir", bin},
		"negative copy":    {src, dst, "-c", "-1", "--bin-dir", bin},
		"bad bwlimit":      {src, dst, "--bwlimit", "fast", "--bin-dir", bin},
		"missing source":   {filepath.Join(src, "nope"), dst, "--bin-dir", bin},
		"missing filter":   {src, dst, "--filter", filepath.Join(src, "nope"), "--bin-dir", bin},
		"missing list":     {src, dst, "--files-from", filepath.Join(src, "nope"), "--bin-dir", bin},
		"unknown flag":     {src, dst, "--frobnicate"},
		"nested dest":      {src, filepath.Join(src, "inside"), "--bin-dir", bin},
		"missing env file": {src, dst, "--env-file", filepath.Join(src, "none.env"), "--bin-dir", bin},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			code, _, _ := runCLI(t, args...)
			assert.Equal(t, 1, code)
		})
	}
}

func TestRun_MissingPrerequisite(t *testing.T) {
	src := t.TempDir()
	code, _, stderr := runCLI(t, src, filepath.Join(t.TempDir(), "dst"), "--bin-dir", t.TempDir())

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "missing prerequisite")
}

func TestRun_ConfigDefaults(t *testing.T) {
	bin := fakeTools(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeTree(t, src, map[string]string{"offline.mov": "x"})

	cfgHome := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(cfgHome, "snretrieve"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfgHome, "snretrieve", "config.toml"),
		[]byte("[defaults]\ncopy = 3\n\n[stornext]\nbin_dir = \""+bin+"\"\n"), 0o644))

	envFile := filepath.Join(dir, "site.env")
	require.NoError(t, os.WriteFile(envFile, []byte("SNRETRIEVE_GLACIER=expedited\n"), 0o600))

	var stdout, stderr bytes.Buffer
	t.Setenv("XDG_CONFIG_HOME", cfgHome)
	code := run([]string{src, filepath.Join(dir, "dst"), "--env-file", envFile}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	args, err := os.ReadFile(filepath.Join(bin, "retrieve.args"))
	require.NoError(t, err)
	assert.Equal(t, "-c 3\n-G expedited\n", string(args))
}

func TestRun_MetricsFile(t *testing.T) {
	bin := fakeTools(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeTree(t, src, map[string]string{"f": "data"})
	prom := filepath.Join(dir, "snretrieve.prom")

	code, _, stderr := runCLI(t, src, filepath.Join(dir, "dst"), "--bin-dir", bin, "--metrics-file", prom)

	require.Equal(t, 0, code, stderr)
	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), `snretrieve_files_total{outcome="success",residency="on-disk"} 1`)
}

func TestRun_Version(t *testing.T) {
	code, stdout, _ := runCLI(t, "--version")
	assert.Equal(t, 0, code)
	assert.Equal(t, "snretrieve dev\n", stdout)
}

func TestRun_Help(t *testing.T) {
	code, stdout, _ := runCLI(t, "-h")
	assert.Equal(t, 0, code)
	for _, flag := range []string{"--verbose", "--dry-run", "--parallel", "--copy", "--glacier", "--force", "--log"} {
		assert.Contains(t, stdout, flag)
	}
}

func TestSizeFlag(t *testing.T) {
	var s sizeFlag
	require.NoError(t, s.Set("100MB"))
	assert.Equal(t, sizeFlag(100_000_000), s)
	require.NoError(t, s.Set("1GiB"))
	assert.Equal(t, sizeFlag(1<<30), s)
	assert.Equal(t, "1.0 GiB", s.String())
	assert.Error(t, s.Set("lots"))
	// Fits in uint64 but not in a signed rate.
	assert.ErrorContains(t, s.Set("10EiB"), "too large")
	require.NoError(t, s.Set(""))
	assert.Empty(t, s.String())
}

func TestAnalyzeCommands(t *testing.T) {
	dir := t.TempDir()
	dump := filepath.Join(dir, "archive_2020_dm_info.txt")
	missing := filepath.Join(dir, "missing.txt")
	require.NoError(t, os.WriteFile(dump, []byte(strings.Join([]string{
		"Filename: /sn/a",
		"  flags: ALL_COPIES_MADE",
		"  medium: E001",
		"  add_date: 1622680000",
		"Filename: /sn/b",
		"  medium: E001",
		"  add_date: 1500000000",
		"",
	}, "\n")), 0o644))
	require.NoError(t, os.WriteFile(missing, []byte("/sn/a\n/sn/z\n"), 0o644))

	code, stdout, stderr := runCLI(t, "analyze", "media", "--dm-info", dump, "--missing", missing)
	require.Equal(t, 0, code, stderr)
	assert.Regexp(t, `E001\s+1\s+2\s+50\.00%`, stdout)

	code, stdout, stderr = runCLI(t, "analyze", "fields", "--dm-info", dump, "--missing", missing)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Missing paths with dm_info block: 1")
	assert.Contains(t, stdout, "/sn/z")

	code, stdout, stderr = runCLI(t, "analyze", "window", "--start", "1622676314", "--end", "1622706750",
		dump, filepath.Join(dir, "archive_2019_dm_info.txt"))
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "archive_2019_dm_info: file not found")
	assert.Regexp(t, `archive_2020_dm_info\s+2\s+1\s+1\s+0`, stdout)

	// A directory opens but cannot be read; the remaining files still count.
	code, stdout, stderr = runCLI(t, "analyze", "window", "--start", "1622676314", "--end", "1622706750",
		dir, dump)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "cannot read "+dir)
	assert.Regexp(t, `archive_2020_dm_info\s+2\s+1\s+1\s+0`, stdout)

	code, _, _ = runCLI(t, "analyze", "media", "--dm-info", dump)
	assert.Equal(t, 1, code, "--missing is required")
}

func TestGenDocs(t *testing.T) {
	out := t.TempDir()
	code, _, stderr := runCLI(t, "gen-docs", "--dir", out, "--format", "markdown")
	require.Equal(t, 0, code, stderr)
	assert.FileExists(t, filepath.Join(out, "snretrieve.md"))
	assert.FileExists(t, filepath.Join(out, "snretrieve_analyze_window.md"))
}
