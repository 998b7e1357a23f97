package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bamsammich/snretrieve/internal/dminfo"
)

func newAnalyzeCmd(stdout io.Writer) *cobra.Command {
	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze dm_info dumps collected during recovery",
	}
	analyzeCmd.AddCommand(
		newMissingCmd(stdout, "media", "Which media, segments and add dates the missing files share",
			func(w io.Writer, d *dminfo.Dump, missing dminfo.PathSet, top int) {
				dminfo.NewMediaReport(d, missing, top).Render(w)
			}),
		newMissingCmd(stdout, "fields", "Summarize dm_info fields of the missing files",
			func(w io.Writer, d *dminfo.Dump, missing dminfo.PathSet, top int) {
				dminfo.NewFieldReport(d, missing, top).Render(w)
			}),
		newWindowCmd(stdout),
	)
	return analyzeCmd
}

type missingReport func(w io.Writer, d *dminfo.Dump, missing dminfo.PathSet, top int)

// newMissingCmd builds a subcommand that relates a dm_info dump to a list
// of missing paths.
func newMissingCmd(stdout io.Writer, name, short string, report missingReport) *cobra.Command {
	var (
		dmInfoPath  string
		missingPath string
		top         int
	)
	cmd := &cobra.Command{
		Use:           name,
		Short:         short,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			missing, err := readPathList(missingPath)
			if err != nil {
				return err
			}
			dump, err := readDump(dmInfoPath)
			if err != nil {
				return err
			}
			report(stdout, dump, missing, top)
			return nil
		},
	}
	cmd.Flags().StringVar(&dmInfoPath, "dm-info", "", "dm_info dump file")
	cmd.Flags().StringVar(&missingPath, "missing", "", "file listing missing paths, one per line")
	cmd.Flags().IntVar(&top, "top", 0, "rows per table (0 uses the per-table defaults, negative lists all)")
	_ = cmd.MarkFlagRequired("dm-info") //nolint:errcheck // flag name is hardcoded
	_ = cmd.MarkFlagRequired("missing") //nolint:errcheck // flag name is hardcoded
	return cmd
}

func newWindowCmd(stdout io.Writer) *cobra.Command {
	var start, end int64
	cmd := &cobra.Command{
		Use:           "window --start EPOCH --end EPOCH FILE...",
		Short:         "Count add_date entries inside and outside a time window",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, files []string) error {
			report, err := dminfo.NewWindowReport(start, end)
			if err != nil {
				return err
			}
			for _, path := range files {
				label := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				if err := addWindowFile(report, label, path); err != nil {
					if errors.Is(err, os.ErrNotExist) {
						fmt.Fprintf(stdout, "%s: file not found: %s\n", label, path)
					} else {
						fmt.Fprintf(stdout, "%s: cannot read %s: %v\n", label, path, err)
					}
					continue
				}
			}
			report.Render(stdout)
			return nil
		},
	}
	cmd.Flags().Int64Var(&start, "start", 0, "window start (Unix seconds, inclusive)")
	cmd.Flags().Int64Var(&end, "end", 0, "window end (Unix seconds, inclusive)")
	_ = cmd.MarkFlagRequired("start") //nolint:errcheck // flag name is hardcoded
	_ = cmd.MarkFlagRequired("end")   //nolint:errcheck // flag name is hardcoded
	return cmd
}

func addWindowFile(report *dminfo.WindowReport, label, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return report.Add(label, f)
}

func readDump(path string) (*dminfo.Dump, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dm_info: %w", err)
	}
	defer f.Close()
	return dminfo.Parse(f)
}

func readPathList(path string) (dminfo.PathSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("missing list: %w", err)
	}
	defer f.Close()
	return dminfo.ReadPathList(f)
}
