package commands

import (
	"fmt"

	"github.com/dyluth/microbundle/internal/batch"
	"github.com/dyluth/microbundle/internal/config"
	"github.com/dyluth/microbundle/internal/printer"
	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "verify [DIR]",
		Short: "Recompute and check the addresses of a generated bundle directory",
		Long: `Re-read a directory written by generate and check every bundle listed in index.json.

For each bundle the content address of the Gene, Capsule and EvolutionEvent is recomputed
and compared with the stored asset_id and the index, the Gene -> Capsule -> EvolutionEvent
references are checked, and the publish envelope must carry the same three records.

DIR defaults to ` + config.DefaultOutDir + `.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := config.DefaultOutDir
			if len(args) == 1 {
				dir = args[0]
			}
			return runVerify(cmd, dir, quiet)
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print problems")
	return cmd
}

func runVerify(cmd *cobra.Command, dir string, quiet bool) error {
	p := printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())

	report, err := batch.Verify(dir)
	if err != nil {
		return p.ErrorWithContext(
			"cannot verify directory",
			err.Error(),
			map[string]string{"Directory": dir},
			[]string{"Run generate first:\n  microbundle generate --out-dir " + dir},
		)
	}

	if !report.OK() {
		batch.FormatReport(cmd.ErrOrStderr(), report)
		issues := report.Issues()
		return p.Error(
			"verification failed",
			fmt.Sprintf("Found %d %s in %s.", len(issues), pluralize(len(issues), "issue", "issues"), dir),
			nil,
		)
	}

	if !quiet {
		batch.FormatReport(cmd.OutOrStdout(), report)
	}
	p.Success("verified %d %s in %s", len(report.Bundles), pluralize(len(report.Bundles), "bundle", "bundles"), dir)
	return nil
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
