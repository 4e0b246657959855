package commands

import (
	"errors"

	"github.com/dyluth/microbundle/internal/printer"
	"github.com/dyluth/microbundle/internal/scaffold"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [DIR]",
		Short: "Create microbundle.yml and a sample template library",
		Long: `Initialize a microbundle project in DIR (default: the current directory).

Creates:
  • microbundle.yml - Run configuration
  • references/micro-capsule-templates.json - Sample template library

Use --force to overwrite existing files.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(cmd, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing microbundle.yml and sample library")
	return cmd
}

func runInit(cmd *cobra.Command, dir string, force bool) error {
	p := printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())

	written, err := scaffold.Initialize(dir, force)
	if errors.Is(err, scaffold.ErrExists) {
		return p.Error(
			"already initialized",
			err.Error(),
			[]string{"Re-run with --force to overwrite:\n  microbundle init --force"},
		)
	}
	if err != nil {
		return p.Error("initialization failed", err.Error(), nil)
	}

	for _, path := range written {
		p.Step("created %s", path)
	}
	p.Success("initialized microbundle project")
	p.Printf("\nNext: microbundle generate --config %s\n", written[0])
	return nil
}
