package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var versionString = "dev"

// NewRootCmd builds the command tree. Each call returns independent commands and flags.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "microbundle",
		Short: "Generate content-addressed gep-a2a micro bundles",
		Long: `microbundle turns a library of reusable templates into gep-a2a bundles.

Each template becomes a Gene, a Capsule and an EvolutionEvent, linked to one another by
sha256 content addresses, plus a publish envelope carrying all three. Bundles are written
to an output directory and can optionally be published to a Redis hub.`,
		Version: versionString,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(newInitCmd(), newGenerateCmd(), newVerifyCmd(), newBundlesCmd())
	return root
}

// Execute runs the CLI until completion or interrupt.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	versionString = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}
