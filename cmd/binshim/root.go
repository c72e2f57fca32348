package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/binshim/internal/buildinfo"
)

// shimCommand is the only argument the shim keeps for itself. Everything
// else belongs to the managed executable.
const shimCommand = "shim"

func newRootCmd(a *app) *cobra.Command {
	name := buildinfo.Name
	root := &cobra.Command{
		Use:   name + " [args...]",
		Short: "Run " + name + ", installing the release binary for this platform on first use",
		Long: `Runs the prebuilt ` + name + ` executable for this host. On first use the
release archive is downloaded, verified and unpacked into the binshim home
directory; later runs start the cached executable directly.

Every argument is passed through unchanged. Shim management commands live
under "` + name + ` shim".`,
		Args:               cobra.ArbitraryArgs,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), args)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newShimCmd(a))
	return root
}

// execute dispatches args. Only a leading "shim" reaches cobra's command
// lookup, so flags such as --help or "tool --x shim" go to the managed
// executable untouched.
func execute(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 || args[0] != shimCommand {
		return a.run(ctx, args)
	}

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	return root.ExecuteContext(ctx)
}
