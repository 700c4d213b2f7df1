// binpatch applies a table of fixed-offset byte patches to an executable after
// checking its size and taking a backup.
//
// For CLI usage instructions:
//
//	binpatch -help
//
// Without a --table flag or a patch_table config option the table compiled
// into the binary is used.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dcrodman/binpatch/internal/core"
)

type options struct {
	ConfigFlag       string
	TableFlag        string
	ExpectedSizeFlag string
	StrictFlag       bool

	cfg    *core.Config
	logger *zap.SugaredLogger
}

func newRootCmd(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "binpatch [exe]",
		Short: "Applies byte patches to an executable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyCommand(opts, cmd, args)
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Arguments have been validated by now; further errors are not usage errors.
			cmd.SilenceUsage = true
			return opts.setUp(cmd.Name())
		},
	}
	rootCmd.PersistentFlags().StringVarP(&opts.ConfigFlag, "config", "c", "", "Path to the directory containing config.yaml")
	rootCmd.PersistentFlags().StringVarP(&opts.TableFlag, "table", "t", "", "YAML patch table to use instead of the builtin one")
	rootCmd.PersistentFlags().StringVar(&opts.ExpectedSizeFlag, "expected-size", "", "Exact size of the target in bytes (decimal or 0x hex)")
	rootCmd.Flags().BoolVar(&opts.StrictFlag, "strict", false, "Fail if any patch could not be written")

	applyCmd := newApplyCmd(opts)
	applyCmd.Flags().BoolVar(&opts.StrictFlag, "strict", false, "Fail if any patch could not be written")

	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(newRestoreCmd(opts))
	rootCmd.AddCommand(newVerifyCmd(opts))
	rootCmd.AddCommand(newDiffCmd(opts))
	rootCmd.AddCommand(newListCmd(opts))
	rootCmd.AddCommand(newHistoryCmd(opts))
	return rootCmd
}

func main() {
	opts := &options{}
	err := newRootCmd(opts).Execute()
	if opts.logger != nil {
		_ = opts.logger.Sync()
	}
	if err != nil {
		os.Exit(1)
	}
}
