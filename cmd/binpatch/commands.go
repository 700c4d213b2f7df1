package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	corebytes "github.com/dcrodman/binpatch/internal/core/bytes"
	"github.com/dcrodman/binpatch/internal/history"
	"github.com/dcrodman/binpatch/internal/patch"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
)

func newApplyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "apply [exe]",
		Short: "Backs up, validates and patches an executable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyCommand(opts, cmd, args)
		},
	}
}

func applyCommand(opts *options, cmd *cobra.Command, args []string) error {
	set, err := opts.loadSet()
	if err != nil {
		return err
	}
	engine, err := opts.newEngine()
	if err != nil {
		return err
	}

	report, err := engine.Apply(args[0], set)
	opts.recordRun(report, err)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := report.Failed()
	for _, res := range failed {
		errColor.Fprintf(out, "failed  %s: %v\n", res.Entry, res.Err)
	}
	if len(failed) == 0 {
		okColor.Fprintf(out, "Patching completed successfully: %d patches applied, backup at %s\n",
			len(report.Entries), report.BackupPath)
		return nil
	}

	warnColor.Fprintf(out, "Patching finished: %d of %d patches applied, backup at %s\n",
		len(report.Entries)-len(failed), len(report.Entries), report.BackupPath)
	if opts.StrictFlag || opts.cfg.Strict {
		return fmt.Errorf("%d patches failed: %w", len(failed), report.Err())
	}
	return nil
}

func newRestoreCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "restore [exe]",
		Short: "Replaces an executable with its backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := opts.newEngine()
			if err != nil {
				return err
			}
			if err := engine.Restore(args[0]); err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "Restored %s from %s\n", args[0], engine.Backups.Path(args[0]))
			return nil
		},
	}
}

func newVerifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [exe]",
		Short: "Checks that an executable is the expected size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := opts.loadSet()
			if err != nil {
				return err
			}
			engine, err := opts.newEngine()
			if err != nil {
				return err
			}
			if err := engine.Verify(args[0], set); err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "%s passed validation\n", args[0])
			return nil
		},
	}
}

func newDiffCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "diff [exe]",
		Short: "Shows the bytes each patch would replace without changing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := opts.loadSet()
			if err != nil {
				return err
			}
			engine, err := opts.newEngine()
			if err != nil {
				return err
			}
			previews, err := engine.Preview(args[0], set)
			if err != nil {
				return err
			}
			printPreviews(cmd.OutOrStdout(), previews)
			return nil
		},
	}
}

func printPreviews(w io.Writer, previews []patch.Preview) {
	for _, p := range previews {
		switch {
		case p.Err != nil:
			errColor.Fprintf(w, "error   %s: %v\n", p.Entry, p.Err)
		case p.Patched():
			okColor.Fprintf(w, "patched %s\n", p.Entry)
		default:
			warnColor.Fprintf(w, "pending %s\n", p.Entry)
			if p.Entry.Text != "" {
				fmt.Fprintf(w, "        - %q\n        + %q\n", corebytes.StripPadding(p.Current), p.Entry.Text)
			} else {
				fmt.Fprintf(w, "        - % X\n        + % X\n", p.Current, p.Entry.Data)
			}
		}
	}
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Prints the active patch table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := opts.loadSet()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d patches, %d bytes, expected size %#x\n",
				set.Name, set.Len(), set.Size(), set.ExpectedSize)
			for i, e := range set.Entries {
				fmt.Fprintf(out, "%3d  %s\n     % X\n", i, e, e.Data)
				for j, prev := range set.Entries[:i] {
					if e.Overlaps(prev) {
						warnColor.Fprintf(out, "     overlaps patch %d; the later write wins\n", j)
					}
				}
			}
			return nil
		},
	}
}

func newHistoryCmd(opts *options) *cobra.Command {
	var (
		limit int
		path  string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Lists recent patch runs from the history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.openHistory()
			if err != nil {
				return err
			}
			defer opts.closeHistory(db)

			var runs []history.Run
			if path != "" {
				runs, err = history.ForPath(db, path)
			} else {
				runs, err = history.Recent(db, limit)
			}
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")
	cmd.Flags().StringVarP(&path, "path", "p", "", "Show every run against this executable, oldest first")
	return cmd
}

func printRuns(w io.Writer, runs []history.Run) {
	for _, run := range runs {
		c := okColor
		if run.Stage != patch.Done.String() {
			c = errColor
		} else if run.Failed > 0 {
			c = warnColor
		}
		c.Fprintf(w, "#%d %s %s %s applied=%d failed=%d\n", run.ID,
			run.StartedAt.Format("2006-01-02 15:04:05"), run.Path, run.Stage, run.Applied, run.Failed)
		if run.Error != "" {
			fmt.Fprintf(w, "    %s\n", run.Error)
		}
	}
}
