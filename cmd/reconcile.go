package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cosreg/regwatch/internal/utils"
	"github.com/cosreg/regwatch/pkg/notify"
	"github.com/cosreg/regwatch/pkg/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare incoming brand spreadsheets with their CSV baselines",
	Long: `Compare every incoming spreadsheet with the baseline CSV of the same name.

Writes out/new_changes_YYYY-MM-DD.xlsx and out/diffs/<BRAND>/{added,removed}.csv.
With --apply replace the baseline becomes the incoming snapshot; with --apply append
the added rows are appended and removed rows are kept. The previous baseline is
always backed up first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		modeStr, _ := cmd.Flags().GetString("apply")
		mode, err := reconcile.ParseApplyMode(modeStr)
		if err != nil {
			return err
		}
		pattern, _ := cmd.Flags().GetString("pattern")

		opts := reconcile.Options{
			BaselineDir: flagOrConfig(cmd, "baseline-dir", "reconcile.baseline_dir"),
			IncomingDir: flagOrConfig(cmd, "incoming-dir", "reconcile.incoming_dir"),
			OutDir:      flagOrConfig(cmd, "out-dir", "reconcile.out_dir"),
			Pattern:     pattern,
			Mode:        mode,
			Log:         utils.Log,
		}

		noNotify, _ := cmd.Flags().GetBool("no-notify")
		var n notify.Notifier
		if !noNotify {
			n = notify.FromEnv(utils.Log)
		}
		return runReconcile(cmd.Context(), opts, n, os.Stdout)
	},
}

// runReconcile compares, prints the per-brand table and sends the run
// summary with the workbook attached. n may be nil.
func runReconcile(ctx context.Context, opts reconcile.Options, n notify.Notifier, out io.Writer) error {
	res, err := reconcile.NewEngine(opts).Run(ctx)
	if err != nil {
		return err
	}

	if len(res.Brands) > 0 {
		printBrands(out, res, opts.Mode)
	}

	subject, body := reconcile.Summarize(res)
	msg := notify.Message{Subject: subject, Body: body}
	if res.Workbook != "" {
		msg.Attachments = []string{res.Workbook}
	}
	notify.Deliver(ctx, n, msg, utils.Log)
	return nil
}

func printBrands(out io.Writer, res *reconcile.Result, mode reconcile.ApplyMode) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Brand", "Added", "Removed", "Unchanged", "Incoming", "Baseline", "Result"})
	for _, b := range res.Brands {
		switch {
		case b.Skipped:
			t.AppendRow(table.Row{b.Brand, "", "", "", "", "", fmt.Sprintf("skipped: %v", b.Err)})
		case b.Err != nil:
			t.AppendRow(table.Row{b.Brand, len(b.Diff.Added), len(b.Diff.Removed), b.Diff.Unchanged, b.Diff.IncomingRows, b.Diff.BaselineRows, fmt.Sprintf("apply failed: %v", b.Err)})
		default:
			result := "compared"
			if b.Backup != "" {
				result = fmt.Sprintf("%s (backup %s)", mode, b.Backup)
			}
			t.AppendRow(table.Row{b.Brand, len(b.Diff.Added), len(b.Diff.Removed), b.Diff.Unchanged, b.Diff.IncomingRows, b.Diff.BaselineRows, result})
		}
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().String("apply", "none", "Baseline update mode: none, replace, append")
	reconcileCmd.Flags().String("pattern", "*.xlsx", "Glob for incoming files")
	reconcileCmd.Flags().String("baseline-dir", "", "Baseline CSV directory (default: reconcile.baseline_dir)")
	reconcileCmd.Flags().String("incoming-dir", "", "Incoming spreadsheet directory (default: reconcile.incoming_dir)")
	reconcileCmd.Flags().String("out-dir", "", "Report directory (default: reconcile.out_dir)")
	reconcileCmd.Flags().Bool("no-notify", false, "Do not send the run summary")
}

// flagOrConfig returns the flag value when set, else the viper key.
func flagOrConfig(cmd *cobra.Command, flag, key string) string {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v
	}
	return viper.GetString(key)
}
