package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cosreg/regwatch/internal/utils"
	"github.com/cosreg/regwatch/pkg/browser"
	"github.com/cosreg/regwatch/pkg/changes"
	"github.com/cosreg/regwatch/pkg/export"
	"github.com/cosreg/regwatch/pkg/notify"
	"github.com/cosreg/regwatch/pkg/polling"
	"github.com/cosreg/regwatch/pkg/record"
	"github.com/cosreg/regwatch/pkg/registry"
	"github.com/cosreg/regwatch/pkg/storage"
)

// scrapeCmd implements: regwatch scrape
//
//	--workers int   Number of parallel browser sessions (default: registry.workers)
//	--dry-run       Classify without saving the baseline or sending notifications
//	--no-history    Do not record changes in the history database
var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape the registry for every configured operator and report what is new",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unknown command: '%s'. See 'regwatch scrape --help'", args[0])
		}

		workers := viper.GetInt("registry.workers")
		if cmd.Flags().Changed("workers") {
			workers, _ = cmd.Flags().GetInt("workers")
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		noHistory, _ := cmd.Flags().GetBool("no-history")

		run := &scrapeRun{
			Registry:    registryConfig(),
			Workers:     workers,
			OutDir:      viper.GetString("output.dir"),
			BaselineDir: viper.GetString("baseline.dir"),
			DryRun:      dryRun,
			NewSession:  sessionFactory(viper.GetBool("registry.headless")),
			Notifier:    notify.FromEnv(utils.Log),
			Out:         os.Stdout,
		}
		if !noHistory {
			run.HistoryPath = historyPath()
		}
		if len(run.Registry.Operators) == 0 {
			utils.Log.Info("No operators to scrape. Configure registry.operators in ~/.regwatch.yaml")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return run.run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	scrapeCmd.Flags().Int("workers", 1, "Number of parallel browser sessions")
	scrapeCmd.Flags().Bool("dry-run", false, "Classify without saving the baseline or notifying")
	scrapeCmd.Flags().Bool("no-history", false, "Do not record changes in the history database")
}

// registryConfig builds the scraper configuration from viper.
func registryConfig() registry.Config {
	// Timeouts are left zero so the scraper derives them from Fast.
	cfg := registry.Config{
		URL:       viper.GetString("registry.url"),
		Operators: viper.GetStringSlice("registry.operators"),
		Periods:   viper.GetStringSlice("registry.periods"),
		Fast:      viper.GetBool("registry.fast"),
	}
	if len(cfg.Periods) == 0 {
		cfg.Periods = registry.DefaultConfig().Periods
	}
	return cfg
}

func sessionFactory(headless bool) polling.SessionFactory {
	return func(ctx context.Context) (browser.PageOracle, func(), error) {
		s, err := browser.NewSession(ctx, browser.Options{
			Headless:        headless,
			PageLoadTimeout: 120 * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
}

// scrapeRun is one scrape-classify-notify cycle.
type scrapeRun struct {
	Registry    registry.Config
	Workers     int
	OutDir      string
	BaselineDir string
	HistoryPath string // empty disables the history database
	DryRun      bool
	NewSession  polling.SessionFactory
	Notifier    notify.Notifier
	Out         io.Writer
}

// run always ends with a notification unless it is a dry run or the context
// was cancelled: a failed scrape classifies nothing and reports no changes.
func (r *scrapeRun) run(ctx context.Context) error {
	started := time.Now()

	res, err := polling.ScrapeOperators(ctx, polling.Config{
		Registry:   r.Registry,
		OutputDir:  r.OutDir,
		Workers:    r.Workers,
		NewSession: r.NewSession,
		Log:        utils.Log,
		OnOperatorDone: func(o polling.OperatorResult) {
			if o.Err == nil {
				utils.Log.Infof("Done: %s (%d rows)", o.Operator, o.Records)
			}
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		utils.Log.Errorf("Scrape failed: %v", err)
	}
	if res == nil {
		res = &polling.Result{}
	}
	for _, e := range res.Errors {
		utils.Log.Warn(e)
	}
	utils.Log.Infof("Scraped %d records from %d operators in %s", len(res.Records), len(res.Operators), time.Since(started).Round(time.Second))

	lock, err := utils.NewOutputLock(r.OutDir)
	if err != nil {
		return err
	}
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	store := storage.NewBaselineStore(r.OutDir, r.BaselineDir, utils.Log)
	seen := store.Load()
	report := changes.Classify(res.Records, seen)

	attachment := ""
	if !report.Empty() && !r.DryRun {
		path := export.ReportFile(r.OutDir, started)
		if err := export.WriteReport(path, report.ExportRows()); err != nil {
			utils.Log.Errorf("Could not write %s: %v", path, err)
		} else {
			attachment = path
			utils.Log.Infof("Saved change report: %s (%d rows)", path, len(report.Rows))
		}
	}

	printReport(r.Out, res, report)

	if r.DryRun {
		utils.Log.Info("Dry run: baseline not saved, no notification sent")
		return nil
	}
	store.Save(seen)

	if r.HistoryPath != "" {
		recordHistory(ctx, r.HistoryPath, res.Records, report, started)
	}

	sum := changes.Summarize(report, attachment, r.OutDir)
	msg := notify.Message{Subject: sum.Subject, Body: sum.Body}
	if attachment != "" {
		msg.Attachments = []string{attachment}
	}
	notify.Deliver(ctx, r.Notifier, msg, utils.Log)
	return nil
}

// recordHistory appends the run to the history database. Failures are logged.
func recordHistory(ctx context.Context, path string, recs []record.NotificationRecord, report *changes.Report, at time.Time) {
	db, err := storage.Open(path)
	if err != nil {
		utils.Log.Warnf("Could not open history database: %v", err)
		return
	}
	defer db.Close()

	items := make([]storage.Item, 0, len(recs))
	for _, r := range recs {
		items = append(items, storage.Item{
			Number:    r.Number,
			Operator:  r.OperatorKey(),
			TradeName: r.DisplayName(),
			Period:    r.Period,
			Status:    r.Status,
		})
	}
	if err := db.UpsertItems(ctx, items); err != nil {
		utils.Log.Warnf("Could not record items: %v", err)
	}
	if err := db.LogChanges(ctx, report.Changes(at)); err != nil {
		utils.Log.Warnf("Could not record changes: %v", err)
	}
}

func printReport(out io.Writer, res *polling.Result, report *changes.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Operator", "Records", "Status", "New"})

	newOps := map[string]bool{}
	for _, op := range report.NewOperators {
		newOps[op] = true
	}
	newPerOp := map[string]int{}
	for _, row := range report.Rows {
		newPerOp[row.Record.OperatorKey()]++
	}

	for _, o := range res.Operators {
		status := "ok"
		if o.Err != nil {
			status = "error"
		}
		t.AppendRow(table.Row{o.Operator, o.Records, status, ""})
	}
	t.AppendSeparator()
	for _, op := range report.NewOperators {
		t.AppendRow(table.Row{op, "", changes.Label(changes.StatusNewOperator), newPerOp[op]})
	}
	for _, oi := range report.NewItems() {
		if newOps[oi.Operator] {
			continue
		}
		t.AppendRow(table.Row{oi.Operator, "", changes.Label(changes.StatusNewItem), len(oi.Items)})
	}
	t.AppendFooter(table.Row{"Total", len(res.Records), "", len(report.Rows)})
	t.SetStyle(table.StyleRounded)
	t.Render()
}
