package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/cosreg/regwatch/pkg/changes"
	"github.com/cosreg/regwatch/pkg/storage"
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Show recently detected operators and items (default 50)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dbPath, _ := cmd.Flags().GetString("dbpath")
		limit, _ := cmd.Flags().GetInt("limit")
		if dbPath == "" {
			dbPath = historyPath()
		}
		if _, err := os.Stat(dbPath); err != nil {
			return fmt.Errorf("database not found: %s", dbPath)
		}
		db, err := storage.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		recent, err := db.ListRecentChanges(context.Background(), limit)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"When", "Change", "Operator", "Number", "Name", "Period"})
		for _, c := range recent {
			ts := c.OccurredAt.Format("2006-01-02 15:04:05")
			t.AppendRow(table.Row{ts, changes.Label(c.ChangeType), c.Operator, c.Number, c.TradeName, c.Period})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(changesCmd)
	changesCmd.Flags().String("dbpath", "", "Path to SQLite DB file (default: history.dbpath)")
	changesCmd.Flags().Int("limit", 50, "Number of recent changes to show")
}
