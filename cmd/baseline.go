package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cosreg/regwatch/internal/utils"
	"github.com/cosreg/regwatch/pkg/storage"
)

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Inspect or seed the seen operators and items",
}

var baselineShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the size of the seen baseline",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, _ := cmd.Flags().GetBool("list")

		// No seed dir: showing must never write.
		store := storage.NewBaselineStore(viper.GetString("output.dir"), "", utils.Log)
		snap := store.Load()

		fmt.Printf("operators: %d (%s)\n", len(snap.Operators), store.OperatorsPath())
		fmt.Printf("items:     %d (%s)\n", len(snap.Items), store.ItemsPath())
		if !list {
			return nil
		}
		fmt.Println("\n--> Operators:")
		for _, op := range snap.Operators.Sorted() {
			fmt.Println(op)
		}
		fmt.Println("\n--> Items:")
		for _, no := range snap.Items.Sorted() {
			fmt.Println(no)
		}
		return nil
	},
}

var baselineSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed an empty baseline from a directory of operator CSV exports",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")
		if from == "" {
			from = viper.GetString("baseline.dir")
		}
		outDir := viper.GetString("output.dir")

		lock, err := utils.NewOutputLock(outDir)
		if err != nil {
			return err
		}
		if err := lock.Lock(); err != nil {
			return err
		}
		defer lock.Unlock()

		store := storage.NewBaselineStore(outDir, "", utils.Log)
		if !store.Load().Empty() {
			return fmt.Errorf("baseline in %s is not empty, refusing to seed", outDir)
		}

		seed, err := storage.SeedFromCSV(from, utils.Log)
		if err != nil {
			return fmt.Errorf("seed from %s: %w", from, err)
		}
		if seed.Empty() {
			return fmt.Errorf("nothing to seed in %s", from)
		}
		store.Save(seed)
		fmt.Printf("Seeded baseline: operators=%d, items=%d\n", len(seed.Operators), len(seed.Items))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(baselineCmd)
	baselineCmd.AddCommand(baselineShowCmd)
	baselineCmd.AddCommand(baselineSeedCmd)
	baselineShowCmd.Flags().Bool("list", false, "Also print every operator and item number")
	baselineSeedCmd.Flags().String("from", "", "Directory of operator CSVs (default: baseline.dir)")
}
