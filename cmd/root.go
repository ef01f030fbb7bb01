package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cosreg/regwatch/internal/utils"
	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "regwatch",
	Short: "Watch the cosmetic notification registry for new operators and products.",
	Long: `regwatch scrapes the cosmetic notification registry for a configured list of
operators, reports operators and products it has not seen before, and reconciles
per-brand spreadsheet exports against their CSV baselines.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.regwatch.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".regwatch")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()
	_ = viper.BindEnv("baseline.dir", "FDA_BASELINE_DIR")

	// Defaults go in before the config file is written so a fresh one is useful.
	viper.SetDefault("registry.url", "")
	viper.SetDefault("registry.operators", []string{})
	viper.SetDefault("registry.periods", []string{"68"})
	viper.SetDefault("registry.workers", 1)
	viper.SetDefault("registry.headless", true)
	viper.SetDefault("registry.fast", true)
	viper.SetDefault("output.dir", "output_csv")
	viper.SetDefault("baseline.dir", "baseline")
	viper.SetDefault("history.dbpath", "")
	viper.SetDefault("reconcile.baseline_dir", "baseline")
	viper.SetDefault("reconcile.incoming_dir", "incoming")
	viper.SetDefault("reconcile.out_dir", "out")

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := filepath.Join(home, ".regwatch.yaml")
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}

// historyPath resolves the change history database location.
func historyPath() string {
	if p := viper.GetString("history.dbpath"); p != "" {
		return p
	}
	return filepath.Join(viper.GetString("output.dir"), "regwatch.sqlite")
}
