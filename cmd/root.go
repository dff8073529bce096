package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mrcode/nightscout-profiles/internal/config"
	"github.com/mrcode/nightscout-profiles/internal/logging"
)

var (
	configFile string
	settings   *config.Settings
	closeLog   func() error
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nsprofile",
	Short: "Resolve Nightscout therapy profiles over time",
	Long: `Resolve basal rates, insulin sensitivity, carb ratios and targets from Nightscout
profile documents, applying profile switches, temp basals and combo boluses.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		var err error
		settings, err = config.Load(configFile)
		if err != nil {
			return err
		}
		closeLog, err = logging.Setup(logging.Options{
			Debug: settings.Debug,
			File:  settings.Log.File,
		})
		return err
	},
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		if closeLog != nil {
			return closeLog()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a config file (default ./config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(profilesCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
