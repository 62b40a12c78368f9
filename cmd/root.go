// Package cmd implements the command-line interface for bookwatch.
// It provides the root command and subcommands for running crawls, the
// scheduler daemon and the HTTP API.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/bookwatch/cmd/crawl"
	"github.com/jonesrussell/bookwatch/cmd/httpd"
	cmdscheduler "github.com/jonesrussell/bookwatch/cmd/scheduler"
	cmdtasks "github.com/jonesrussell/bookwatch/cmd/tasks"
	"github.com/jonesrussell/bookwatch/internal/config"
)

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// Debug enables debug mode for all commands
	Debug bool

	// rootCmd represents the root command for the bookwatch CLI.
	rootCmd = &cobra.Command{
		Use:   "bookwatch",
		Short: "A ranking crawler for web fiction platforms",
		Long: `Bookwatch crawls platform ranking pages on a schedule, follows the
listed books to their detail pages and stores timestamped snapshots
for trend queries.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command
func Execute() error {
	// Load .env file early so environment variables are available
	_ = godotenv.Load()

	// Parse flags early so --config and --debug apply before Viper reads
	_ = rootCmd.ParseFlags(os.Args[1:])

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if err := viper.BindPFlag("app.debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("failed to bind debug flag: %w", err)
	}

	if err := config.InitializeViper(); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	return rootCmd.ExecuteContext(context.Background())
}

// init initializes the root command and its subcommands.
func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is ./config.yml or ./config/config.yml)",
	)
	rootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "enable debug mode")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("bookwatch version %s\n", viper.GetString("app.version"))
		},
	})

	rootCmd.AddCommand(crawl.Command())
	rootCmd.AddCommand(cmdscheduler.Command())
	rootCmd.AddCommand(httpd.Command())
	rootCmd.AddCommand(cmdtasks.Command())
}
