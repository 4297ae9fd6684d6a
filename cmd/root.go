// Package cmd is the demo CLI over the Calypso transaction engine,
// grounded on the teacher's own cmd/root.go: a cobra root command with
// persistent reader/config flags, a connect-and-select helper other
// subcommands build on.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"hermannm.dev/devlog"

	"calypsocore/config"
)

const version = "0.1.0"

var (
	readerIndex   int
	contactless   bool
	ratePerSecond float64
	aidHex        string
	configFile    string
	authKeysFile  string
	outputJSON    bool

	logLevel slog.LevelVar
)

var rootCmd = &cobra.Command{
	Use:     "calypso-cli",
	Short:   "Calypso smart-card transaction engine demo CLI",
	Version: version,
	Long: `Calypso smart-card transaction engine demo CLI v` + version + `

A thin demonstration harness over the calypsocore transaction engine:
selection, secure sessions, stored value and §4.6 SAM signatures. Not
a production terminal fleet client.`,
}

func init() {
	slog.SetDefault(slog.New(devlog.NewHandler(os.Stdout, &devlog.Options{Level: &logLevel})))

	rootCmd.PersistentFlags().IntVarP(&readerIndex, "reader", "r", -1,
		"PC/SC reader index (use 'calypso-cli readers' to list available readers)")
	rootCmd.PersistentFlags().BoolVar(&contactless, "contactless", false,
		"Treat the reader as contactless (recorded on the transport; the rate limit is set by --rate only)")
	rootCmd.PersistentFlags().Float64Var(&ratePerSecond, "rate", 0,
		"Cap APDU transmit rate in requests/second (0 = unlimited)")
	rootCmd.PersistentFlags().StringVar(&aidHex, "aid", "315449432E494341",
		"Application AID to select (hex)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to a reader/security YAML config file")
	rootCmd.PersistentFlags().StringVar(&authKeysFile, "authorized-keys", "",
		"Path to an authorized session-key-pairs YAML file")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false,
		"Suppress human-readable progress messages")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug-level logging")

	rootCmd.AddCommand(readersCmd, profileCmd, readRecordCmd, svCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadEngineConfig merges bound persistent flags with configFile (if
// given) into a config.EngineConfig, grounded on the go-fdo-server
// bind-flags-then-read-file sequence.
func loadEngineConfig(cmd *cobra.Command) (*config.EngineConfig, error) {
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logLevel.Set(slog.LevelDebug)
	}
	cfg, err := config.Load(cmd.Flags(), configFile)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Reader.Index == 0 && readerIndex >= 0 {
		cfg.Reader.Index = readerIndex
	}
	if authKeysFile != "" {
		cfg.Security.AuthorizedKeysFile = authKeysFile
	}
	return cfg, nil
}
