package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/balduz84/passdoo/internal/app"
	"github.com/balduz84/passdoo/internal/common"
	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"
)

var (
	// Command-line flags
	configFiles []string
	serverPort  int
	serverHost  string
	baseURL     string

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:               "passdoo",
	Short:             "Local agent for the Passdoo password manager",
	Long:              `Passdoo keeps a Passdoo session and a credential cache and serves them to browser extensions and local tools.

The one-shot commands (login, logout, status, token, list) open the local store
directly. The store admits a single process, so stop a running "passdoo serve"
before using them.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              runServe,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&configFiles, "config", "c", nil, "Configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().IntVarP(&serverPort, "port", "p", 0, "Server port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&serverHost, "host", "", "Server host (overrides config)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Passdoo server URL (overrides config)")

	rootCmd.AddCommand(serveCmd, loginCmd, logoutCmd, statusCmd, tokenCmd, listCmd, versionCmd)
}

func main() {
	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()

	common.LoadVersionFromFile()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves configuration with priority defaults -> files -> env -> flags
func loadConfig(cmd *cobra.Command, args []string) error {
	if cmd == versionCmd {
		return nil
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("passdoo.toml"); err == nil {
			configFiles = append(configFiles, "passdoo.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	common.ApplyFlagOverrides(config, serverPort, serverHost, baseURL)

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger = common.SetupLogger(config)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("environment", config.Environment).
		Str("base_url", config.Passdoo.BaseURL).
		Str("storage_path", config.Storage.Badger.Path).
		Str("log_level", config.Logging.Level).
		Msg("Resolved configuration")

	return nil
}

// openApp builds the application for one-shot commands. Background
// refresh is pointless for them.
func openApp() (*app.App, error) {
	config.Refresh.Enabled = false
	application, err := app.New(config, logger)
	if err != nil {
		return nil, storeLockHint(fmt.Errorf("failed to initialize application: %w", err))
	}
	return application, nil
}

// storeLockHint names the usual culprit when the store is held elsewhere
func storeLockHint(err error) error {
	if err == nil || !strings.Contains(err.Error(), "directory lock") {
		return err
	}
	return fmt.Errorf("%w\nthe local store is in use, stop \"passdoo serve\" first", err)
}
