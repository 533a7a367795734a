package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"twap_oracle/pkg/config"
	"twap_oracle/pkg/node"
	"twap_oracle/pkg/security"
	"twap_oracle/pkg/utils"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "oracle-node",
	Short:         "TWAP price oracle node",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}

		logger, err = utils.NewLogger(&utils.LogConfig{
			Level:      cfg.GetLogLevel().String(),
			OutputPath: cfg.Log.OutputPath,
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 5,
			Compress:   true,
			Debug:      cfg.Log.Debug,
		})
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the indexer, gossip network and HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		app, err := node.New(cfg, logger)
		if err != nil {
			logger.Error("Failed to initialize node", zap.Error(err))
			return err
		}
		return app.Run(ctx)
	},
}

var pubkeyCmd = &cobra.Command{
	Use:   "pubkey",
	Short: "Print the public key peers use to verify this node's attestations",
	RunE: func(cmd *cobra.Command, args []string) error {
		signer, err := security.NewSigner(cfg.Signing.PrivateKey)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), signer.PublicKey())
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(pubkeyCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
