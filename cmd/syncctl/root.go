package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"pulse-backend/internal/app"
	"pulse-backend/pkg/config"
	"pulse-backend/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "syncctl",
	Short: "Pulse sync engine operator tool",
	Long:  "Runs migrations, manual syncs, cleanup passes and credential chores outside the API server",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Setup(viper.GetString("log.level"), viper.GetString("log.format"))
	},
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("database.url", "", "Database connection URL (overrides DATABASE_URL)")
	rootCmd.PersistentFlags().String("storage.driver", "", "Storage driver: postgres or memory (overrides STORAGE_DRIVER)")
	rootCmd.PersistentFlags().String("log.level", "info", "Log level")
	rootCmd.PersistentFlags().String("log.format", "text", "Log format: text or json")

	viper.BindPFlag("database.url", rootCmd.PersistentFlags().Lookup("database.url"))
	viper.BindPFlag("storage.driver", rootCmd.PersistentFlags().Lookup("storage.driver"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log.level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log.format"))

	rootCmd.AddCommand(migrateCmd, triggerCmd, dueCmd, cleanupCmd, tokenCmd, keygenCmd)
}

func initConfig() {
	viper.SetConfigName("syncctl")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("syncctl")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig reads the service environment and applies flag overrides.
func loadConfig() *config.Config {
	cfg := config.Load()
	if url := viper.GetString("database.url"); url != "" {
		cfg.DatabaseURL = url
	}
	if driver := viper.GetString("storage.driver"); driver != "" {
		cfg.StorageDriver = driver
	}
	return cfg
}

func openApp(ctx context.Context) (*app.App, error) {
	return app.New(ctx, loadConfig())
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
