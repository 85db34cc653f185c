package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/guildkeeper/internal/config"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/logging"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/metrics"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/store"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/timestamps"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries state shared by every subcommand of one root command.
type cli struct {
	configViper *viper.Viper
	cfgFile     string
	envFile     string
}

func newRootCommand() *cobra.Command {
	app := &cli{configViper: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:           "guildkeeper",
		Short:         "Guild bot storage engine and dashboard",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.initConfig()
		},
	}

	app.setupFlags(rootCmd)
	rootCmd.AddCommand(
		app.newServeCommand(),
		app.newAdminsCommand(),
		app.newQuestionsCommand(),
		app.newXPCommand(),
		app.newSnapshotCommand(),
		app.newBackupCommand(),
	)
	return rootCmd
}

func (app *cli) setupFlags(cmd *cobra.Command) {
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&app.cfgFile, "config", "", "Path to configuration file")
	flags.StringVar(&app.envFile, "env-file", "", "Path to a .env file (defaults to ./.env when present)")
	flags.String("storage-path", defaults.GetString("storage.path"), "Primary JSON snapshot path")
	flags.String("backup-path", defaults.GetString("storage.backup_path"), "SQLite backup path (empty disables the mirror)")
	flags.String("timezone", defaults.GetString("system.timezone"), "Timestamp offset, e.g. UTC+03:30")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("log-file", defaults.GetString("log.file"), "Optional log file path")

	app.bindFlag(cmd, "storage.path", "storage-path")
	app.bindFlag(cmd, "storage.backup_path", "backup-path")
	app.bindFlag(cmd, "system.timezone", "timezone")
	app.bindFlag(cmd, "log.level", "log-level")
	app.bindFlag(cmd, "log.file", "log-file")
}

func (app *cli) bindFlag(cmd *cobra.Command, key, flag string) {
	if err := app.configViper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func (app *cli) initConfig() error {
	if app.envFile != "" {
		if err := config.LoadDotEnv(app.envFile); err != nil {
			return err
		}
	} else if err := config.LoadDotEnv(); err != nil {
		return err
	}

	if app.cfgFile == "" {
		return nil
	}
	app.configViper.SetConfigFile(app.cfgFile)
	if err := app.configViper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if errors.As(err, &configNotFound) {
			return fmt.Errorf("config file %s: %w", app.cfgFile, err)
		}
		return err
	}
	return nil
}

// runtime is everything a command needs to touch the storage.
type runtime struct {
	config config.AppConfig
	logger *zap.Logger
	store  *store.Store
}

func (app *cli) openRuntime(ctx context.Context, recorder metrics.Recorder) (*runtime, error) {
	appConfig, err := config.Load(app.configViper)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFile)
	if err != nil {
		return nil, err
	}

	clock := timestamps.NewClock(appConfig.Timezone)
	repository, err := store.New(store.Config{
		Path:       appConfig.StoragePath,
		BackupPath: appConfig.BackupPath,
		Clock:      clock,
		Metrics:    recorder,
		Logger:     logger,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	if err := repository.Load(ctx); err != nil {
		_ = logger.Sync()
		return nil, err
	}

	return &runtime{config: appConfig, logger: logger, store: repository}, nil
}

func (r *runtime) close() {
	_ = r.logger.Sync()
}
