package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"memo/internal/app"
	"memo/internal/config"
	"memo/internal/logger"
	"memo/internal/migrations"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// NewRootCommand собирает CLI с общим флагом --config.
func NewRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "memo",
		Short:         "Memo - задачи с напоминаниями",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "путь к config.yml")

	load := func() (*config.Config, error) {
		return config.Load(configPath)
	}

	rootCmd.AddCommand(
		NewServeCommand(load),
		NewMigrateCommand(load),
		NewConfigCommand(load),
	)
	return rootCmd
}

type loader func() (*config.Config, error)

func NewServeCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API и планировщик напоминаний",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application := app.New(cfg)
			if err := application.Init(ctx); err != nil {
				application.Close()
				return errors.Wrap(err, "инициализация приложения")
			}
			return application.Run(ctx)
		},
	}
}

// NewMigrateCommand управляет схемой postgres: up, down, version.
func NewMigrateCommand(load loader) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Миграции базы данных",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(true, "info")
		},
	}

	databaseURL := func() (string, error) {
		cfg, err := load()
		if err != nil {
			return "", err
		}
		if cfg.Database.URL == "" {
			return "", errors.New("не задан database.url")
		}
		return cfg.Database.URL, nil
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Применить все миграции",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}
			return migrations.Up(url)
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Откатить все миграции",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}
			return migrations.Down(url)
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Показать текущую версию схемы",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}
			version, dirty, err := migrations.Version(url)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version: %d, dirty: %t\n", version, dirty)
			return nil
		},
	})

	return migrateCmd
}

// NewConfigCommand печатает действующую конфигурацию без секретов.
func NewConfigCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Показать действующую конфигурацию",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			out, err := cfg.Dump()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// Execute запускает CLI с контекстом процесса.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
