package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/rommsen/budgetbuddy/internal/banking"
	"github.com/rommsen/budgetbuddy/internal/config"
	"github.com/rommsen/budgetbuddy/internal/database"
	"github.com/rommsen/budgetbuddy/internal/database/repository"
	"github.com/rommsen/budgetbuddy/internal/logging"
	"github.com/rommsen/budgetbuddy/internal/service"
	"github.com/rommsen/budgetbuddy/internal/tui"
	"github.com/rommsen/budgetbuddy/internal/ynab"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "budgetbuddy",
		Short:   "Sync comdirect bank transactions into YNAB",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), configPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(newMigrateCommand(&configPath))
	return rootCmd
}

func newMigrateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
				return fmt.Errorf("mkdir db dir: %w", err)
			}
			db, err := database.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()
			return database.RunEmbeddedMigrations(db)
		},
	}
}

func runTUI(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("mkdir db dir: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	if err := database.RunEmbeddedMigrations(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	bank := banking.NewComdirect(cfg.Comdirect.BaseURL, cfg.Comdirect.AccountID, banking.Credentials{
		ClientID:     config.Secret(cfg.Comdirect.ClientIDEnv),
		ClientSecret: config.Secret(cfg.Comdirect.ClientSecretEnv),
		Username:     config.Secret(cfg.Comdirect.UsernameEnv),
		Password:     config.Secret(cfg.Comdirect.PasswordEnv),
	}, logging.Component(log, "comdirect"))

	budget := ynab.NewHTTPClient(cfg.YNAB.BaseURL, config.Secret(cfg.YNAB.TokenEnv), logging.Component(log, "ynab"))

	svc := &service.SyncService{
		Sessions:     repository.NewSessionRepo(db),
		Transactions: repository.NewTransactionRepo(db),
		Rules:        repository.NewRuleRepo(db),
		History:      repository.NewHistoryRepo(db),
		Bank:         bank,
		Budget:       budget,
		BudgetID:     cfg.YNAB.BudgetID,
		AccountID:    cfg.YNAB.AccountID,
		Log:          logging.Component(log, "sync"),
	}

	p := tea.NewProgram(tui.New(ctx, svc, logging.Component(log, "tui")), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
