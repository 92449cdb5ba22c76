package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database  DatabaseConfig
	Logging   LoggingConfig
	Comdirect ComdirectConfig
	YNAB      YNABConfig `mapstructure:"ynab"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// LoggingConfig holds log output settings. The TUI owns the terminal, so logs
// go to a file by default.
type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

// ComdirectConfig holds banking API settings. Credentials are referenced by
// env-var name, never stored in the config file.
type ComdirectConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	ClientIDEnv     string `mapstructure:"client_id_env"`
	ClientSecretEnv string `mapstructure:"client_secret_env"`
	UsernameEnv     string `mapstructure:"username_env"`
	PasswordEnv     string `mapstructure:"password_env"`
	AccountID       string `mapstructure:"account_id"`
}

// YNABConfig holds budgeting API settings.
type YNABConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	TokenEnv  string `mapstructure:"token_env"`
	BudgetID  string `mapstructure:"budget_id"`
	AccountID string `mapstructure:"account_id"`
}

// Load reads configuration from file and env. Env var overrides use prefix BUDGETBUDDY_.
func Load(path string) (Config, error) {
	v := viper.New()

	dataDir := filepath.Join(os.Getenv("HOME"), ".local", "share", "budgetbuddy")
	v.SetDefault("database.path", filepath.Join(dataDir, "budgetbuddy.db"))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", filepath.Join(dataDir, "budgetbuddy.log"))
	v.SetDefault("comdirect.base_url", "https://api.comdirect.de")
	v.SetDefault("comdirect.client_id_env", "COMDIRECT_CLIENT_ID")
	v.SetDefault("comdirect.client_secret_env", "COMDIRECT_CLIENT_SECRET")
	v.SetDefault("comdirect.username_env", "COMDIRECT_USERNAME")
	v.SetDefault("comdirect.password_env", "COMDIRECT_PASSWORD")
	v.SetDefault("comdirect.account_id", "")
	v.SetDefault("ynab.base_url", "https://api.ynab.com/v1")
	v.SetDefault("ynab.token_env", "YNAB_TOKEN")
	v.SetDefault("ynab.budget_id", "")
	v.SetDefault("ynab.account_id", "")

	v.SetConfigType("toml")

	if path == "" {
		path = os.Getenv("BUDGETBUDDY_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "budgetbuddy"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("BUDGETBUDDY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Secret resolves a credential referenced by env-var name.
func Secret(envName string) string {
	return strings.TrimSpace(os.Getenv(envName))
}
