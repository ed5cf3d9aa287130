package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"payday/internal/jobs"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Addr     string `koanf:"addr"`
	LogLevel string `koanf:"log_level"`

	StoreDriver string `koanf:"store_driver"`
	DatabaseURL string `koanf:"database_url"`
	SQLitePath  string `koanf:"sqlite_path"`
	DBMaxConns  int32  `koanf:"db_max_conns"`
	DBMinConns  int32  `koanf:"db_min_conns"`

	SupabaseURL     string `koanf:"supabase_url"`
	SupabaseAnonKey string `koanf:"supabase_anon_key"`
	// AdminTokenHash is a bcrypt hash of the admin bearer token.
	AdminTokenHash string `koanf:"admin_token_hash"`

	ProfessionsFile     string        `koanf:"professions_file"`
	FineProtectionFloor int64         `koanf:"fine_protection_floor"`
	FineBonusRate       float64       `koanf:"fine_bonus_rate"`
	FineVictimCooldown  time.Duration `koanf:"fine_victim_cooldown"`
	StarterBalance      int64         `koanf:"starter_balance"`

	LedgerTimeout time.Duration `koanf:"ledger_timeout"`
	NotifyTimeout time.Duration `koanf:"notify_timeout"`
	PurgeEvery    time.Duration `koanf:"purge_every"`

	DiscordToken     string   `koanf:"discord_token"`
	DiscordAdminIDs  []string `koanf:"discord_admin_ids"`
	WhatsAppEnabled  bool     `koanf:"whatsapp_enabled"`
	WhatsAppStoreDSN string   `koanf:"whatsapp_store_dsn"`

	OTelEndpoint string `koanf:"otel_endpoint"`

	APIBaseURL string `koanf:"api_base_url"`
}

func Default() *Config {
	policy := jobs.DefaultFinePolicy()
	return &Config{
		Addr:                ":8080",
		LogLevel:            "info",
		StoreDriver:         DriverPostgres,
		SQLitePath:          "payday.db",
		DBMaxConns:          20,
		DBMinConns:          2,
		FineProtectionFloor: policy.ProtectionFloor,
		FineBonusRate:       policy.BonusRate,
		FineVictimCooldown:  policy.VictimCooldown,
		LedgerTimeout:       5 * time.Second,
		NotifyTimeout:       3 * time.Second,
		PurgeEvery:          10 * time.Minute,
		APIBaseURL:          "http://localhost:8080",
	}
}

// Load layers defaults, the YAML file named by PAYDAY_CONFIG, and PAYDAY_*
// environment variables, in that order. PORT and DATABASE_URL are honoured
// for hosted deployments.
func Load() (*Config, error) {
	k := koanf.New(".")
	if path := strings.TrimSpace(os.Getenv("PAYDAY_CONFIG")); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	envProvider := env.ProviderWithValue("PAYDAY_", ".", func(key, value string) (string, any) {
		key = strings.TrimPrefix(strings.ToLower(key), "payday_")
		if _, ok := listKeys[key]; ok {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Addr = port
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	cfg.SupabaseURL = strings.TrimRight(strings.TrimSpace(cfg.SupabaseURL), "/")
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// listKeys are comma separated when they come from the environment.
var listKeys = map[string]struct{}{
	"discord_admin_ids": {},
}

func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: database_url is required for the postgres store", ErrInvalidConfig)
		}
		if c.DBMaxConns < 1 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("%w: need 0 <= db_min_conns <= db_max_conns and db_max_conns >= 1", ErrInvalidConfig)
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("%w: sqlite_path is required for the sqlite store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.LedgerTimeout <= 0 || c.NotifyTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	if c.PurgeEvery <= 0 {
		return fmt.Errorf("%w: purge_every must be positive", ErrInvalidConfig)
	}
	if c.StarterBalance < 0 {
		return fmt.Errorf("%w: starter_balance must not be negative", ErrInvalidConfig)
	}
	if err := c.FinePolicy().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) ValidateAPI() error {
	if c.SupabaseURL == "" {
		return fmt.Errorf("%w: supabase_url is required", ErrInvalidConfig)
	}
	if c.SupabaseAnonKey == "" {
		return fmt.Errorf("%w: supabase_anon_key is required", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) ValidateBot() error {
	if strings.TrimSpace(c.DiscordToken) == "" {
		return fmt.Errorf("%w: discord_token is required", ErrInvalidConfig)
	}
	if c.WhatsAppEnabled && strings.TrimSpace(c.WhatsAppStoreDSN) == "" {
		return fmt.Errorf("%w: whatsapp_store_dsn is required when whatsapp is enabled", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) FinePolicy() jobs.FinePolicy {
	return jobs.FinePolicy{
		ProtectionFloor: c.FineProtectionFloor,
		VictimCooldown:  c.FineVictimCooldown,
		BonusRate:       c.FineBonusRate,
	}
}

// Registry returns the built-in profession table unless professions_file
// names a replacement.
func (c *Config) Registry() (*jobs.Registry, error) {
	if strings.TrimSpace(c.ProfessionsFile) == "" {
		return jobs.DefaultRegistry(), nil
	}
	return jobs.LoadRegistryFile(c.ProfessionsFile)
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: c.SlogLevel()}))
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadCLIFromEnv() CLIConfig {
	base := strings.TrimSpace(os.Getenv("PAYCTL_API_BASE_URL"))
	if base == "" {
		base = "http://localhost:8080"
	}
	return CLIConfig{APIBaseURL: strings.TrimRight(base, "/")}
}
