// Package config содержит логику чтения конфигурации леджера FODI.
package config

import (
	"errors"
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ErrInvalidBurnRate возвращается, если ставка сжигания больше 100%.
var ErrInvalidBurnRate = errors.New("burn rate must be between 0 and 100 percent")

// RewardConfig содержит фиксированные суммы наград по категориям, в минимальных единицах.
type RewardConfig struct {
	OrderCompletion uint64 `env:"ORDER_COMPLETION" envDefault:"100000000"`
	Referral        uint64 `env:"REFERRAL" envDefault:"500000000"`
	DailyLogin      uint64 `env:"DAILY_LOGIN" envDefault:"10000000"`
	Review          uint64 `env:"REVIEW" envDefault:"50000000"`
}

// BurnConfig содержит параметры сжигания. TransactionBurnRate задаётся в целых процентах.
type BurnConfig struct {
	TransactionBurnRate uint8  `env:"TRANSACTION_RATE" envDefault:"1"`
	MinBurnAmount       uint64 `env:"MIN_AMOUNT" envDefault:"1000000"`
}

// Config содержит параметры конфигурации леджера.
type Config struct {
	RunAddress              string   `env:"RUN_ADDRESS"`
	DatabaseURI             string   `env:"DATABASE_URI"`
	SettlementSystemAddress string   `env:"SETTLEMENT_SYSTEM_ADDRESS"`
	AuthSecret              string   `env:"LEDGER_AUTH_SECRET"`
	CORSAllowedOrigins      []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	Reward RewardConfig `envPrefix:"REWARD_"`
	Burn   BurnConfig   `envPrefix:"BURN_"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envSettlementAddress := cfg.SettlementSystemAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory ledger when empty")
	flag.StringVar(&cfg.SettlementSystemAddress, "s", "", "settlement system address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envSettlementAddress != "" {
		cfg.SettlementSystemAddress = envSettlementAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if err := cfg.Burn.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет, что ставка сжигания выражена корректным процентом.
func (c BurnConfig) Validate() error {
	if c.TransactionBurnRate > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidBurnRate, c.TransactionBurnRate)
	}
	return nil
}
