package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all externally tunable settings. The scheduling constants
// (RateLimit, WindowDuration, BatchCap) are configuration, never literals
// inside the algorithm.
type Config struct {
	Port             string        `env:"PORT" envDefault:"8080"`
	DatabasePath     string        `env:"DATABASE_PATH" envDefault:"oms.db"`
	JWTSecret        string        `env:"JWT_SECRET" envDefault:"oms-secret-key"`
	RateLimit        int           `env:"RATE_LIMIT" envDefault:"10"`
	WindowDuration   time.Duration `env:"WINDOW_DURATION" envDefault:"10s"`
	BatchCap         int           `env:"BATCH_CAP" envDefault:"10"`
	ExecutionMode    string        `env:"EXECUTION_MODE" envDefault:"paper"` // paper or live
	ExchangeURL      string        `env:"EXCHANGE_URL" envDefault:""`
	ExecutionTimeout time.Duration `env:"EXECUTION_TIMEOUT" envDefault:"5s"`
}

func Load() (Config, error) {
	var cfg Config
	return cfg, env.Parse(&cfg)
}
