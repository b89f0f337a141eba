package config

import (
	"fmt"
	"os"
	"strconv"

	yaml "gopkg.in/yaml.v3"

	"pdroute/internal/model"
)

// Config is the service configuration, loaded from an optional YAML file and
// overridden by environment variables.
type Config struct {
	Listen         string            `yaml:"listen"`
	DatabaseURL    string            `yaml:"databaseUrl"`
	RedisURL       string            `yaml:"redisUrl"`
	SolveBudgetMs  int               `yaml:"solveBudgetMs"`
	RateLimitRPS   float64           `yaml:"rateLimitRps"`
	RateLimitBurst int               `yaml:"rateLimitBurst"`
	CostFactors    model.CostFactors `yaml:"costFactors"`
}

func Default() Config {
	return Config{
		Listen:         ":8080",
		SolveBudgetMs:  30000,
		RateLimitRPS:   50,
		RateLimitBurst: 100,
		CostFactors:    model.CostFactors{Alpha: 0.6, Beta: 0.5},
	}
}

// Load reads the YAML file at path (skipped when path is empty or missing)
// and applies environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Listen = ":" + v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("SOLVE_BUDGET_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SolveBudgetMs = n
		}
	}

	if cfg.SolveBudgetMs <= 0 {
		return cfg, fmt.Errorf("config: solveBudgetMs must be > 0")
	}
	if cfg.CostFactors.Alpha < 0 || cfg.CostFactors.Beta < 0 {
		return cfg, fmt.Errorf("config: cost factors must be >= 0")
	}
	return cfg, nil
}
