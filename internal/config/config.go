// Package config loads the service configuration from an optional file and
// CASHOPS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/opensource-finance/cashops/internal/domain"
	"github.com/opensource-finance/cashops/internal/simulate"
)

// EnvPrefix prefixes every environment override, e.g. CASHOPS_SERVER_PORT.
const EnvPrefix = "CASHOPS"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

const weightSumTolerance = 1e-6

// envKeys lists the settings that can be overridden from the environment.
// Weight tables are file-only.
var envKeys = []string{
	"tier",
	"server.host", "server.port", "server.read_timeout", "server.write_timeout",
	"simulation.batch_size", "simulation.history_days", "simulation.anomaly_rate",
	"simulation.workers", "simulation.seed", "simulation.batch_ttl", "simulation.history_ttl",
	"repository.driver", "repository.sqlite_path",
	"repository.postgres_host", "repository.postgres_port", "repository.postgres_user",
	"repository.postgres_password", "repository.postgres_db", "repository.postgres_ssl_mode",
	"repository.max_open_conns", "repository.max_idle_conns", "repository.conn_max_lifetime",
	"cache.type", "cache.local_max_size", "cache.local_ttl",
	"cache.redis_addr", "cache.redis_password", "cache.redis_db", "cache.enable_two_phase",
	"event_bus.type", "event_bus.channel_buffer_size",
	"event_bus.nats_url", "event_bus.nats_token", "event_bus.nats_max_reconnects", "event_bus.nats_reconnect_wait",
	"event_bus.kafka_brokers", "event_bus.kafka_group_id",
	"logging.level", "logging.format",
	"tracing.enabled", "tracing.service_name", "tracing.exporter_type", "tracing.endpoint",
}

var validate = validator.New()

// Load builds the configuration. The base is DefaultConfig, or ProConfig when
// the tier resolves to pro; path (optional) and the environment override it.
// The result is validated.
func Load(path string) (*domain.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := domain.DefaultConfig()
	if domain.Tier(strings.ToLower(v.GetString("tier"))) == domain.TierPro {
		cfg = domain.ProConfig()
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and the simulation weight tables.
func Validate(cfg *domain.Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	sc := cfg.Simulation
	if err := checkWeights("business_weights", sc.BusinessWeights); err != nil {
		return err
	}
	if err := checkWeights("region_weights", sc.RegionWeights); err != nil {
		return err
	}
	// Resolves the wire names and checks them against the known sets.
	gcfg, err := simulate.ConfigFrom(sc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := simulate.New(gcfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func checkWeights(name string, weights map[string]float64) error {
	if len(weights) == 0 {
		return nil
	}
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("%w: simulation.%s sum to %v, want 1", ErrInvalid, name, sum)
	}
	return nil
}
