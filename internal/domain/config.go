package domain

import "time"

// Config holds the complete cashops configuration.
type Config struct {
	// Server settings
	Server ServerConfig `mapstructure:"server" json:"server"`

	// Tier determines which backends are wired
	Tier Tier `mapstructure:"tier" json:"tier" validate:"oneof=community pro"`

	// Simulation drives the event generator
	Simulation SimulationConfig `mapstructure:"simulation" json:"simulation"`

	// Component configurations
	Repository RepositoryConfig `mapstructure:"repository" json:"repository"`
	Cache      CacheConfig      `mapstructure:"cache" json:"cache"`
	EventBus   EventBusConfig   `mapstructure:"event_bus" json:"eventBus"`

	// Observability
	Logging LoggingConfig `mapstructure:"logging" json:"logging"`
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `mapstructure:"host" json:"host"`
	Port         int    `mapstructure:"port" json:"port" validate:"gt=0,lte=65535"`
	ReadTimeout  int    `mapstructure:"read_timeout" json:"readTimeout"`   // seconds
	WriteTimeout int    `mapstructure:"write_timeout" json:"writeTimeout"` // seconds
}

// SimulationConfig holds generator settings.
// Weight maps are keyed by wire names; empty maps mean built-in defaults.
type SimulationConfig struct {
	BatchSize       int                `mapstructure:"batch_size" json:"batchSize" validate:"gt=0,lte=1000000"`
	HistoryDays     int                `mapstructure:"history_days" json:"historyDays" validate:"gte=1,lte=366"`
	AnomalyRate     float64            `mapstructure:"anomaly_rate" json:"anomalyRate" validate:"gte=0,lte=1"`
	BusinessWeights map[string]float64 `mapstructure:"business_weights" json:"businessWeights,omitempty" validate:"dive,keys,required,endkeys,gte=0"`
	RegionWeights   map[string]float64 `mapstructure:"region_weights" json:"regionWeights,omitempty" validate:"dive,keys,required,endkeys,gte=0"`
	Workers         int                `mapstructure:"workers" json:"workers" validate:"gte=0,lte=256"`
	Seed            uint64             `mapstructure:"seed" json:"seed"` // 0 = derive from clock
	BatchTTL        time.Duration      `mapstructure:"batch_ttl" json:"batchTtl" validate:"gte=0"`
	HistoryTTL      time.Duration      `mapstructure:"history_ttl" json:"historyTtl" validate:"gte=0"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" json:"format" validate:"oneof=json text"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled" json:"enabled"`
	ServiceName  string `mapstructure:"service_name" json:"serviceName"`
	ExporterType string `mapstructure:"exporter_type" json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `mapstructure:"endpoint" json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + in-memory cache + channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + Redis + NATS
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Simulation: SimulationConfig{
			BatchSize:   300,
			HistoryDays: 10,
			AnomalyRate: 0.10,
			Workers:     4,
			BatchTTL:    time.Minute,
			HistoryTTL:  5 * time.Minute,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./cashops.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "cashops",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "cashops",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       30 * time.Second,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
