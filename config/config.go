package config

import (
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	StrategyRoundRobin       = "round-robin"
	StrategyLeastConnections = "least-connections"
	StrategyLoadAware        = "load-aware"
	StrategyCompare          = "compare"
)

const (
	OrphanPolicyReassign = "reassign"
	OrphanPolicyDrop     = "drop"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type StrategyConfig struct {
	Type string `mapstructure:"type"`
}

type PoolEntry struct {
	Name     string `mapstructure:"name"`
	Capacity int    `mapstructure:"capacity"`
}

type AdmissionConfig struct {
	RequestTimeout      string  `mapstructure:"request_timeout"`
	HealthCheckInterval string  `mapstructure:"health_check_interval"`
	FailureProbability  float64 `mapstructure:"failure_probability"`
	OrphanPolicy        string  `mapstructure:"orphan_policy"`
}

type ProcessingConfig struct {
	DispatchMin  string `mapstructure:"dispatch_min"`
	DispatchMax  string `mapstructure:"dispatch_max"`
	LeastConnMin string `mapstructure:"least_conn_min"`
	LeastConnMax string `mapstructure:"least_conn_max"`
	LoadAwareMin string `mapstructure:"load_aware_min"`
	LoadAwareMax string `mapstructure:"load_aware_max"`
}

type WorkloadConfig struct {
	Requests     int    `mapstructure:"requests"`
	MinSize      int    `mapstructure:"min_size"`
	MaxSize      int    `mapstructure:"max_size"`
	Interarrival string `mapstructure:"interarrival"`
}

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Strategy   StrategyConfig   `mapstructure:"strategy"`
	Pool       []PoolEntry      `mapstructure:"pool"`
	Admission  AdmissionConfig  `mapstructure:"admission"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Workload   WorkloadConfig   `mapstructure:"workload"`
}

func Load() (*Config, error) {
	viper.SetDefault("server.environment", EnvDev)
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("logging.level", LogLevelInfo)
	viper.SetDefault("strategy.type", StrategyCompare)
	viper.SetDefault("admission.request_timeout", "5s")
	viper.SetDefault("admission.health_check_interval", "10s")
	viper.SetDefault("admission.failure_probability", 0.005)
	viper.SetDefault("admission.orphan_policy", OrphanPolicyReassign)
	viper.SetDefault("processing.dispatch_min", "10ms")
	viper.SetDefault("processing.dispatch_max", "100ms")
	viper.SetDefault("processing.least_conn_min", "10ms")
	viper.SetDefault("processing.least_conn_max", "100ms")
	viper.SetDefault("processing.load_aware_min", "100ms")
	viper.SetDefault("processing.load_aware_max", "500ms")
	viper.SetDefault("workload.requests", 10)
	viper.SetDefault("workload.min_size", 10)
	viper.SetDefault("workload.max_size", 350)
	viper.SetDefault("workload.interarrival", "300ms")
	viper.SetDefault("pool", []map[string]any{
		{"name": "web-01", "capacity": 100},
		{"name": "web-02", "capacity": 150},
		{"name": "web-03", "capacity": 400},
	})

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Info("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Strategy,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(StrategyConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a StrategyConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Type,
						validation.Required,
						validation.In(StrategyRoundRobin, StrategyLeastConnections, StrategyLoadAware, StrategyCompare),
					),
				)
			}),
		),
		validation.Field(&c.Pool,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validatePoolEntry)),
		),
		validation.Field(&c.Admission,
			validation.Required,
			validation.By(func(value interface{}) error {
				ac, ok := value.(AdmissionConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an AdmissionConfig")
				}
				return validation.ValidateStruct(&ac,
					validation.Field(&ac.RequestTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&ac.HealthCheckInterval,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&ac.FailureProbability,
						validation.Min(0.0),
						validation.Max(1.0),
					),
					validation.Field(&ac.OrphanPolicy,
						validation.Required,
						validation.In(OrphanPolicyReassign, OrphanPolicyDrop),
					),
				)
			}),
		),
		validation.Field(&c.Processing,
			validation.Required,
			validation.By(func(value interface{}) error {
				pc, ok := value.(ProcessingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ProcessingConfig")
				}
				return validation.ValidateStruct(&pc,
					validation.Field(&pc.DispatchMin, validation.Required, validation.By(validateDuration)),
					validation.Field(&pc.DispatchMax, validation.Required, validation.By(validateDuration)),
					validation.Field(&pc.LeastConnMin, validation.Required, validation.By(validateDuration)),
					validation.Field(&pc.LeastConnMax, validation.Required, validation.By(validateDuration)),
					validation.Field(&pc.LoadAwareMin, validation.Required, validation.By(validateDuration)),
					validation.Field(&pc.LoadAwareMax, validation.Required, validation.By(validateDuration)),
				)
			}),
		),
		validation.Field(&c.Workload,
			validation.Required,
			validation.By(func(value interface{}) error {
				wc, ok := value.(WorkloadConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a WorkloadConfig")
				}
				return validation.ValidateStruct(&wc,
					validation.Field(&wc.Requests, validation.Required, validation.Min(1)),
					validation.Field(&wc.MinSize, validation.Required, validation.Min(1)),
					validation.Field(&wc.MaxSize, validation.Required, validation.Min(wc.MinSize)),
					validation.Field(&wc.Interarrival, validation.Required, validation.By(validateDuration)),
				)
			}),
		),
	)
}

func validatePoolEntry(value interface{}) error {
	entry, ok := value.(PoolEntry)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a PoolEntry")
	}

	return validation.ValidateStruct(&entry,
		validation.Field(&entry.Name, validation.Required),
		validation.Field(&entry.Capacity, validation.Required, validation.Min(1)),
	)
}

func validateDuration(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration")
	}

	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be positive")
	}

	return nil
}

// Capacities returns the configured pool as a server id to capacity
// mapping.
func (c *Config) Capacities() map[string]int {
	capacities := make(map[string]int, len(c.Pool))
	for _, entry := range c.Pool {
		capacities[entry.Name] = entry.Capacity
	}

	return capacities
}

