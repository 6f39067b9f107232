package core

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// OperatorConfig is the on-disk form of one operator descriptor.
type OperatorConfig struct {
	Name      string `mapstructure:"name"`
	Arity     string `mapstructure:"arity"`
	Form      string `mapstructure:"form"`
	Canonical string `mapstructure:"canonical"`
}

// CacheConfig is the on-disk form of the rewrite cache settings.
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxMemoryMB int           `mapstructure:"max_memory_mb"`
	TTL         time.Duration `mapstructure:"ttl"`
}

// Config is the on-disk configuration for building an Orchestrator. An
// empty operator list selects the built-in catalog.
type Config struct {
	DefaultWorkers   int              `mapstructure:"default_workers"`
	DefaultKeyColumn string           `mapstructure:"default_key_column"`
	HashFunction     string           `mapstructure:"hash_function"`
	SessionID        string           `mapstructure:"session_id"`
	Cache            CacheConfig      `mapstructure:"cache"`
	Operators        []OperatorConfig `mapstructure:"operators"`
}

// LoadConfig reads a configuration file (format inferred from the
// extension).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return &config, nil
}

// BuildCatalog constructs the operator catalog from the configured
// operator table. Conflicts are fatal, matching process-start semantics.
func (c *Config) BuildCatalog() (*OperatorCatalog, error) {
	if len(c.Operators) == 0 {
		return DefaultCatalog(), nil
	}

	descriptors := make([]OperatorDescriptor, 0, len(c.Operators))
	for _, op := range c.Operators {
		desc := OperatorDescriptor{Name: op.Name, Canonical: op.Canonical}
		switch op.Arity {
		case "scalar":
			desc.Arity = ArityScalar
		case "aggregate":
			desc.Arity = ArityAggregate
		default:
			return nil, fmt.Errorf("operator %s has unknown arity %q", op.Name, op.Arity)
		}
		switch op.Form {
		case "infix":
			desc.Form = FormInfix
		case "function", "":
			desc.Form = FormFunction
		default:
			return nil, fmt.Errorf("operator %s has unknown form %q", op.Name, op.Form)
		}
		descriptors = append(descriptors, desc)
	}
	return NewOperatorCatalog(descriptors)
}

// BuildOrchestrator assembles a ready orchestrator from the configuration.
func (c *Config) BuildOrchestrator(logger *zap.Logger) (*Orchestrator, error) {
	catalog, err := c.BuildCatalog()
	if err != nil {
		return nil, err
	}

	config := OrchestratorConfig{
		DefaultWorkers:   c.DefaultWorkers,
		DefaultKeyColumn: c.DefaultKeyColumn,
		HashFunction:     c.HashFunction,
		SessionID:        c.SessionID,
		Logger:           logger,
	}
	if c.Cache.Enabled {
		config.Cache = NewRewriteCache(RewriteCacheConfig{
			Enabled:     true,
			MaxMemoryMB: c.Cache.MaxMemoryMB,
			DefaultTTL:  c.Cache.TTL,
		})
	}
	return NewOrchestrator(catalog, config), nil
}
