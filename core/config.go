package core

import (
	"fmt"
	"strings"
	"time"
)

type PipelineConfig struct {
	AgentTimeout   time.Duration `koanf:"agent_timeout" mapstructure:"agent_timeout"`
	ProcessTimeout time.Duration `koanf:"process_timeout" mapstructure:"process_timeout"`
	ReplayLease    time.Duration `koanf:"replay_lease" mapstructure:"replay_lease"`
}

type DispatchConfig struct {
	BatchSize      int           `koanf:"batch_size" mapstructure:"batch_size"`
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Pipeline    PipelineConfig `koanf:"pipeline" mapstructure:"pipeline"`
	Dispatch    DispatchConfig `koanf:"dispatch" mapstructure:"dispatch"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "messaging",
		Pipeline: PipelineConfig{
			AgentTimeout:   30 * time.Second,
			ProcessTimeout: 2 * time.Minute,
			ReplayLease:    10 * time.Minute,
		},
		Dispatch: DispatchConfig{
			BatchSize:      50,
			MaxAttempts:    5,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     5 * time.Minute,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Pipeline.AgentTimeout < 0 {
		return fmt.Errorf("core: pipeline.agent_timeout must not be negative")
	}
	if c.Pipeline.ProcessTimeout < 0 {
		return fmt.Errorf("core: pipeline.process_timeout must not be negative")
	}
	if c.Dispatch.BatchSize < 0 {
		return fmt.Errorf("core: dispatch.batch_size must not be negative")
	}
	if c.Dispatch.MaxAttempts < 0 {
		return fmt.Errorf("core: dispatch.max_attempts must not be negative")
	}
	return nil
}
