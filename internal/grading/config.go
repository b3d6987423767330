package grading

import (
	"fmt"
	"time"

	"github.com/pavelanni/evaluator/internal/llm/prompts"
)

// Defaults for Config.
const (
	DefaultProviderTimeout = 20 * time.Second
	DefaultWorkers         = 4
)

// Config is the immutable engine configuration, built once at startup.
type Config struct {
	ProviderTimeout time.Duration
	Workers         int
	Band            GradeBand
	PromptVariant   prompts.PromptVariant
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		ProviderTimeout: DefaultProviderTimeout,
		Workers:         DefaultWorkers,
		Band:            CoarseBand,
		PromptVariant:   prompts.PromptStandard,
	}
}

func (c Config) validate() error {
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("provider timeout must be positive, got %s", c.ProviderTimeout)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if len(c.Band.Thresholds) == 0 {
		return fmt.Errorf("grade band is required")
	}
	return nil
}

// Messages resolves fixed human-readable strings. *i18n.Catalog implements it.
type Messages interface {
	T(msgID string) string
	Td(msgID string, data map[string]any) string
}
