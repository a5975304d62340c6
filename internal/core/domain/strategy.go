package domain

import "fmt"

// =============================================================================
// Strategy
// =============================================================================

// Strategy selects how deployable services are grouped into waves.
type Strategy string

const (
	StrategySequential        Strategy = "sequential"
	StrategyParallelOptimized Strategy = "parallel_optimized"
	StrategyPriorityBased     Strategy = "priority_based"
)

// Strategies lists every supported strategy in presentation order.
func Strategies() []Strategy {
	return []Strategy{StrategySequential, StrategyParallelOptimized, StrategyPriorityBased}
}

// ParseStrategy converts a strategy tag into a Strategy. Tags match exactly.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategySequential:
		return StrategySequential, nil
	case StrategyParallelOptimized:
		return StrategyParallelOptimized, nil
	case StrategyPriorityBased:
		return StrategyPriorityBased, nil
	default:
		return "", NewPlanError("ParseStrategy", "", fmt.Sprintf("unknown deployment strategy %q", s), ErrUnknownStrategy)
	}
}

// IsValid reports whether s is one of the supported strategies.
func (s Strategy) IsValid() bool {
	_, err := ParseStrategy(string(s))
	return err == nil
}

// =============================================================================
// Strategy Catalog
// =============================================================================

// StrategyConfig is the per-strategy configuration supplied by the Config Provider.
type StrategyConfig struct {
	AllowParallel        bool `json:"allow_parallel" yaml:"allow_parallel"`
	MaxConcurrentPerWave int  `json:"max_concurrent_per_wave" yaml:"max_concurrent_per_wave"`
}

// StrategyCatalog maps strategies to their configuration.
type StrategyCatalog map[Strategy]StrategyConfig

// DefaultStrategyCatalog returns the built-in strategy configuration.
func DefaultStrategyCatalog() StrategyCatalog {
	return StrategyCatalog{
		StrategySequential:        {AllowParallel: false, MaxConcurrentPerWave: 1},
		StrategyParallelOptimized: {AllowParallel: true, MaxConcurrentPerWave: 3},
		StrategyPriorityBased:     {AllowParallel: true, MaxConcurrentPerWave: 2},
	}
}

// Lookup returns the configuration for s, falling back to the built-in
// defaults when the catalog has no entry.
func (c StrategyCatalog) Lookup(s Strategy) StrategyConfig {
	if cfg, ok := c[s]; ok {
		if cfg.MaxConcurrentPerWave < 1 {
			cfg.MaxConcurrentPerWave = 1
		}
		return cfg
	}
	return DefaultStrategyCatalog()[s]
}
