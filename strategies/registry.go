// Package strategies contains the bar-driven trading strategies and their
// sizing helpers.
package strategies

import (
	"fmt"
	"sort"

	"btlab/services/engine"
)

// WarmupStrategy is implemented by strategies that need a minimum number of
// bars before their first signal.
type WarmupStrategy interface {
	engine.Strategy
	Warmup() int
}

var factories = map[string]func() WarmupStrategy{
	"boll_breakout":  func() WarmupStrategy { return NewBollBreakout(DefaultBollBreakoutParams()) },
	"pullback_ema20": func() WarmupStrategy { return NewPullbackEMA(DefaultPullbackEMAParams()) },
}

// New builds a fresh strategy instance by name. Instances hold per-run state
// so each symbol replay gets its own.
func New(name string) (WarmupStrategy, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %v)", name, Names())
	}
	return f(), nil
}

// Names lists the registered strategy names, sorted.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
