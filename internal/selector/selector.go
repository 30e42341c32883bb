// Package selector picks a placement target from a point-in-time
// capacity snapshot. Selection is a pure function; the snapshot comes
// from the driver and is advisory only, so two concurrent selections may
// pick the same target.
package selector

import (
	"go.uber.org/zap"

	"provinator.io/provinator/internal/hypervisor"
	apperrors "provinator.io/provinator/internal/pkg/errors"
	"provinator.io/provinator/internal/pkg/logger"
)

// StrategyLeastMemory picks the online target with the lowest
// used/total memory ratio. It is the default strategy.
const StrategyLeastMemory = "least_memory"

// Select filters targets to online ones and applies the strategy.
// An unknown strategy falls back to the first online target.
func Select(targets []hypervisor.Target, strategy string) (hypervisor.Target, error) {
	online := make([]hypervisor.Target, 0, len(targets))
	for _, t := range targets {
		if t.Online {
			online = append(online, t)
		}
	}

	if len(online) == 0 {
		return hypervisor.Target{}, apperrors.NoAvailableCapacity("no online nodes available")
	}
	if len(online) == 1 {
		return online[0], nil
	}

	switch strategy {
	case StrategyLeastMemory, "":
		return leastMemory(online), nil
	default:
		logger.Warn("Unknown node selection strategy, using first online target",
			zap.String("strategy", strategy),
		)
		return online[0], nil
	}
}

// leastMemory returns the target with the lowest used/total ratio. Ties
// keep the earliest candidate so selection is deterministic for a given
// snapshot order.
func leastMemory(online []hypervisor.Target) hypervisor.Target {
	best := online[0]
	bestRatio := memoryRatio(best)
	for _, t := range online[1:] {
		if r := memoryRatio(t); r < bestRatio {
			best = t
			bestRatio = r
		}
	}
	return best
}

// memoryRatio treats a target reporting no total memory as fully used.
func memoryRatio(t hypervisor.Target) float64 {
	if t.TotalMemory == 0 {
		return 1.0
	}
	return float64(t.UsedMemory) / float64(t.TotalMemory)
}
