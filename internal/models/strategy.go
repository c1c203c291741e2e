package models

import (
	"fmt"
	"strings"
)

// RoutingStrategy selects the winning vault among available candidates.
// The set is closed; new strategies are not added at runtime.
type RoutingStrategy uint8

const (
	// StrategyManualPriority is the default assigned to a context when it is
	// first observed. Any unrecognized value falls back to its semantics.
	StrategyManualPriority RoutingStrategy = iota
	StrategyHighestYield
	StrategyLowestRisk
	StrategyBalanced
	StrategyRoundRobin
)

func (s RoutingStrategy) String() string {
	switch s {
	case StrategyManualPriority:
		return "manual_priority"
	case StrategyHighestYield:
		return "highest_yield"
	case StrategyLowestRisk:
		return "lowest_risk"
	case StrategyBalanced:
		return "balanced"
	case StrategyRoundRobin:
		return "round_robin"
	}
	return fmt.Sprintf("routing_strategy(%d)", uint8(s))
}

func ParseRoutingStrategy(raw string) (RoutingStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "manual_priority":
		return StrategyManualPriority, nil
	case "highest_yield":
		return StrategyHighestYield, nil
	case "lowest_risk":
		return StrategyLowestRisk, nil
	case "balanced":
		return StrategyBalanced, nil
	case "round_robin":
		return StrategyRoundRobin, nil
	}
	return StrategyManualPriority, fmt.Errorf("unknown routing strategy: %q", raw)
}

// ContextStats is the observability view of a routing context.
type ContextStats struct {
	Context     string `json:"context"`
	Strategy    string `json:"strategy"`
	EventCount  uint64 `json:"event_count"`
	MemberCount int    `json:"member_count"`
}
