package routing

import (
	"errors"

	"github.com/shopspring/decimal"

	"vaultrouter/internal/models"
	"vaultrouter/internal/registry"
)

var (
	ErrNoVaultsAvailable = errors.New("no vaults available")
	ErrResourceMismatch  = errors.New("vault resource type mismatch")
	ErrSlippageExceeded  = errors.New("shares below minimum")
	ErrNothingToDeposit  = errors.New("nothing to deposit")
)

// Candidate is the per-vault view a strategy scans. PricePerShare is only
// meaningful when HasShares is true; a vault with zero supply is skipped by
// the yield-based strategies.
type Candidate struct {
	ID            string
	Priority      uint64
	RiskScore     int
	PricePerShare decimal.Decimal
	HasShares     bool
}

// SelectIndex runs one strategy scan over candidates and returns the winner's
// index. Every scan is pure; the round-robin cursor is read here and advanced
// only by the execution path. Ties keep the earliest-seen candidate: a later
// one wins only when strictly better, so selection is deterministic for a
// fixed candidate order.
func SelectIndex(strategy models.RoutingStrategy, candidates []Candidate, cursor uint64) (int, error) {
	if len(candidates) == 0 {
		return 0, ErrNoVaultsAvailable
	}
	switch strategy {
	case models.StrategyHighestYield:
		return selectHighestYield(candidates), nil
	case models.StrategyLowestRisk:
		return selectLowestRisk(candidates), nil
	case models.StrategyBalanced:
		return selectBalanced(candidates), nil
	case models.StrategyRoundRobin:
		return int(cursor % uint64(len(candidates))), nil
	default:
		// Manual priority doubles as the fallback for any unrecognized value.
		return selectManualPriority(candidates), nil
	}
}

func selectHighestYield(candidates []Candidate) int {
	win := -1
	var best decimal.Decimal
	for i, c := range candidates {
		if !c.HasShares {
			continue
		}
		if win < 0 || c.PricePerShare.GreaterThan(best) {
			win = i
			best = c.PricePerShare
		}
	}
	if win < 0 {
		// Every candidate has zero supply; default to the first.
		return 0
	}
	return win
}

func selectLowestRisk(candidates []Candidate) int {
	win := 0
	best := registry.MaxRiskScore + 1
	for i, c := range candidates {
		if c.RiskScore < best {
			win = i
			best = c.RiskScore
		}
	}
	return win
}

func selectBalanced(candidates []Candidate) int {
	win := -1
	var best decimal.Decimal
	hundred := decimal.NewFromInt(100)
	for i, c := range candidates {
		if !c.HasShares || c.RiskScore <= 0 {
			continue
		}
		score := c.PricePerShare.Mul(hundred).Div(decimal.NewFromInt(int64(c.RiskScore)))
		if win < 0 || score.GreaterThan(best) {
			win = i
			best = score
		}
	}
	if win < 0 {
		return 0
	}
	return win
}

func selectManualPriority(candidates []Candidate) int {
	win := 0
	best := uint64(0)
	for i, c := range candidates {
		if c.Priority > best {
			win = i
			best = c.Priority
		}
	}
	return win
}
