package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vaultrouter/internal/config"
	"vaultrouter/internal/routing"
)

// Sweeper periodically routes any held balance for the configured
// (context, resource type) pairs. A run with nothing to move or nowhere to
// move it is a quiet no-op; the slippage floor is zero because a sweep has no
// caller to renegotiate with.
type Sweeper struct {
	Engine  *routing.Engine
	Logger  *zap.Logger
	Targets []config.SweepTarget
}

func (s *Sweeper) SweepOnce(ctx context.Context) {
	if s == nil || s.Engine == nil {
		return
	}
	for _, target := range s.Targets {
		if ctx.Err() != nil {
			return
		}
		if target.Context == "" || target.ResourceType == "" {
			continue
		}
		res, err := s.Engine.DepositHeld(ctx, target.Context, target.ResourceType, "", decimal.Zero, "")
		if err != nil {
			if errors.Is(err, routing.ErrNothingToDeposit) || errors.Is(err, routing.ErrNoVaultsAvailable) {
				continue
			}
			if s.Logger != nil {
				s.Logger.Warn("sweep failed",
					zap.String("context", target.Context),
					zap.String("resource_type", target.ResourceType),
					zap.Error(err),
				)
			}
			continue
		}
		if s.Logger != nil {
			s.Logger.Info("swept held balance",
				zap.String("context", target.Context),
				zap.String("resource_type", target.ResourceType),
				zap.String("vault", res.Vault),
				zap.String("deposited", res.Deposited.String()),
			)
		}
	}
}
