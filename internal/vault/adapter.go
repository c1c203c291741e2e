package vault

import (
	"context"

	"github.com/shopspring/decimal"
)

// Adapter is the deposit-for-shares capability every registered vault
// implements. The engine trusts its accounting and does none of its own.
type Adapter interface {
	// Asset reports the resource type this vault accepts. Queried once at
	// registration and trusted thereafter.
	Asset(ctx context.Context) (string, error)
	TotalAssets(ctx context.Context) (decimal.Decimal, error)
	TotalSupply(ctx context.Context) (decimal.Decimal, error)
	// Deposit pulls amount from the engine's account (within the approved
	// allowance) and returns the shares minted to receiver.
	Deposit(ctx context.Context, amount decimal.Decimal, receiver string) (decimal.Decimal, error)
}

// AdapterResolver maps a vault id to its adapter.
type AdapterResolver interface {
	Adapter(id string) (Adapter, error)
}

// Bank is the engine's view of its own holdings: the held-balance query used
// to cap deposits, and the spend authorization granted to a vault before each
// deposit.
type Bank interface {
	HeldBalance(ctx context.Context, resourceType string) (decimal.Decimal, error)
	Approve(ctx context.Context, resourceType, spender string, amount decimal.Decimal) error
}
