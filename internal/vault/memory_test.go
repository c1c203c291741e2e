package vault

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMemoryVault_DepositProportionalShares(t *testing.T) {
	ctx := context.Background()
	bank := NewMemoryBank("engine")
	bank.Credit("usdc", decimal.NewFromInt(1000))
	v := NewMemoryVault("v1", "usdc", bank).Seed(decimal.NewFromInt(200), decimal.NewFromInt(100))

	if err := bank.Approve(ctx, "usdc", "v1", decimal.NewFromInt(50)); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	// Price per share is 2, so 50 assets mint 25 shares.
	shares, err := v.Deposit(ctx, decimal.NewFromInt(50), "engine")
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if shares.Cmp(decimal.NewFromInt(25)) != 0 {
		t.Fatalf("shares=%s want 25", shares)
	}
	held, _ := bank.HeldBalance(ctx, "usdc")
	if held.Cmp(decimal.NewFromInt(950)) != 0 {
		t.Fatalf("held=%s want 950", held)
	}
	if got := v.SharesOf("engine"); got.Cmp(decimal.NewFromInt(25)) != 0 {
		t.Fatalf("receiver shares=%s want 25", got)
	}
}

func TestMemoryVault_EmptyVaultMintsOneToOne(t *testing.T) {
	ctx := context.Background()
	bank := NewMemoryBank("engine")
	bank.Credit("dai", decimal.NewFromInt(10))
	v := NewMemoryVault("v1", "dai", bank)
	if err := bank.Approve(ctx, "dai", "v1", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	shares, err := v.Deposit(ctx, decimal.NewFromInt(10), "engine")
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if shares.Cmp(decimal.NewFromInt(10)) != 0 {
		t.Fatalf("shares=%s want 10", shares)
	}
}

func TestMemoryVault_DepositNeedsAllowance(t *testing.T) {
	ctx := context.Background()
	bank := NewMemoryBank("engine")
	bank.Credit("usdc", decimal.NewFromInt(100))
	v := NewMemoryVault("v1", "usdc", bank)

	if _, err := v.Deposit(ctx, decimal.NewFromInt(10), "engine"); err == nil || !strings.Contains(err.Error(), "allowance") {
		t.Fatalf("err=%v want allowance error", err)
	}
	// Allowance is consumed by exactly the pulled amount.
	if err := bank.Approve(ctx, "usdc", "v1", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if _, err := v.Deposit(ctx, decimal.NewFromInt(10), "engine"); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if _, err := v.Deposit(ctx, decimal.NewFromInt(1), "engine"); err == nil {
		t.Fatalf("want allowance exhausted error, got nil")
	}
}
