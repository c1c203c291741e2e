package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryBank tracks the engine's balances and exact-amount allowances. It
// backs the sim deployment mode and the package tests; a production rollout
// swaps in a chain-backed Bank.
type MemoryBank struct {
	mu         sync.Mutex
	account    string
	balances   map[string]decimal.Decimal            // resourceType -> held
	allowances map[string]map[string]decimal.Decimal // resourceType -> spender -> remaining
}

func NewMemoryBank(account string) *MemoryBank {
	return &MemoryBank{
		account:    account,
		balances:   make(map[string]decimal.Decimal),
		allowances: make(map[string]map[string]decimal.Decimal),
	}
}

func (b *MemoryBank) Account() string { return b.account }

func (b *MemoryBank) Credit(resourceType string, amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[resourceType] = b.balances[resourceType].Add(amount)
}

func (b *MemoryBank) HeldBalance(_ context.Context, resourceType string) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[resourceType], nil
}

func (b *MemoryBank) Approve(_ context.Context, resourceType, spender string, amount decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bySpender := b.allowances[resourceType]
	if bySpender == nil {
		bySpender = make(map[string]decimal.Decimal)
		b.allowances[resourceType] = bySpender
	}
	bySpender[spender] = amount
	return nil
}

// pull transfers amount out of the bank on behalf of spender, consuming its
// allowance. Called by MemoryVault.Deposit.
func (b *MemoryBank) pull(resourceType, spender string, amount decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	allowed := b.allowances[resourceType][spender]
	if amount.GreaterThan(allowed) {
		return fmt.Errorf("allowance exceeded: spender=%s allowed=%s need=%s", spender, allowed, amount)
	}
	held := b.balances[resourceType]
	if amount.GreaterThan(held) {
		return fmt.Errorf("insufficient balance: held=%s need=%s", held, amount)
	}
	b.allowances[resourceType][spender] = allowed.Sub(amount)
	b.balances[resourceType] = held.Sub(amount)
	return nil
}

// MemoryVault is a proportional-share vault: deposits mint
// amount * totalSupply / totalAssets shares, or 1:1 when the vault is empty.
type MemoryVault struct {
	id    string
	asset string
	bank  *MemoryBank

	mu          sync.Mutex
	totalAssets decimal.Decimal
	totalSupply decimal.Decimal
	shares      map[string]decimal.Decimal
}

func NewMemoryVault(id, asset string, bank *MemoryBank) *MemoryVault {
	return &MemoryVault{
		id:     id,
		asset:  asset,
		bank:   bank,
		shares: make(map[string]decimal.Decimal),
	}
}

// Seed sets the vault's books directly, shaping its price per share for sim
// scenarios and tests.
func (v *MemoryVault) Seed(totalAssets, totalSupply decimal.Decimal) *MemoryVault {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.totalAssets = totalAssets
	v.totalSupply = totalSupply
	return v
}

func (v *MemoryVault) Asset(context.Context) (string, error) {
	return v.asset, nil
}

func (v *MemoryVault) TotalAssets(context.Context) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalAssets, nil
}

func (v *MemoryVault) TotalSupply(context.Context) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalSupply, nil
}

func (v *MemoryVault) Deposit(_ context.Context, amount decimal.Decimal, receiver string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("deposit amount must be positive, got %s", amount)
	}
	if v.bank != nil {
		if err := v.bank.pull(v.asset, v.id, amount); err != nil {
			return decimal.Zero, err
		}
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	minted := amount
	if v.totalSupply.IsPositive() && v.totalAssets.IsPositive() {
		minted = amount.Mul(v.totalSupply).Div(v.totalAssets)
	}
	v.totalAssets = v.totalAssets.Add(amount)
	v.totalSupply = v.totalSupply.Add(minted)
	v.shares[receiver] = v.shares[receiver].Add(minted)
	return minted, nil
}

func (v *MemoryVault) SharesOf(receiver string) decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.shares[receiver]
}

// MemoryHub resolves vault ids to in-memory adapters.
type MemoryHub struct {
	mu     sync.Mutex
	vaults map[string]*MemoryVault
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{vaults: make(map[string]*MemoryVault)}
}

func (h *MemoryHub) Add(v *MemoryVault) *MemoryHub {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.vaults[v.id] = v
	return h
}

func (h *MemoryHub) Adapter(id string) (Adapter, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.vaults[id]
	if !ok {
		return nil, fmt.Errorf("no adapter for vault %s", id)
	}
	return v, nil
}

func (h *MemoryHub) Vault(id string) (*MemoryVault, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.vaults[id]
	return v, ok
}
