package routing

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vaultrouter/internal/models"
	"vaultrouter/internal/registry"
	"vaultrouter/internal/vault"
)

// Override is the caller-supplied per-operation override. Zero values mean
// defaults: shares go to the engine's own account, no forced vault, no
// minimum-shares floor.
type Override struct {
	Receiver  string          `json:"receiver,omitempty"`
	Vault     string          `json:"vault,omitempty"`
	MinShares decimal.Decimal `json:"min_shares,omitempty"`
}

// RouteResult reports what one execution actually did. Vault is empty when
// the post-event path had no destination and routing was skipped.
type RouteResult struct {
	Vault     string          `json:"vault,omitempty"`
	Deposited decimal.Decimal `json:"deposited"`
	Shares    decimal.Decimal `json:"shares"`
}

type contextState struct {
	strategy   models.RoutingStrategy
	members    []string
	memberSet  map[string]struct{}
	cursor     uint64
	eventCount uint64
}

// Engine is the routing execution controller. It owns the per-context state
// (strategy, membership, round-robin cursor, event count) and drives the
// select-then-deposit sequence against the external collaborators. Internal
// effects commit only after every external call has succeeded, so a failed
// operation leaves no state change behind.
type Engine struct {
	Registry *registry.Registry
	Adapters vault.AdapterResolver
	Bank     vault.Bank
	// Account is the engine's own identity: the default share receiver.
	Account string
	Logger  *zap.Logger

	mu       sync.Mutex
	contexts map[string]*contextState
}

func NewEngine(reg *registry.Registry, adapters vault.AdapterResolver, bank vault.Bank, account string, logger *zap.Logger) *Engine {
	return &Engine{
		Registry: reg,
		Adapters: adapters,
		Bank:     bank,
		Account:  account,
		Logger:   logger,
		contexts: make(map[string]*contextState),
	}
}

// RegisterVault queries the vault's resource type from its adapter once, then
// records it in the registry.
func (e *Engine) RegisterVault(ctx context.Context, id string, priority uint64, riskScore int) error {
	if id == "" {
		return registry.ErrInvalidVault
	}
	ad, err := e.Adapters.Adapter(id)
	if err != nil {
		return fmt.Errorf("resolve adapter: %w", err)
	}
	resourceType, err := ad.Asset(ctx)
	if err != nil {
		return fmt.Errorf("query vault asset: %w", err)
	}
	return e.Registry.Register(id, priority, riskScore, resourceType)
}

// ContextCreated assigns the default strategy the first time a context is
// observed. Calling it again is a no-op.
func (e *Engine) ContextCreated(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureContextLocked(name)
}

func (e *Engine) ensureContextLocked(name string) *contextState {
	st, ok := e.contexts[name]
	if !ok {
		st = &contextState{
			strategy:  models.StrategyManualPriority,
			memberSet: make(map[string]struct{}),
		}
		e.contexts[name] = st
		if e.Logger != nil {
			e.Logger.Info("routing context created", zap.String("context", name))
		}
	}
	return st
}

// SetStrategy overwrites the context's strategy unconditionally.
func (e *Engine) SetStrategy(name string, strategy models.RoutingStrategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.ensureContextLocked(name)
	st.strategy = strategy
	if e.Logger != nil {
		e.Logger.Info("routing strategy set",
			zap.String("context", name),
			zap.String("strategy", strategy.String()),
		)
	}
}

// AddMembers opts vaults into the context. Every id must be active; repeats
// are silently skipped. There is no removal operation.
func (e *Engine) AddMembers(name string, ids []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.ensureContextLocked(name)
	// Validate everything up front so a bad id leaves the membership intact.
	for _, id := range ids {
		rec, ok := e.Registry.Get(id)
		if !ok || !rec.Active {
			return fmt.Errorf("add member %s: %w", id, registry.ErrNotActive)
		}
	}
	for _, id := range ids {
		if _, dup := st.memberSet[id]; dup {
			continue
		}
		st.members = append(st.members, id)
		st.memberSet[id] = struct{}{}
	}
	return nil
}

// AvailableVaults is the candidate set handed to the strategy scan: the
// context's members filtered to active vaults of the requested resource type,
// or the global per-resource list while no membership is configured.
func (e *Engine) AvailableVaults(name, resourceType string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.ensureContextLocked(name)
	return e.availableLocked(st, resourceType)
}

func (e *Engine) availableLocked(st *contextState, resourceType string) []string {
	if len(st.members) == 0 {
		return e.Registry.ListByResource(resourceType)
	}
	out := make([]string, 0, len(st.members))
	for _, id := range st.members {
		rec, ok := e.Registry.Get(id)
		if !ok || !rec.Active || rec.ResourceType != resourceType {
			continue
		}
		out = append(out, id)
	}
	return out
}

// PreviewVault is the read-only selection: it answers "where would the next
// execution route" without advancing the round-robin cursor or touching any
// counter.
func (e *Engine) PreviewVault(ctx context.Context, name, resourceType string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.ensureContextLocked(name)
	available := e.availableLocked(st, resourceType)
	idx, err := e.selectLocked(ctx, st, available)
	if err != nil {
		return "", err
	}
	return available[idx], nil
}

func (e *Engine) selectLocked(ctx context.Context, st *contextState, available []string) (int, error) {
	if len(available) == 0 {
		return 0, ErrNoVaultsAvailable
	}
	if st.strategy == models.StrategyRoundRobin {
		return int(st.cursor % uint64(len(available))), nil
	}
	candidates, err := e.candidates(ctx, st.strategy, available)
	if err != nil {
		return 0, err
	}
	return SelectIndex(st.strategy, candidates, st.cursor)
}

// candidates builds the scan view for available, querying adapter accounting
// only for the strategies that price shares.
func (e *Engine) candidates(ctx context.Context, strategy models.RoutingStrategy, available []string) ([]Candidate, error) {
	needYield := strategy == models.StrategyHighestYield || strategy == models.StrategyBalanced
	out := make([]Candidate, 0, len(available))
	for _, id := range available {
		rec, ok := e.Registry.Get(id)
		if !ok {
			return nil, fmt.Errorf("candidate %s: %w", id, registry.ErrNotActive)
		}
		c := Candidate{
			ID:        id,
			Priority:  rec.Priority,
			RiskScore: rec.RiskScore,
		}
		if needYield {
			ad, err := e.Adapters.Adapter(id)
			if err != nil {
				return nil, fmt.Errorf("resolve adapter %s: %w", id, err)
			}
			supply, err := ad.TotalSupply(ctx)
			if err != nil {
				return nil, fmt.Errorf("total supply %s: %w", id, err)
			}
			if supply.IsPositive() {
				assets, err := ad.TotalAssets(ctx)
				if err != nil {
					return nil, fmt.Errorf("total assets %s: %w", id, err)
				}
				c.PricePerShare = assets.Div(supply)
				c.HasShares = true
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// BeforeEvent is the pre-event hook: it only counts the event. Selection is
// deferred to the post-event hook so it reflects the event's realized output.
func (e *Engine) BeforeEvent(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.ensureContextLocked(name)
	st.eventCount++
}

// AfterEvent is the post-event hook. A forced override bypasses the strategy
// scan; otherwise an empty candidate set means the event simply proceeds
// without routing. The deposit is capped at the held balance, while
// TotalRouted accumulates the full intended amount.
func (e *Engine) AfterEvent(ctx context.Context, name, resourceType string, amount decimal.Decimal, ov Override) (RouteResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.ensureContextLocked(name)

	receiver := ov.Receiver
	if receiver == "" {
		receiver = e.Account
	}

	target := ""
	advance := -1 // next cursor value when a round-robin execution commits
	if ov.Vault != "" {
		rec, ok := e.Registry.Get(ov.Vault)
		if !ok || !rec.Active {
			return RouteResult{}, fmt.Errorf("forced vault %s: %w", ov.Vault, registry.ErrNotActive)
		}
		if rec.ResourceType != resourceType {
			return RouteResult{}, fmt.Errorf("forced vault %s accepts %s not %s: %w", ov.Vault, rec.ResourceType, resourceType, ErrResourceMismatch)
		}
		target = ov.Vault
	} else {
		available := e.availableLocked(st, resourceType)
		if len(available) == 0 {
			return RouteResult{}, nil
		}
		idx, err := e.selectLocked(ctx, st, available)
		if err != nil {
			return RouteResult{}, err
		}
		target = available[idx]
		if st.strategy == models.StrategyRoundRobin {
			advance = (idx + 1) % len(available)
		}
	}

	deposited, shares, err := e.deposit(ctx, target, resourceType, amount, receiver, ov.MinShares)
	if err != nil {
		return RouteResult{}, err
	}

	// Commit point: nothing above mutated engine or registry state.
	if advance >= 0 {
		st.cursor = uint64(advance)
	}
	routed := decimal.Zero
	if deposited.IsPositive() {
		routed = amount
	}
	if err := e.Registry.RecordRouted(target, routed); err != nil {
		return RouteResult{}, err
	}
	if e.Logger != nil {
		e.Logger.Info("routed event output",
			zap.String("context", name),
			zap.String("vault", target),
			zap.String("resource_type", resourceType),
			zap.String("intended", amount.String()),
			zap.String("deposited", deposited.String()),
			zap.String("shares", shares.String()),
		)
	}
	return RouteResult{Vault: target, Deposited: deposited, Shares: shares}, nil
}

// DepositHeld routes the engine's entire held balance of resourceType,
// outside the event flow. Unlike the post-event hook, an empty candidate set
// is an error here: the caller explicitly asked for a deposit.
func (e *Engine) DepositHeld(ctx context.Context, name, resourceType, receiver string, minShares decimal.Decimal, forced string) (RouteResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.ensureContextLocked(name)

	held, err := e.Bank.HeldBalance(ctx, resourceType)
	if err != nil {
		return RouteResult{}, fmt.Errorf("held balance: %w", err)
	}
	if !held.IsPositive() {
		return RouteResult{}, ErrNothingToDeposit
	}
	if receiver == "" {
		receiver = e.Account
	}

	target := ""
	advance := -1
	if forced != "" {
		rec, ok := e.Registry.Get(forced)
		if !ok || !rec.Active {
			return RouteResult{}, fmt.Errorf("forced vault %s: %w", forced, registry.ErrNotActive)
		}
		if rec.ResourceType != resourceType {
			return RouteResult{}, fmt.Errorf("forced vault %s accepts %s not %s: %w", forced, rec.ResourceType, resourceType, ErrResourceMismatch)
		}
		target = forced
	} else {
		available := e.availableLocked(st, resourceType)
		idx, err := e.selectLocked(ctx, st, available)
		if err != nil {
			return RouteResult{}, err
		}
		target = available[idx]
		if st.strategy == models.StrategyRoundRobin {
			advance = (idx + 1) % len(available)
		}
	}

	deposited, shares, err := e.deposit(ctx, target, resourceType, held, receiver, minShares)
	if err != nil {
		return RouteResult{}, err
	}
	if advance >= 0 {
		st.cursor = uint64(advance)
	}
	if err := e.Registry.RecordRouted(target, held); err != nil {
		return RouteResult{}, err
	}
	if e.Logger != nil {
		e.Logger.Info("deposited held balance",
			zap.String("context", name),
			zap.String("vault", target),
			zap.String("resource_type", resourceType),
			zap.String("deposited", deposited.String()),
			zap.String("shares", shares.String()),
		)
	}
	return RouteResult{Vault: target, Deposited: deposited, Shares: shares}, nil
}

// deposit caps the amount at the held balance, grants the vault an allowance
// for exactly that amount, and enforces the minimum-shares floor. It performs
// no internal mutation; callers commit effects only on success.
func (e *Engine) deposit(ctx context.Context, vaultID, resourceType string, intended decimal.Decimal, receiver string, minShares decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	held, err := e.Bank.HeldBalance(ctx, resourceType)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("held balance: %w", err)
	}
	amount := decimal.Min(held, intended)
	if !amount.IsPositive() {
		return decimal.Zero, decimal.Zero, nil
	}
	if err := e.Bank.Approve(ctx, resourceType, vaultID, amount); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("approve %s: %w", vaultID, err)
	}
	ad, err := e.Adapters.Adapter(vaultID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("resolve adapter %s: %w", vaultID, err)
	}
	shares, err := ad.Deposit(ctx, amount, receiver)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("deposit into %s: %w", vaultID, err)
	}
	if shares.LessThan(minShares) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("vault %s minted %s < min %s: %w", vaultID, shares, minShares, ErrSlippageExceeded)
	}
	return amount, shares, nil
}

// ContextStats reports the observability view for one context.
func (e *Engine) ContextStats(name string) (models.ContextStats, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.contexts[name]
	if !ok {
		return models.ContextStats{}, false
	}
	return models.ContextStats{
		Context:     name,
		Strategy:    st.strategy.String(),
		EventCount:  st.eventCount,
		MemberCount: len(st.members),
	}, true
}

// ListContexts snapshots every known context.
func (e *Engine) ListContexts() []models.ContextStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.ContextStats, 0, len(e.contexts))
	for name, st := range e.contexts {
		out = append(out, models.ContextStats{
			Context:     name,
			Strategy:    st.strategy.String(),
			EventCount:  st.eventCount,
			MemberCount: len(st.members),
		})
	}
	return out
}
