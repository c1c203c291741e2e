package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"vaultrouter/internal/models"
	"vaultrouter/internal/registry"
	"vaultrouter/internal/vault"
)

type fixture struct {
	engine *Engine
	bank   *vault.MemoryBank
	hub    *vault.MemoryHub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bank := vault.NewMemoryBank("engine")
	hub := vault.NewMemoryHub()
	reg := registry.New(nil)
	return &fixture{
		engine: NewEngine(reg, hub, bank, bank.Account(), nil),
		bank:   bank,
		hub:    hub,
	}
}

// addVault seeds a usdc vault with a 1:1 price per share unless reseeded.
func (f *fixture) addVault(t *testing.T, id, asset string, priority uint64, risk int) *vault.MemoryVault {
	t.Helper()
	v := vault.NewMemoryVault(id, asset, f.bank).Seed(decimal.NewFromInt(100), decimal.NewFromInt(100))
	f.hub.Add(v)
	if err := f.engine.RegisterVault(context.Background(), id, priority, risk); err != nil {
		t.Fatalf("register %s failed: %v", id, err)
	}
	return v
}

func TestRegisterVault_QueriesAssetFromAdapter(t *testing.T) {
	f := newFixture(t)
	f.addVault(t, "v1", "dai", 1, 50)
	rec, ok := f.engine.Registry.Get("v1")
	if !ok || rec.ResourceType != "dai" {
		t.Fatalf("record=%+v want resource_type=dai", rec)
	}
	if err := f.engine.RegisterVault(context.Background(), "ghost", 1, 50); err == nil {
		t.Fatalf("want adapter resolution error, got nil")
	}
}

func TestBeforeEvent_CountsPerContext(t *testing.T) {
	f := newFixture(t)
	f.engine.BeforeEvent("pool-a")
	f.engine.BeforeEvent("pool-a")
	f.engine.BeforeEvent("pool-b")
	stats, ok := f.engine.ContextStats("pool-a")
	if !ok || stats.EventCount != 2 {
		t.Fatalf("stats=%+v want event_count=2", stats)
	}
	if stats.Strategy != "manual_priority" {
		t.Fatalf("default strategy=%s want manual_priority", stats.Strategy)
	}
}

func TestAddMembers_IdempotentAndValidated(t *testing.T) {
	f := newFixture(t)
	f.addVault(t, "v1", "usdc", 1, 50)
	if err := f.engine.AddMembers("pool", []string{"v1", "v1"}); err != nil {
		t.Fatalf("add members failed: %v", err)
	}
	stats, _ := f.engine.ContextStats("pool")
	if stats.MemberCount != 1 {
		t.Fatalf("member_count=%d want 1", stats.MemberCount)
	}
	f.addVault(t, "v2", "usdc", 1, 50)
	// One bad id rejects the whole batch.
	if err := f.engine.AddMembers("pool", []string{"v2", "missing"}); !errors.Is(err, registry.ErrNotActive) {
		t.Fatalf("err=%v want ErrNotActive", err)
	}
	stats, _ = f.engine.ContextStats("pool")
	if stats.MemberCount != 1 {
		t.Fatalf("member_count=%d want 1 after rejected batch", stats.MemberCount)
	}
}

func TestAvailableVaults_GlobalFallbackThenMembership(t *testing.T) {
	f := newFixture(t)
	f.addVault(t, "v1", "usdc", 1, 50)
	f.addVault(t, "v2", "usdc", 1, 50)
	f.addVault(t, "v3", "dai", 1, 50)

	// No members configured: every active usdc vault is available.
	got := f.engine.AvailableVaults("pool", "usdc")
	if len(got) != 2 {
		t.Fatalf("available=%v want 2 usdc vaults", got)
	}

	// Membership narrows the set and filters by resource and activity.
	if err := f.engine.AddMembers("pool", []string{"v2", "v3"}); err != nil {
		t.Fatalf("add members failed: %v", err)
	}
	got = f.engine.AvailableVaults("pool", "usdc")
	if len(got) != 1 || got[0] != "v2" {
		t.Fatalf("available=%v want [v2]", got)
	}
	if err := f.engine.Registry.Deregister("v2"); err != nil {
		t.Fatalf("deregister failed: %v", err)
	}
	if got = f.engine.AvailableVaults("pool", "usdc"); len(got) != 0 {
		t.Fatalf("available=%v want empty after deregistration", got)
	}
}

func TestAfterEvent_NoCandidatesIsNotAnError(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.AfterEvent(context.Background(), "pool", "usdc", decimal.NewFromInt(10), Override{})
	if err != nil {
		t.Fatalf("after event failed: %v", err)
	}
	if res.Vault != "" {
		t.Fatalf("result=%+v want no routing", res)
	}
}

func TestAfterEvent_DepositCapAndTotalRouted(t *testing.T) {
	f := newFixture(t)
	f.addVault(t, "v1", "usdc", 1, 50)
	f.bank.Credit("usdc", decimal.NewFromInt(30))

	// Held balance (30) is below the realized output (100): deposit the held
	// balance, but account the full intended amount.
	res, err := f.engine.AfterEvent(context.Background(), "pool", "usdc", decimal.NewFromInt(100), Override{})
	if err != nil {
		t.Fatalf("after event failed: %v", err)
	}
	if res.Vault != "v1" || res.Deposited.Cmp(decimal.NewFromInt(30)) != 0 {
		t.Fatalf("result=%+v want vault=v1 deposited=30", res)
	}
	rec, _ := f.engine.Registry.Get("v1")
	if rec.TotalRouted.Cmp(decimal.NewFromInt(100)) != 0 {
		t.Fatalf("total_routed=%s want 100", rec.TotalRouted)
	}
	if rec.UtilizationCount != 1 {
		t.Fatalf("utilization=%d want 1", rec.UtilizationCount)
	}
	held, _ := f.bank.HeldBalance(context.Background(), "usdc")
	if !held.IsZero() {
		t.Fatalf("held=%s want 0", held)
	}
}

func TestAfterEvent_ZeroHeldSkipsDepositButCountsSelection(t *testing.T) {
	f := newFixture(t)
	f.addVault(t, "v1", "usdc", 1, 50)
	res, err := f.engine.AfterEvent(context.Background(), "pool", "usdc", decimal.NewFromInt(100), Override{})
	if err != nil {
		t.Fatalf("after event failed: %v", err)
	}
	if res.Vault != "v1" || !res.Deposited.IsZero() {
		t.Fatalf("result=%+v want vault=v1 deposited=0", res)
	}
	rec, _ := f.engine.Registry.Get("v1")
	if rec.UtilizationCount != 1 || !rec.TotalRouted.IsZero() {
		t.Fatalf("record=%+v want utilization=1 total_routed=0", rec)
	}
}

func TestAfterEvent_SlippageGuardLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	v := f.addVault(t, "v1", "usdc", 1, 50)
	// Price per share 2: depositing 50 mints only 25 shares.
	v.Seed(decimal.NewFromInt(200), decimal.NewFromInt(100))
	f.bank.Credit("usdc", decimal.NewFromInt(50))

	_, err := f.engine.AfterEvent(context.Background(), "pool", "usdc", decimal.NewFromInt(50), Override{
		MinShares: decimal.NewFromInt(30),
	})
	if !errors.Is(err, ErrSlippageExceeded) {
		t.Fatalf("err=%v want ErrSlippageExceeded", err)
	}
	rec, _ := f.engine.Registry.Get("v1")
	if rec.UtilizationCount != 0 || !rec.TotalRouted.IsZero() {
		t.Fatalf("record=%+v want no usage recorded", rec)
	}
}

func TestAfterEvent_ForcedOverride(t *testing.T) {
	f := newFixture(t)
	f.addVault(t, "fast", "usdc", 100, 50)
	f.addVault(t, "slow", "usdc", 1, 50)
	f.addVault(t, "other", "dai", 1, 50)
	f.bank.Credit("usdc", decimal.NewFromInt(10))

	// The override bypasses the strategy even though "fast" outranks "slow".
	res, err := f.engine.AfterEvent(context.Background(), "pool", "usdc", decimal.NewFromInt(10), Override{Vault: "slow"})
	if err != nil {
		t.Fatalf("after event failed: %v", err)
	}
	if res.Vault != "slow" {
		t.Fatalf("vault=%s want slow", res.Vault)
	}

	if _, err := f.engine.AfterEvent(context.Background(), "pool", "usdc", decimal.NewFromInt(10), Override{Vault: "other"}); !errors.Is(err, ErrResourceMismatch) {
		t.Fatalf("err=%v want ErrResourceMismatch", err)
	}
	if _, err := f.engine.AfterEvent(context.Background(), "pool", "usdc", decimal.NewFromInt(10), Override{Vault: "ghost"}); !errors.Is(err, registry.ErrNotActive) {
		t.Fatalf("err=%v want ErrNotActive", err)
	}
}

func TestAfterEvent_OverrideReceiverGetsShares(t *testing.T) {
	f := newFixture(t)
	v := f.addVault(t, "v1", "usdc", 1, 50)
	f.bank.Credit("usdc", decimal.NewFromInt(40))
	_, err := f.engine.AfterEvent(context.Background(), "pool", "usdc", decimal.NewFromInt(40), Override{Receiver: "treasury"})
	if err != nil {
		t.Fatalf("after event failed: %v", err)
	}
	if got := v.SharesOf("treasury"); !got.IsPositive() {
		t.Fatalf("treasury shares=%s want positive", got)
	}
	if got := v.SharesOf("engine"); !got.IsZero() {
		t.Fatalf("engine shares=%s want 0", got)
	}
}

func TestRoundRobin_ReadStableWriteProgressive(t *testing.T) {
	f := newFixture(t)
	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		f.addVault(t, id, "usdc", 1, 50)
	}
	f.engine.SetStrategy("pool", models.StrategyRoundRobin)

	// Repeated read-only previews do not advance the cursor.
	for i := 0; i < 5; i++ {
		got, err := f.engine.PreviewVault(context.Background(), "pool", "usdc")
		if err != nil {
			t.Fatalf("preview failed: %v", err)
		}
		if got != "a" {
			t.Fatalf("preview %d=%s want a", i, got)
		}
	}

	// Three executions visit each vault exactly once, then wrap.
	f.bank.Credit("usdc", decimal.NewFromInt(1000))
	var visited []string
	for i := 0; i < 4; i++ {
		res, err := f.engine.AfterEvent(context.Background(), "pool", "usdc", decimal.NewFromInt(10), Override{})
		if err != nil {
			t.Fatalf("execution %d failed: %v", i, err)
		}
		visited = append(visited, res.Vault)
	}
	want := []string{"a", "b", "c", "a"}
	for i := range want {
		if visited[i] != want[i] {
			t.Fatalf("visited=%v want %v", visited, want)
		}
	}
	for _, id := range ids {
		rec, _ := f.engine.Registry.Get(id)
		if rec.UtilizationCount == 0 {
			t.Fatalf("vault %s never utilized", id)
		}
	}
}

func TestRoundRobin_CursorSurvivesMembershipChanges(t *testing.T) {
	f := newFixture(t)
	f.addVault(t, "a", "usdc", 1, 50)
	f.addVault(t, "b", "usdc", 1, 50)
	f.engine.SetStrategy("pool", models.StrategyRoundRobin)
	f.bank.Credit("usdc", decimal.NewFromInt(1000))

	for i := 0; i < 3; i++ {
		if _, err := f.engine.AfterEvent(context.Background(), "pool", "usdc", decimal.NewFromInt(1), Override{}); err != nil {
			t.Fatalf("execution %d failed: %v", i, err)
		}
	}
	// Cursor is interpreted modulo the current list length, so shrinking the
	// pool must not break selection.
	if err := f.engine.Registry.Deregister("b"); err != nil {
		t.Fatalf("deregister failed: %v", err)
	}
	res, err := f.engine.AfterEvent(context.Background(), "pool", "usdc", decimal.NewFromInt(1), Override{})
	if err != nil {
		t.Fatalf("execution after shrink failed: %v", err)
	}
	if res.Vault != "a" {
		t.Fatalf("vault=%s want a", res.Vault)
	}
}

func TestDepositHeld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.DepositHeld(ctx, "pool", "usdc", "", decimal.Zero, ""); !errors.Is(err, ErrNothingToDeposit) {
		t.Fatalf("err=%v want ErrNothingToDeposit", err)
	}

	f.bank.Credit("usdc", decimal.NewFromInt(75))
	if _, err := f.engine.DepositHeld(ctx, "pool", "usdc", "", decimal.Zero, ""); !errors.Is(err, ErrNoVaultsAvailable) {
		t.Fatalf("err=%v want ErrNoVaultsAvailable", err)
	}

	f.addVault(t, "v1", "usdc", 1, 50)
	res, err := f.engine.DepositHeld(ctx, "pool", "usdc", "", decimal.Zero, "")
	if err != nil {
		t.Fatalf("deposit held failed: %v", err)
	}
	if res.Vault != "v1" || res.Deposited.Cmp(decimal.NewFromInt(75)) != 0 {
		t.Fatalf("result=%+v want vault=v1 deposited=75", res)
	}
	rec, _ := f.engine.Registry.Get("v1")
	if rec.TotalRouted.Cmp(decimal.NewFromInt(75)) != 0 || rec.UtilizationCount != 1 {
		t.Fatalf("record=%+v want total_routed=75 utilization=1", rec)
	}
	held, _ := f.bank.HeldBalance(ctx, "usdc")
	if !held.IsZero() {
		t.Fatalf("held=%s want 0", held)
	}
}

func TestDepositHeld_SlippageGuard(t *testing.T) {
	f := newFixture(t)
	v := f.addVault(t, "v1", "usdc", 1, 50)
	v.Seed(decimal.NewFromInt(300), decimal.NewFromInt(100))
	f.bank.Credit("usdc", decimal.NewFromInt(90))

	_, err := f.engine.DepositHeld(context.Background(), "pool", "usdc", "", decimal.NewFromInt(40), "")
	if !errors.Is(err, ErrSlippageExceeded) {
		t.Fatalf("err=%v want ErrSlippageExceeded", err)
	}
	rec, _ := f.engine.Registry.Get("v1")
	if rec.UtilizationCount != 0 || !rec.TotalRouted.IsZero() {
		t.Fatalf("record=%+v want no usage recorded", rec)
	}
}

func TestStrategySelection_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// Yields: a=1.05, b=1.10, c=1.03. Risks: a=50, b=80, c=20.
	f.addVault(t, "a", "usdc", 100, 50).Seed(decimal.NewFromInt(105), decimal.NewFromInt(100))
	f.addVault(t, "b", "usdc", 300, 80).Seed(decimal.NewFromInt(110), decimal.NewFromInt(100))
	f.addVault(t, "c", "usdc", 200, 20).Seed(decimal.NewFromInt(103), decimal.NewFromInt(100))

	cases := []struct {
		strategy models.RoutingStrategy
		want     string
	}{
		{models.StrategyManualPriority, "b"},
		{models.StrategyHighestYield, "b"},
		{models.StrategyLowestRisk, "c"},
		{models.StrategyBalanced, "c"},
	}
	for _, tc := range cases {
		f.engine.SetStrategy("pool", tc.strategy)
		got, err := f.engine.PreviewVault(ctx, "pool", "usdc")
		if err != nil {
			t.Fatalf("strategy %s preview failed: %v", tc.strategy, err)
		}
		if got != tc.want {
			t.Fatalf("strategy %s winner=%s want %s", tc.strategy, got, tc.want)
		}
	}
}
