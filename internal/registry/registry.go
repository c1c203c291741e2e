package registry

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vaultrouter/internal/models"
)

var (
	ErrInvalidVault     = errors.New("invalid vault id")
	ErrInvalidRiskScore = errors.New("risk score out of range [1,100]")
	ErrAlreadyActive    = errors.New("vault already active")
	ErrNotActive        = errors.New("vault not active")
)

const (
	MinRiskScore = 1
	MaxRiskScore = 100
)

// Registry holds every known vault plus two flat index arrays: one global and
// one per resource type. Each record caches its slot in both arrays, so
// removal is a swap-with-last in O(1). The index arrays contain exactly the
// active vaults; callers must not assume a stable enumeration order across
// removals.
type Registry struct {
	mu         sync.RWMutex
	vaults     map[string]*models.VaultRecord
	global     []string
	byResource map[string][]string

	logger *zap.Logger
}

func New(logger *zap.Logger) *Registry {
	return &Registry{
		vaults:     make(map[string]*models.VaultRecord),
		byResource: make(map[string][]string),
		logger:     logger,
	}
}

// Register creates a fresh active record for id. Re-registering a
// deregistered id starts over: new resource type, zero TotalRouted.
func (r *Registry) Register(id string, priority uint64, riskScore int, resourceType string) error {
	if id == "" {
		return ErrInvalidVault
	}
	if riskScore < MinRiskScore || riskScore > MaxRiskScore {
		return ErrInvalidRiskScore
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.vaults[id]; ok && rec.Active {
		return ErrAlreadyActive
	}
	rec := &models.VaultRecord{
		ID:            id,
		ResourceType:  resourceType,
		Priority:      priority,
		RiskScore:     riskScore,
		Active:        true,
		TotalRouted:   decimal.Zero,
		GlobalIndex:   len(r.global),
		ResourceIndex: len(r.byResource[resourceType]),
	}
	r.vaults[id] = rec
	r.global = append(r.global, id)
	r.byResource[resourceType] = append(r.byResource[resourceType], id)
	if r.logger != nil {
		r.logger.Info("vault registered",
			zap.String("vault", id),
			zap.String("resource_type", resourceType),
			zap.Uint64("priority", priority),
			zap.Int("risk_score", riskScore),
		)
	}
	return nil
}

// Deregister marks the record inactive and compacts both index arrays by
// moving the last element into the vacated slot.
func (r *Registry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.vaults[id]
	if !ok || !rec.Active {
		return ErrNotActive
	}
	rec.Active = false
	r.global = r.removeAt(r.global, rec.GlobalIndex, func(moved *models.VaultRecord, slot int) {
		moved.GlobalIndex = slot
	})
	list := r.byResource[rec.ResourceType]
	r.byResource[rec.ResourceType] = r.removeAt(list, rec.ResourceIndex, func(moved *models.VaultRecord, slot int) {
		moved.ResourceIndex = slot
	})
	if r.logger != nil {
		r.logger.Info("vault deregistered", zap.String("vault", id), zap.String("resource_type", rec.ResourceType))
	}
	return nil
}

func (r *Registry) removeAt(list []string, slot int, reindex func(*models.VaultRecord, int)) []string {
	last := len(list) - 1
	if slot != last {
		list[slot] = list[last]
		reindex(r.vaults[list[slot]], slot)
	}
	return list[:last]
}

func (r *Registry) SetPriority(id string, priority uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.vaults[id]
	if !ok || !rec.Active {
		return ErrNotActive
	}
	rec.Priority = priority
	return nil
}

func (r *Registry) SetRiskScore(id string, riskScore int) error {
	if riskScore < MinRiskScore || riskScore > MaxRiskScore {
		return ErrInvalidRiskScore
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.vaults[id]
	if !ok || !rec.Active {
		return ErrNotActive
	}
	rec.RiskScore = riskScore
	return nil
}

// ListActive enumerates every active vault id.
func (r *Registry) ListActive() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.global))
	copy(out, r.global)
	return out
}

// ListByResource enumerates the active vault ids accepting resourceType.
func (r *Registry) ListByResource(resourceType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byResource[resourceType]
	out := make([]string, len(list))
	copy(out, list)
	return out
}

// Get returns a copy of the record for id, active or not.
func (r *Registry) Get(id string) (models.VaultRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.vaults[id]
	if !ok {
		return models.VaultRecord{}, false
	}
	return *rec, true
}

// RecordRouted bumps the utilization counter and, when routed is positive,
// accumulates it into TotalRouted. Called by the execution path only after a
// deposit attempt has fully succeeded.
func (r *Registry) RecordRouted(id string, routed decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.vaults[id]
	if !ok || !rec.Active {
		return ErrNotActive
	}
	rec.UtilizationCount++
	if routed.IsPositive() {
		rec.TotalRouted = rec.TotalRouted.Add(routed)
	}
	return nil
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.global)
}
