package models

import (
	"github.com/shopspring/decimal"
)

// VaultRecord is the canonical per-vault routing state.
type VaultRecord struct {
	ID           string
	ResourceType string
	Priority     uint64
	RiskScore    int

	// Active false means logically removed; the record (and its historical
	// TotalRouted) is retained until physically dropped.
	Active bool

	TotalRouted decimal.Decimal
	// UtilizationCount counts how often the execution path chose this vault.
	// Read-only strategy queries do not touch it.
	UtilizationCount uint64

	// GlobalIndex and ResourceIndex cache this id's slot in the global and
	// per-resource index arrays so swap-removal stays O(1).
	GlobalIndex   int
	ResourceIndex int
}

// VaultSnapshot is the observability view of a VaultRecord.
type VaultSnapshot struct {
	ID               string          `json:"id"`
	ResourceType     string          `json:"resource_type"`
	Priority         uint64          `json:"priority"`
	RiskScore        int             `json:"risk_score"`
	Active           bool            `json:"active"`
	TotalRouted      decimal.Decimal `json:"total_routed"`
	UtilizationCount uint64          `json:"utilization_count"`
}

func (r VaultRecord) Snapshot() VaultSnapshot {
	return VaultSnapshot{
		ID:               r.ID,
		ResourceType:     r.ResourceType,
		Priority:         r.Priority,
		RiskScore:        r.RiskScore,
		Active:           r.Active,
		TotalRouted:      r.TotalRouted,
		UtilizationCount: r.UtilizationCount,
	}
}
