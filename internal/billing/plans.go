// Package billing provides plan management, admission checks, and usage
// recording for the PomoLink platform.
package billing

import "pomolink/internal/types"

// PlanRegistry defines the authoritative limits for each tier.
// This is the single source of truth for what each plan allows.
type PlanRegistry interface {
	// GetLimits returns the resource limits for the given plan tier.
	// For unknown tiers, returns the most restrictive (Free) limits
	// to fail safely.
	GetLimits(tier types.PlanTier) types.PlanLimits
}

// staticPlanRegistry is a compile-time plan registry backed by an in-memory map.
// It implements PlanRegistry and is the standard implementation for production use.
type staticPlanRegistry struct {
	limits map[types.PlanTier]types.PlanLimits
}

// planDefaults defines the hardcoded plan limits.
//
//	| Plan  | Rooms | Participants | Recordings/day | Retention | Uploads/day (user/room) |
//	|-------|-------|--------------|----------------|-----------|-------------------------|
//	| FREE  | 1     | 3            | 3              | 7 days    | 5 / 20                  |
//	| BASIC | 5     | 10           | 10             | 30 days   | 20 / 100                |
//	| PRO   | 20    | 50           | 50             | 90 days   | 100 / 500               |
//
// Every tier carries explicit limits; there is no "0 means unlimited" rule.
var planDefaults = map[types.PlanTier]types.PlanLimits{
	types.PlanFree: {
		MaxRooms:            1,
		MaxParticipants:     3,
		MaxDailyRecordings:  3,
		RetentionDays:       7,
		MaxDailyUploadsUser: 5,
		MaxDailyUploadsRoom: 20,
		PriceCentsMonthly:   0,
	},
	types.PlanBasic: {
		MaxRooms:            5,
		MaxParticipants:     10,
		MaxDailyRecordings:  10,
		RetentionDays:       30,
		MaxDailyUploadsUser: 20,
		MaxDailyUploadsRoom: 100,
		PriceCentsMonthly:   900,
	},
	types.PlanPro: {
		MaxRooms:            20,
		MaxParticipants:     50,
		MaxDailyRecordings:  50,
		RetentionDays:       90,
		MaxDailyUploadsUser: 100,
		MaxDailyUploadsRoom: 500,
		PriceCentsMonthly:   2900,
	},
}

// freeLimits is cached to avoid map lookups on the fallback path.
var freeLimits = planDefaults[types.PlanFree]

// NewStaticPlanRegistry returns a PlanRegistry backed by the hardcoded plan
// limits table. This is the standard production implementation; no database
// or external service is required.
func NewStaticPlanRegistry() PlanRegistry {
	// Copy the defaults into a new map so callers cannot mutate the package-level variable.
	m := make(map[types.PlanTier]types.PlanLimits, len(planDefaults))
	for k, v := range planDefaults {
		m[k] = v
	}
	return &staticPlanRegistry{limits: m}
}

// GetLimits returns the resource limits for the given plan tier.
// If the tier is unknown or empty, it returns the FREE tier limits as a safe
// default.
func (r *staticPlanRegistry) GetLimits(tier types.PlanTier) types.PlanLimits {
	if limits, ok := r.limits[tier]; ok {
		return limits
	}
	return freeLimits
}
