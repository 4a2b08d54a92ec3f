package billing

// PlanLimits holds the metered-resource caps for a plan.
type PlanLimits struct {
	GenerationsPerPeriod int64
	VariationsPerBatch   int64
}

// planCatalog is the static plan catalog. Limits are immutable and not
// persisted per user; -1 means unlimited.
var planCatalog = map[Plan]PlanLimits{
	PlanFree:       {GenerationsPerPeriod: 10, VariationsPerBatch: 2},
	PlanPro:        {GenerationsPerPeriod: 100, VariationsPerBatch: 10},
	PlanEnterprise: {GenerationsPerPeriod: Unlimited, VariationsPerBatch: Unlimited},
}

// LimitsFor returns the limits for a plan. Unknown plans fall back to the
// free tier so a corrupted plan value never grants unlimited usage.
func LimitsFor(p Plan) PlanLimits {
	if limits, ok := planCatalog[p]; ok {
		return limits
	}
	return planCatalog[PlanFree]
}

// UpgradeTarget returns the plan to suggest when a user on the given plan
// hits a limit, used for upsell messaging in denial payloads.
func UpgradeTarget(p Plan) Plan {
	if p == PlanFree {
		return PlanPro
	}
	return PlanEnterprise
}
