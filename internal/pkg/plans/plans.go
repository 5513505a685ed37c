package plans

import (
	"strings"

	"github.com/ManuelReschke/CreditFox/app/models"
)

type Plan string

const (
	PlanFree  Plan = models.PlanFree
	PlanElite Plan = models.PlanElite
)

// Unbounded marks a category without a daily cap.
const Unbounded int64 = -1

// Config is an immutable tier definition. Daily caps count actions per UTC
// day, not credits. Blocked actions are hard gates checked before pricing:
// they deny regardless of balance.
type Config struct {
	DailyFreeCredits       int64
	MonthlyCreditAllowance int64
	PriceCents             int64
	CanPurchaseCredits     bool
	DailyActionCaps        map[string]int64
	BlockedActions         map[string]bool
}

var catalog = map[Plan]Config{
	PlanFree: {
		DailyFreeCredits:       10,
		MonthlyCreditAllowance: 0,
		PriceCents:             0,
		CanPurchaseCredits:     false,
		DailyActionCaps: map[string]int64{
			models.ActionChatMessage:      50,
			models.ActionDocumentAnalysis: 5,
			models.ActionHealthReport:     2,
		},
		BlockedActions: map[string]bool{
			models.ActionVoiceTranscription: true,
			models.ActionBookGeneration:     true,
		},
	},
	PlanElite: {
		DailyFreeCredits:       0,
		MonthlyCreditAllowance: 3000,
		PriceCents:             1999,
		CanPurchaseCredits:     true,
		DailyActionCaps: map[string]int64{
			models.ActionBookGeneration: 5,
		},
	},
}

// Normalize maps arbitrary plan strings to a known plan, defaulting to free.
func Normalize(plan string) Plan {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanElite):
		return PlanElite
	default:
		return PlanFree
	}
}

// Get returns the tier configuration for a plan name.
func Get(plan string) Config {
	return catalog[Normalize(plan)]
}

// IsActionAllowed reports whether an action is entitled on the plan at all.
func IsActionAllowed(plan string, action string) bool {
	return !Get(plan).BlockedActions[action]
}

// DailyCap returns the per-day action cap for a category, or Unbounded.
func DailyCap(plan string, action string) int64 {
	if cap, ok := Get(plan).DailyActionCaps[action]; ok {
		return cap
	}
	return Unbounded
}

// CanPurchase reports whether the plan may buy credit packages.
func CanPurchase(plan string) bool {
	return Get(plan).CanPurchaseCredits
}

// DailyFreeCredits returns the size of the plan's daily free grant.
func DailyFreeCredits(plan string) int64 {
	return Get(plan).DailyFreeCredits
}

// MonthlyAllowance returns the plan's 30-day credit allowance.
func MonthlyAllowance(plan string) int64 {
	return Get(plan).MonthlyCreditAllowance
}
