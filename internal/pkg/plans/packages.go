package plans

// CreditPackage is a purchasable top-up. Bonus credits are granted on top of
// the paid amount; the transaction log records the combined total.
type CreditPackage struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Credits      int64  `json:"credits"`
	BonusCredits int64  `json:"bonus_credits"`
	PriceCents   int64  `json:"price_cents"`
}

var packages = []CreditPackage{
	{ID: "starter", Name: "Starter", Credits: 500, BonusCredits: 0, PriceCents: 499},
	{ID: "value", Name: "Value", Credits: 1000, BonusCredits: 100, PriceCents: 899},
	{ID: "power", Name: "Power", Credits: 3000, BonusCredits: 600, PriceCents: 2499},
}

// TotalCredits returns paid plus bonus credits.
func (p CreditPackage) TotalCredits() int64 {
	return p.Credits + p.BonusCredits
}

// Packages returns the packages purchasable on the given plan. Plans without
// purchase eligibility see an empty list.
func Packages(plan string) []CreditPackage {
	if !CanPurchase(plan) {
		return nil
	}
	out := make([]CreditPackage, len(packages))
	copy(out, packages)
	return out
}

// FindPackage resolves a package by ID independent of plan eligibility.
// Eligibility is enforced by the ledger when the purchase is credited.
func FindPackage(id string) (CreditPackage, bool) {
	for _, p := range packages {
		if p.ID == id {
			return p, true
		}
	}
	return CreditPackage{}, false
}
