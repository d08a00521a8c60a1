package plans

// Unlimited marks a plan without a monthly cap (-1 keeps the value storable in SQL).
const Unlimited int64 = -1

// Plan is an immutable catalog entry.
type Plan struct {
	ID           string `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	Description  string `yaml:"description" json:"description"`
	MonthlyLimit int64  `yaml:"monthly_limit" json:"monthly_limit"` // Unlimited for no cap
	Paid         bool   `yaml:"paid" json:"paid"`
	PriceRef     string `yaml:"price_ref" json:"-"` // configuration key of the provider price id
	Public       bool   `yaml:"public" json:"public"`
}

// IsUnlimited reports whether the plan has no monthly cap.
func (p Plan) IsUnlimited() bool {
	return p.MonthlyLimit == Unlimited
}

// Allows reports whether one more metered action fits when count actions were already used.
func (p Plan) Allows(count int64) bool {
	return p.IsUnlimited() || count < p.MonthlyLimit
}

// Remaining returns how many actions are left this month, or Unlimited.
func (p Plan) Remaining(count int64) int64 {
	if p.IsUnlimited() {
		return Unlimited
	}
	return max(p.MonthlyLimit-count, 0)
}
