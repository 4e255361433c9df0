package models

// Brand holds the brand tokens served to the front-end
type Brand struct {
	Name    string            `yaml:"name" json:"name"`
	LogoURL string            `yaml:"logo_url" json:"logo_url,omitempty"`
	Colors  map[string]string `yaml:"colors" json:"colors"`
	Fonts   map[string]string `yaml:"fonts" json:"fonts,omitempty"`
}

// FinancingPlan is a financing offer options can reference
type FinancingPlan struct {
	ID       string  `yaml:"id" json:"id"`
	Provider string  `yaml:"provider" json:"provider"`
	Name     string  `yaml:"name" json:"name"`
	APR      float64 `yaml:"apr" json:"apr"`
	Months   int     `yaml:"months" json:"months"`
}

// FixtureOption is a seeded option in fixtures.yaml
type FixtureOption struct {
	Title           string  `yaml:"title"`
	Description     string  `yaml:"description"`
	Price           float64 `yaml:"price"`
	IsApproved      bool    `yaml:"is_approved"`
	FinancingPlanID string  `yaml:"financing_plan_id"`
	PromotionID     string  `yaml:"promotion_id"`
}

// FixtureOpportunity is a seeded opportunity in fixtures.yaml
type FixtureOpportunity struct {
	Title     string          `yaml:"title"`
	Column    ColumnID        `yaml:"column_id"`
	Operators []Operator      `yaml:"operators"`
	Options   []FixtureOption `yaml:"options"`
}

// Fixtures is the dummy data set used by `estimator seed`
type Fixtures struct {
	Opportunities []FixtureOpportunity `yaml:"opportunities"`
	Projects      []Project            `yaml:"projects"`
}
