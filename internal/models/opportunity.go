package models

import (
	"encoding/json"
	"time"
)

// Operator joins two consecutive options of an opportunity
type Operator string

const (
	OperatorAnd Operator = "and"
	OperatorOr  Operator = "or"
)

// Valid reports whether the operator is one of the supported values
func (o Operator) Valid() bool {
	return o == OperatorAnd || o == OperatorOr
}

// Promotion is a discount that can be attached to an opportunity or option
type Promotion struct {
	ID              string     `yaml:"id" json:"id"`
	Title           string     `yaml:"title" json:"title"`
	Description     string     `yaml:"description" json:"description,omitempty"`
	DiscountPercent float64    `yaml:"discount_percent" json:"discount_percent,omitempty"`
	DiscountAmount  float64    `yaml:"discount_amount" json:"discount_amount,omitempty"`
	ExpiresAt       *time.Time `yaml:"expires_at" json:"expires_at,omitempty"`
}

// IsExpired reports whether the promotion ended before t
func (p *Promotion) IsExpired(t time.Time) bool {
	return p != nil && p.ExpiresAt != nil && t.After(*p.ExpiresAt)
}

// FinancingTerms describes how an option is financed
type FinancingTerms struct {
	PlanID         string  `json:"plan_id,omitempty"`
	Provider       string  `json:"provider,omitempty"`
	APR            float64 `json:"apr"`
	Months         int     `json:"months"`
	MonthlyPayment int     `json:"monthly_payment"`
}

// PriceDetails is the server-computed breakdown of an option price
type PriceDetails struct {
	ListPrice      float64 `json:"list_price"`
	Discount       float64 `json:"discount"`
	NetPrice       float64 `json:"net_price"`
	MonthlyPayment int     `json:"monthly_payment,omitempty"`
}

// Option is a priced line-item/estimate attached to an opportunity
type Option struct {
	ID                     string            `json:"id"`
	OpportunityID          string            `json:"opportunity_id"`
	Content                string            `json:"content,omitempty"`
	Title                  string            `json:"title"`
	Description            string            `json:"description,omitempty"`
	Price                  float64           `json:"price"`
	IsComplete             bool              `json:"is_complete"`
	IsApproved             bool              `json:"is_approved"`
	Materials              []json.RawMessage `json:"materials"`
	Sections               []json.RawMessage `json:"sections"`
	Financing              *FinancingTerms   `json:"financing,omitempty"`
	Promotion              *Promotion        `json:"promotion,omitempty"`
	CalculatedPriceDetails *PriceDetails     `json:"calculated_price_details,omitempty"`
	Position               int               `json:"position"`
	CreatedAt              time.Time         `json:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at"`
}

// Opportunity is a sales record tracked on the kanban board
type Opportunity struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Options     []*Option  `json:"options"`
	Operators   []Operator `json:"operators"`
	LastUpdated time.Time  `json:"last_updated"`
	Column      ColumnID   `json:"column_id"`
	Position    int        `json:"position"`
	Promotion   *Promotion `json:"promotion,omitempty"`
	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// OpportunityFilters defines filters for listing opportunities
type OpportunityFilters struct {
	Column ColumnID
	Limit  int
	Offset int
}

// CreateOpportunityRequest represents a request to create an opportunity
type CreateOpportunityRequest struct {
	Title       string     `json:"title"`
	Column      ColumnID   `json:"column_id,omitempty"`
	Operators   []Operator `json:"operators,omitempty"`
	PromotionID string     `json:"promotion_id,omitempty"`
}

// UpdateOpportunityRequest represents a partial opportunity update
type UpdateOpportunityRequest struct {
	Title       *string    `json:"title,omitempty"`
	Operators   []Operator `json:"operators,omitempty"`
	PromotionID *string    `json:"promotion_id,omitempty"`
}

// OptionRequest represents a request to create or replace an option
type OptionRequest struct {
	Content         string            `json:"content,omitempty"`
	Title           string            `json:"title"`
	Description     string            `json:"description,omitempty"`
	Price           float64           `json:"price"`
	IsComplete      bool              `json:"is_complete"`
	IsApproved      bool              `json:"is_approved"`
	Materials       []json.RawMessage `json:"materials,omitempty"`
	Sections        []json.RawMessage `json:"sections,omitempty"`
	FinancingPlanID string            `json:"financing_plan_id,omitempty"`
	PromotionID     string            `json:"promotion_id,omitempty"`
}
