// Package finance computes option prices and financed monthly payments.
package finance

import (
	"math"
	"time"

	"github.com/terra-clan/estimator/internal/models"
)

// MonthlyPayment returns the amortized monthly payment for a loan, rounded to
// the nearest whole unit. apr is an annual percentage (6.99 means 6.99%).
func MonthlyPayment(principal, apr float64, months int) int {
	if principal <= 0 || months <= 0 {
		return 0
	}

	if apr <= 0 {
		return int(math.Round(principal / float64(months)))
	}

	r := apr / 100 / 12
	payment := principal * r / (1 - math.Pow(1+r, -float64(months)))
	return int(math.Round(payment))
}

// ApplyPromotion returns the discount a promotion grants on price.
// The percentage is applied first, then the flat amount. The discount never
// exceeds the price and expired promotions grant nothing.
func ApplyPromotion(price float64, promo *models.Promotion, now time.Time) float64 {
	if promo == nil || price <= 0 || promo.IsExpired(now) {
		return 0
	}

	discount := price * promo.DiscountPercent / 100
	discount += promo.DiscountAmount

	if discount > price {
		return price
	}
	if discount < 0 {
		return 0
	}
	return roundCents(discount)
}

// PriceDetails computes the calculated price breakdown of an option and
// refreshes the monthly payment on its financing terms.
func PriceDetails(opt *models.Option, now time.Time) *models.PriceDetails {
	discount := ApplyPromotion(opt.Price, opt.Promotion, now)

	details := &models.PriceDetails{
		ListPrice: opt.Price,
		Discount:  discount,
		NetPrice:  roundCents(opt.Price - discount),
	}

	if opt.Financing != nil {
		opt.Financing.MonthlyPayment = MonthlyPayment(details.NetPrice, opt.Financing.APR, opt.Financing.Months)
		details.MonthlyPayment = opt.Financing.MonthlyPayment
	}

	return details
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
