package journal

import "github.com/shopspring/decimal"

// money rounds an account amount to cents.
func money(x float64) decimal.Decimal {
	return decimal.NewFromFloat(x).Round(2)
}

// price keeps enough places for FX quotes.
func price(x float64) string {
	return decimal.NewFromFloat(x).Round(6).String()
}
