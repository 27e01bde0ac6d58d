package chain

import (
	"math/big"
)

// TreasuryBalance is for display only; Raw is authoritative.
type TreasuryBalance struct {
	Raw            string  `json:"raw"`
	Normalized     string  `json:"normalized"`
	FiatEquivalent string  `json:"fiat_equivalent"`
	FiatCurrency   string  `json:"fiat_currency"`
	FiatRate       float64 `json:"fiat_rate"`
}

func NewTreasuryBalance(raw *big.Int, decimals int, fiatRate float64, currency string) TreasuryBalance {
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	normalized := new(big.Float).Quo(new(big.Float).SetInt(raw), scale)
	fiat := new(big.Float).Mul(normalized, big.NewFloat(fiatRate))

	return TreasuryBalance{
		Raw:            raw.String(),
		Normalized:     normalized.Text('f', 6),
		FiatEquivalent: fiat.Text('f', 2),
		FiatCurrency:   currency,
		FiatRate:       fiatRate,
	}
}
