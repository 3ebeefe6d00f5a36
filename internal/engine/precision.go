package engine

import "strings"

var (
	cryptoPatterns = []string{"btc", "eth", "crypto"}
	equityPatterns = []string{"nifty", "bank", "nse:", "bse:"}
)

// quantityPrecision classifies a symbol by string pattern: crypto-style
// symbols get 6 decimals, exchange-prefixed Indian equities 2, everything
// else 4. No external lookup is involved.
func quantityPrecision(symbol string) int32 {
	s := strings.ToLower(symbol)
	for _, p := range cryptoPatterns {
		if strings.Contains(s, p) {
			return 6
		}
	}
	for _, p := range equityPatterns {
		if strings.Contains(s, p) {
			return 2
		}
	}
	return 4
}
