package amount

import "strings"

// Currency identifies a supported settlement currency.
type Currency int32

const (
	CurrencyUnknown Currency = iota
	CurrencyRDG              // internal ledger token
	CurrencyBTC
	CurrencyETH
	CurrencySOL
	CurrencyXMR
	CurrencyUSD
)

// Scale is the canonical minor-unit multiplier for int64 amounts.
// Ethereum is special-cased: its native scale (1e18) does not fit the
// int64 path, so ETH amounts carry an exact big value and Units holds a
// 1e8-offset approximation.
func (c Currency) Scale() int64 {
	switch c {
	case CurrencySOL:
		return 1_000_000_000 // lamports
	case CurrencyXMR:
		return 1_000_000_000_000 // piconero
	default:
		return 100_000_000 // 1e8: RDG sats, satoshis, USD cents*1e6, ETH offset
	}
}

func (c Currency) String() string {
	switch c {
	case CurrencyRDG:
		return "RDG"
	case CurrencyBTC:
		return "BTC"
	case CurrencyETH:
		return "ETH"
	case CurrencySOL:
		return "SOL"
	case CurrencyXMR:
		return "XMR"
	case CurrencyUSD:
		return "USD"
	default:
		return "UNKNOWN"
	}
}

// ParseCurrency resolves a currency symbol, case-insensitively.
func ParseCurrency(s string) (Currency, bool) {
	switch strings.ToUpper(s) {
	case "RDG":
		return CurrencyRDG, true
	case "BTC":
		return CurrencyBTC, true
	case "ETH":
		return CurrencyETH, true
	case "SOL":
		return CurrencySOL, true
	case "XMR":
		return CurrencyXMR, true
	case "USD":
		return CurrencyUSD, true
	default:
		return CurrencyUnknown, false
	}
}
