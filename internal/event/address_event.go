package event

import (
	"SwapLedger/internal/amount"
)

// Kind discriminates the two AddressEvent variants.
type Kind int32

const (
	KindExternal Kind = iota
	KindInternal
)

func (k Kind) String() string {
	if k == KindInternal {
		return "internal"
	}
	return "external"
}

// AddressEvent is a unified observation of either an external chain
// transaction or an internal ledger transaction touching a party
// address. The variant set is closed: *ExternalTx and *InternalTx are
// the only implementations, and callers type-switch on them.
type AddressEvent interface {
	// Identifier returns the stable dedup key: the external tx id, or
	// the internal transaction hash.
	Identifier() string

	Kind() Kind

	// Currency is the currency whose balance the event moves: the chain
	// currency for external events, RDG for internal ones.
	Currency() amount.Currency

	// Incoming reports whether value flows toward the party.
	Incoming() bool

	// ObservedTime resolves the confirmation time in unix millis.
	// ok=false means the event is not yet confirmed.
	ObservedTime(seeds []string) (t int64, ok bool)

	// UsdPrice is the oracle USD price attached at observation time.
	UsdPrice() (float64, bool)

	// ExternalCurrency is the external-chain currency the event relates
	// to: the event's own currency for external events, the declared
	// swap destination currency for internal ones.
	ExternalCurrency() (amount.Currency, bool)
}

// ExternalTx is an externally observed chain transaction involving a
// party address.
type ExternalTx struct {
	TxID string `json:"tx_id"`

	// Confirmation time in unix millis. Zero means unconfirmed/mempool.
	Timestamp int64 `json:"timestamp"`

	// Counterparty address (sender for incoming, recipient for outgoing).
	OtherAddress string `json:"other_address"`

	// All non-self output addresses, for multi-output transactions.
	OtherOutputAddresses []string `json:"other_output_addresses,omitempty"`

	// Native-scale minor units. Exact for BTC/SOL/XMR; the 1e8 offset
	// approximation for ETH, whose exact value is BigintAmount.
	Amount int64 `json:"amount"`

	// Exact wei integer string, Ethereum only.
	BigintAmount string `json:"bigint_amount,omitempty"`

	Chain    amount.Currency `json:"currency"`
	In       bool            `json:"incoming"`
	Fee      *amount.Amount  `json:"fee,omitempty"`
	Block    int64           `json:"block_number,omitempty"`
	PriceUSD float64         `json:"price_usd,omitempty"`
}

func (e *ExternalTx) Identifier() string        { return e.TxID }
func (e *ExternalTx) Kind() Kind                { return KindExternal }
func (e *ExternalTx) Currency() amount.Currency { return e.Chain }
func (e *ExternalTx) Incoming() bool            { return e.In }
func (e *ExternalTx) Confirmed() bool           { return e.Timestamp != 0 }

func (e *ExternalTx) ObservedTime([]string) (int64, bool) {
	return e.Timestamp, e.Timestamp != 0
}

func (e *ExternalTx) UsdPrice() (float64, bool) {
	return e.PriceUSD, e.PriceUSD != 0
}

func (e *ExternalTx) ExternalCurrency() (amount.Currency, bool) {
	return e.Chain, true
}

// CurrencyAmount returns the transferred value, preferring the exact
// big-integer path when present.
func (e *ExternalTx) CurrencyAmount() amount.Amount {
	if e.BigintAmount != "" {
		if a, err := amount.FromWeiString(e.BigintAmount); err == nil {
			return a
		}
	}
	return amount.FromUnits(e.Chain, e.Amount)
}

// BalanceChange is the unsigned magnitude of the party balance change:
// the amount alone for deposits, amount plus fee for payouts.
func (e *ExternalTx) BalanceChange() amount.Amount {
	ca := e.CurrencyAmount()
	if e.In || e.Fee == nil {
		return ca
	}
	return ca.Add(*e.Fee)
}

// ObservationProof is one consensus observation of an internal
// transaction by a seed node.
type ObservationProof struct {
	PublicKey string `json:"public_key"`
	Time      int64  `json:"time"`
	Live      bool   `json:"live"`
	Accepted  bool   `json:"accepted"`
}

// InternalTx is a consensus-confirmed internal ledger transaction plus
// the observation proofs that finalized it and a snapshot of all
// currency USD prices at confirmation time.
type InternalTx struct {
	Tx             *LedgerTransaction          `json:"tx"`
	Observations   []ObservationProof          `json:"observations,omitempty"`
	PriceUSD       float64                     `json:"price_usd,omitempty"`
	AllPricesUSD   map[amount.Currency]float64 `json:"all_relevant_prices_usd,omitempty"`
	QueriedAddress string                      `json:"queried_address"`
}

func (e *InternalTx) Identifier() string        { return e.Tx.Hash }
func (e *InternalTx) Kind() Kind                { return KindInternal }
func (e *InternalTx) Currency() amount.Currency { return amount.CurrencyRDG }

func (e *InternalTx) Incoming() bool {
	for _, a := range e.Tx.InputAddresses {
		if a == e.QueriedAddress {
			return false
		}
	}
	return true
}

// ObservedTime averages the observation times reported by seed nodes
// whose proofs are live and accepted. With no seeds configured the
// transaction's own time is trusted directly.
func (e *InternalTx) ObservedTime(seeds []string) (int64, bool) {
	if len(seeds) == 0 {
		return e.Tx.Time, e.Tx.Time != 0
	}
	seedSet := make(map[string]struct{}, len(seeds))
	for _, s := range seeds {
		seedSet[s] = struct{}{}
	}
	var sum, n int64
	for _, o := range e.Observations {
		if _, ok := seedSet[o.PublicKey]; !ok {
			continue
		}
		if !o.Live || !o.Accepted {
			continue
		}
		sum += o.Time
		n++
	}
	if n == 0 {
		return 0, false
	}
	avg := sum / n
	if avg == 0 {
		return 0, false
	}
	return avg, true
}

func (e *InternalTx) UsdPrice() (float64, bool) {
	return e.PriceUSD, e.PriceUSD != 0
}

func (e *InternalTx) ExternalCurrency() (amount.Currency, bool) {
	if dest := e.Tx.SwapDestination(); dest != nil {
		return dest.Currency, true
	}
	return amount.CurrencyUnknown, false
}
