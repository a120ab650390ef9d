package event

import (
	"SwapLedger/internal/amount"
)

// Address is a rendered chain address tagged with its currency.
type Address struct {
	Value    string          `json:"value"`
	Currency amount.Currency `json:"currency"`
}

// SwapFulfillment marks a transaction output as the settlement of a
// swap that was triggered by an external deposit, referencing that
// deposit's external transaction id.
type SwapFulfillment struct {
	ExternalTxID string          `json:"external_tx_id"`
	Chain        amount.Currency `json:"currency"`
}

// TxOutput is one output of an internal ledger transaction. Amounts are
// RDG minor units.
type TxOutput struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`

	// Set when this output settles a swap triggered by an external deposit.
	SwapFulfillment *SwapFulfillment `json:"swap_fulfillment,omitempty"`

	// Set when this output pays out a stake withdrawal; names the UTXO
	// that requested the withdrawal.
	StakeWithdrawalUtxoID string `json:"stake_withdrawal_utxo_id,omitempty"`
}

// DepositRequest declares an intended external-chain stake deposit:
// the external address the stake will arrive from and its amount.
type DepositRequest struct {
	Address string        `json:"address"`
	Amount  amount.Amount `json:"amount"`
}

// PortfolioFulfillmentParams marks a stake deposit as fulfilling a
// portfolio allocation request rather than providing AMM liquidity.
type PortfolioFulfillmentParams struct {
	PortfolioTxHash string `json:"portfolio_tx_hash,omitempty"`
}

// StakeDeposit is the deposit side of a stake request. External is set
// for external-chain liquidity (the principal arrives on another
// chain); nil means the staked principal is the RDG paid by this
// transaction itself.
type StakeDeposit struct {
	External        *DepositRequest             `json:"external,omitempty"`
	PortfolioParams *PortfolioFulfillmentParams `json:"portfolio_params,omitempty"`
}

// StakeWithdrawal requests return of staked principal to a destination.
type StakeWithdrawal struct {
	Destination Address `json:"destination"`
}

// StakeRequest is one stake deposit or withdrawal declared by a
// transaction, keyed by the output UTXO carrying it.
type StakeRequest struct {
	UtxoID     string           `json:"utxo_id"`
	Deposit    *StakeDeposit    `json:"deposit,omitempty"`
	Withdrawal *StakeWithdrawal `json:"withdrawal,omitempty"`
}

// PortfolioWeighting is one requested allocation fraction.
type PortfolioWeighting struct {
	Currency amount.Currency `json:"currency"`
	Weight   float64         `json:"weight"`
}

// PortfolioRequest asks the party to deploy the transaction's RDG value
// across external chains per the weightings.
type PortfolioRequest struct {
	Weightings []PortfolioWeighting `json:"weightings"`
}

// FixedCurrencyAllocations normalizes the weightings into per-currency
// fractions summing to 1.
func (p *PortfolioRequest) FixedCurrencyAllocations() map[amount.Currency]float64 {
	total := 0.0
	for _, w := range p.Weightings {
		total += w.Weight
	}
	out := make(map[amount.Currency]float64, len(p.Weightings))
	if total == 0 {
		return out
	}
	for _, w := range p.Weightings {
		out[w.Currency] += w.Weight / total
	}
	return out
}

// LedgerTransaction is the introspection surface of an internal ledger
// transaction that the settlement engine needs. The surrounding node
// populates it from the full consensus transaction.
type LedgerTransaction struct {
	Hash           string         `json:"hash"`
	Time           int64          `json:"time"`
	InputAddresses []string       `json:"input_addresses,omitempty"`
	InputUtxoIDs   []string       `json:"input_utxo_ids,omitempty"`
	Outputs        []TxOutput     `json:"outputs,omitempty"`
	StakeReqs      []StakeRequest `json:"stake_requests,omitempty"`
	SwapDest       *Address       `json:"swap_destination,omitempty"`
	Portfolio      *PortfolioRequest `json:"portfolio_request,omitempty"`
}

// OutputAmountOfAddress sums the RDG output value paid to addr.
func (t *LedgerTransaction) OutputAmountOfAddress(addr string) int64 {
	var sum int64
	for _, o := range t.Outputs {
		if o.Address == addr {
			sum += o.Amount
		}
	}
	return sum
}

// OutputAmountExcludingAddress sums the RDG output value paid anywhere
// but addr (the outbound leg of a party payout).
func (t *LedgerTransaction) OutputAmountExcludingAddress(addr string) int64 {
	var sum int64
	for _, o := range t.Outputs {
		if o.Address != addr {
			sum += o.Amount
		}
	}
	return sum
}

// OutputExternalTxIDs collects the external transaction ids referenced
// by swap-fulfillment outputs: external deposits this transaction pays
// out for.
func (t *LedgerTransaction) OutputExternalTxIDs() []string {
	var ids []string
	for _, o := range t.Outputs {
		if o.SwapFulfillment != nil && o.SwapFulfillment.ExternalTxID != "" {
			ids = append(ids, o.SwapFulfillment.ExternalTxID)
		}
	}
	return ids
}

// StakeWithdrawalFulfillments collects the stake-withdrawal UTXO ids
// this transaction's outputs settle.
func (t *LedgerTransaction) StakeWithdrawalFulfillments() []string {
	var ids []string
	for _, o := range t.Outputs {
		if o.StakeWithdrawalUtxoID != "" {
			ids = append(ids, o.StakeWithdrawalUtxoID)
		}
	}
	return ids
}

// SwapDestination is the declared external payout address of a swap
// request, nil when the transaction is not a swap.
func (t *LedgerTransaction) SwapDestination() *Address {
	return t.SwapDest
}

// IsSwap reports whether the transaction declares a swap destination.
func (t *LedgerTransaction) IsSwap() bool {
	return t.SwapDest != nil
}

// IsStake reports whether the transaction declares any stake request.
func (t *LedgerTransaction) IsStake() bool {
	return len(t.StakeReqs) > 0
}

// StakeRequests returns all declared stake deposits and withdrawals.
func (t *LedgerTransaction) StakeRequests() []StakeRequest {
	return t.StakeReqs
}

// StakeDepositRequest returns the first declared stake deposit, nil if
// none.
func (t *LedgerTransaction) StakeDepositRequest() *StakeDeposit {
	for _, r := range t.StakeReqs {
		if r.Deposit != nil {
			return r.Deposit
		}
	}
	return nil
}

// StakeWithdrawalRequest returns the first declared stake withdrawal,
// nil if none.
func (t *LedgerTransaction) StakeWithdrawalRequest() *StakeWithdrawal {
	for _, r := range t.StakeReqs {
		if r.Withdrawal != nil {
			return r.Withdrawal
		}
	}
	return nil
}

// PortfolioRequest returns the declared portfolio allocation request,
// nil if none.
func (t *LedgerTransaction) PortfolioRequest() *PortfolioRequest {
	return t.Portfolio
}

// HasPortfolioRequest reports whether a portfolio request is declared.
func (t *LedgerTransaction) HasPortfolioRequest() bool {
	return t.Portfolio != nil
}

// FirstInputAddress is the spender address, used as the implicit refund
// or fulfillment destination for incoming swaps.
func (t *LedgerTransaction) FirstInputAddress() (string, bool) {
	if len(t.InputAddresses) == 0 {
		return "", false
	}
	return t.InputAddresses[0], true
}
