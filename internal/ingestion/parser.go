package ingestion

import (
	"encoding/json"
	"fmt"

	"SwapLedger/internal/amount"
	"SwapLedger/internal/event"
)

// ParsedMessage is the typed result of parsing one raw NATS message.
// Exactly one of Event and Tick is set.
type ParsedMessage struct {
	Event event.AddressEvent
	Tick  *PriceTick
}

// PriceTick is one oracle observation of a currency's USD price.
type PriceTick struct {
	Currency amount.Currency
	PriceUSD float64
	Time     int64
}

// ParseRawEvent converts a RawEvent (JSON bytes + wire format name)
// into a typed observation. The ingestion shell validates and converts
// raw messages before handing them to the party loop.
func ParseRawEvent(raw RawEvent, eventType string) (ParsedMessage, error) {
	switch eventType {
	case "ExternalTx":
		ev, err := parseExternalTx(raw.Data)
		if err != nil {
			return ParsedMessage{}, err
		}
		return ParsedMessage{Event: ev}, nil
	case "InternalTx":
		ev, err := parseInternalTx(raw.Data)
		if err != nil {
			return ParsedMessage{}, err
		}
		return ParsedMessage{Event: ev}, nil
	case "PriceTick":
		tick, err := parsePriceTick(raw.Data)
		if err != nil {
			return ParsedMessage{}, err
		}
		return ParsedMessage{Tick: tick}, nil
	default:
		return ParsedMessage{}, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match the chain watchers and the
// internal ledger observer.

type addressJSON struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

func (a addressJSON) toAddress() (event.Address, error) {
	cur, ok := amount.ParseCurrency(a.Currency)
	if !ok {
		return event.Address{}, fmt.Errorf("unknown currency %q", a.Currency)
	}
	return event.Address{Value: a.Value, Currency: cur}, nil
}

type externalTxJSON struct {
	TxID                 string   `json:"tx_id"`
	TimestampMs          int64    `json:"timestamp_ms"`
	OtherAddress         string   `json:"other_address"`
	OtherOutputAddresses []string `json:"other_output_addresses,omitempty"`
	Amount               int64    `json:"amount"`
	BigintAmount         string   `json:"bigint_amount,omitempty"`
	Currency             string   `json:"currency"`
	Incoming             bool     `json:"incoming"`
	FeeUnits             *int64   `json:"fee_units,omitempty"`
	BlockNumber          int64    `json:"block_number,omitempty"`
	PriceUSD             float64  `json:"price_usd,omitempty"`
}

func parseExternalTx(data []byte) (*event.ExternalTx, error) {
	var j externalTxJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ExternalTx: %w", err)
	}
	if j.TxID == "" {
		return nil, fmt.Errorf("parse ExternalTx: missing tx_id")
	}
	chain, ok := amount.ParseCurrency(j.Currency)
	if !ok {
		return nil, fmt.Errorf("parse ExternalTx %s: unknown currency %q", j.TxID, j.Currency)
	}
	if j.Amount < 0 {
		return nil, fmt.Errorf("parse ExternalTx %s: negative amount", j.TxID)
	}
	if j.Amount == 0 && j.BigintAmount == "" {
		return nil, fmt.Errorf("parse ExternalTx %s: zero amount", j.TxID)
	}
	if j.BigintAmount != "" {
		if _, err := amount.FromWeiString(j.BigintAmount); err != nil {
			return nil, fmt.Errorf("parse ExternalTx %s: %w", j.TxID, err)
		}
	}

	ev := &event.ExternalTx{
		TxID:                 j.TxID,
		Timestamp:            j.TimestampMs,
		OtherAddress:         j.OtherAddress,
		OtherOutputAddresses: j.OtherOutputAddresses,
		Amount:               j.Amount,
		BigintAmount:         j.BigintAmount,
		Chain:                chain,
		In:                   j.Incoming,
		Block:                j.BlockNumber,
		PriceUSD:             j.PriceUSD,
	}
	if j.FeeUnits != nil {
		fee := amount.FromUnits(chain, *j.FeeUnits)
		ev.Fee = &fee
	}
	return ev, nil
}

type observationJSON struct {
	PublicKey string `json:"public_key"`
	TimeMs    int64  `json:"time_ms"`
	Live      bool   `json:"live"`
	Accepted  bool   `json:"accepted"`
}

type outputJSON struct {
	Address         string `json:"address"`
	Amount          int64  `json:"amount"`
	SwapFulfillment *struct {
		ExternalTxID string `json:"external_tx_id"`
		Currency     string `json:"currency"`
	} `json:"swap_fulfillment,omitempty"`
	StakeWithdrawalUtxoID string `json:"stake_withdrawal_utxo_id,omitempty"`
}

type stakeRequestJSON struct {
	UtxoID  string `json:"utxo_id"`
	Deposit *struct {
		External *struct {
			Address  string `json:"address"`
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
		} `json:"external,omitempty"`
		PortfolioTxHash string `json:"portfolio_tx_hash,omitempty"`
	} `json:"deposit,omitempty"`
	Withdrawal *struct {
		Destination addressJSON `json:"destination"`
	} `json:"withdrawal,omitempty"`
}

type portfolioRequestJSON struct {
	Weightings []struct {
		Currency string  `json:"currency"`
		Weight   float64 `json:"weight"`
	} `json:"weightings"`
}

type ledgerTxJSON struct {
	Hash             string                `json:"hash"`
	TimeMs           int64                 `json:"time_ms"`
	InputAddresses   []string              `json:"input_addresses,omitempty"`
	InputUtxoIDs     []string              `json:"input_utxo_ids,omitempty"`
	Outputs          []outputJSON          `json:"outputs,omitempty"`
	StakeRequests    []stakeRequestJSON    `json:"stake_requests,omitempty"`
	SwapDestination  *addressJSON          `json:"swap_destination,omitempty"`
	PortfolioRequest *portfolioRequestJSON `json:"portfolio_request,omitempty"`
}

type internalTxJSON struct {
	Tx             ledgerTxJSON       `json:"tx"`
	Observations   []observationJSON  `json:"observations,omitempty"`
	PriceUSD       float64            `json:"price_usd,omitempty"`
	AllPricesUSD   map[string]float64 `json:"all_relevant_prices_usd,omitempty"`
	QueriedAddress string             `json:"queried_address"`
}

func parseInternalTx(data []byte) (*event.InternalTx, error) {
	var j internalTxJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse InternalTx: %w", err)
	}
	if j.Tx.Hash == "" {
		return nil, fmt.Errorf("parse InternalTx: missing tx hash")
	}

	tx := &event.LedgerTransaction{
		Hash:           j.Tx.Hash,
		Time:           j.Tx.TimeMs,
		InputAddresses: j.Tx.InputAddresses,
		InputUtxoIDs:   j.Tx.InputUtxoIDs,
	}

	for _, o := range j.Tx.Outputs {
		out := event.TxOutput{
			Address:               o.Address,
			Amount:                o.Amount,
			StakeWithdrawalUtxoID: o.StakeWithdrawalUtxoID,
		}
		if o.SwapFulfillment != nil {
			cur, ok := amount.ParseCurrency(o.SwapFulfillment.Currency)
			if !ok {
				return nil, fmt.Errorf("parse InternalTx %s: unknown fulfillment currency %q",
					j.Tx.Hash, o.SwapFulfillment.Currency)
			}
			out.SwapFulfillment = &event.SwapFulfillment{
				ExternalTxID: o.SwapFulfillment.ExternalTxID,
				Chain:        cur,
			}
		}
		tx.Outputs = append(tx.Outputs, out)
	}

	for _, r := range j.Tx.StakeRequests {
		req := event.StakeRequest{UtxoID: r.UtxoID}
		if r.Deposit != nil {
			dep := &event.StakeDeposit{}
			if r.Deposit.External != nil {
				cur, ok := amount.ParseCurrency(r.Deposit.External.Currency)
				if !ok {
					return nil, fmt.Errorf("parse InternalTx %s: unknown stake currency %q",
						j.Tx.Hash, r.Deposit.External.Currency)
				}
				dep.External = &event.DepositRequest{
					Address: r.Deposit.External.Address,
					Amount:  amount.FromUnits(cur, r.Deposit.External.Amount),
				}
			}
			if r.Deposit.PortfolioTxHash != "" {
				dep.PortfolioParams = &event.PortfolioFulfillmentParams{
					PortfolioTxHash: r.Deposit.PortfolioTxHash,
				}
			}
			req.Deposit = dep
		}
		if r.Withdrawal != nil {
			dest, err := r.Withdrawal.Destination.toAddress()
			if err != nil {
				return nil, fmt.Errorf("parse InternalTx %s: %w", j.Tx.Hash, err)
			}
			req.Withdrawal = &event.StakeWithdrawal{Destination: dest}
		}
		tx.StakeReqs = append(tx.StakeReqs, req)
	}

	if j.Tx.SwapDestination != nil {
		dest, err := j.Tx.SwapDestination.toAddress()
		if err != nil {
			return nil, fmt.Errorf("parse InternalTx %s: %w", j.Tx.Hash, err)
		}
		tx.SwapDest = &dest
	}

	if j.Tx.PortfolioRequest != nil {
		pr := &event.PortfolioRequest{}
		for _, w := range j.Tx.PortfolioRequest.Weightings {
			cur, ok := amount.ParseCurrency(w.Currency)
			if !ok {
				return nil, fmt.Errorf("parse InternalTx %s: unknown weighting currency %q",
					j.Tx.Hash, w.Currency)
			}
			pr.Weightings = append(pr.Weightings, event.PortfolioWeighting{
				Currency: cur,
				Weight:   w.Weight,
			})
		}
		tx.Portfolio = pr
	}

	ev := &event.InternalTx{
		Tx:             tx,
		PriceUSD:       j.PriceUSD,
		QueriedAddress: j.QueriedAddress,
	}
	for _, o := range j.Observations {
		ev.Observations = append(ev.Observations, event.ObservationProof{
			PublicKey: o.PublicKey,
			Time:      o.TimeMs,
			Live:      o.Live,
			Accepted:  o.Accepted,
		})
	}
	if len(j.AllPricesUSD) > 0 {
		ev.AllPricesUSD = make(map[amount.Currency]float64, len(j.AllPricesUSD))
		for sym, p := range j.AllPricesUSD {
			cur, ok := amount.ParseCurrency(sym)
			if !ok {
				return nil, fmt.Errorf("parse InternalTx %s: unknown price currency %q", j.Tx.Hash, sym)
			}
			ev.AllPricesUSD[cur] = p
		}
	}
	return ev, nil
}

type priceTickJSON struct {
	Currency string  `json:"currency"`
	PriceUSD float64 `json:"price_usd"`
	TimeMs   int64   `json:"time_ms"`
}

func parsePriceTick(data []byte) (*PriceTick, error) {
	var j priceTickJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceTick: %w", err)
	}
	cur, ok := amount.ParseCurrency(j.Currency)
	if !ok {
		return nil, fmt.Errorf("parse PriceTick: unknown currency %q", j.Currency)
	}
	if j.PriceUSD <= 0 {
		return nil, fmt.Errorf("parse PriceTick %s: non-positive price", cur)
	}
	return &PriceTick{Currency: cur, PriceUSD: j.PriceUSD, Time: j.TimeMs}, nil
}
