package feed

import (
	"encoding/json"

	"github.com/mr-tron/base58"
)

// Fixed external-protocol markers. The decision rule below is a
// contract with the feed, not an internal design choice.
const (
	// TxTypeMigrate marks a graduation (migration) transaction.
	TxTypeMigrate = "migrate"
	// PoolPumpAMM marks the pump-style automated market maker pool.
	PoolPumpAMM = "pump-amm"
)

// GraduationEvent is the subset of a feed message consumed by the
// tracker. The source ecosystem does not guarantee which fields are
// present beyond txType.
type GraduationEvent struct {
	TxType       string   `json:"txType"`
	Mint         string   `json:"mint"`
	Pool         string   `json:"pool"`
	Name         string   `json:"name"`
	Symbol       string   `json:"symbol"`
	Timestamp    int64    `json:"timestamp"` // Unix ms, 0 when absent
	LiquidityUsd *float64 `json:"liquidityUsd"`
	InitialBuy   *float64 `json:"initialBuy"`
	PriceUsd     *float64 `json:"priceUsd"`
	PairAddress  string   `json:"pairAddress"`
	Dex          string   `json:"dex"`
	Signature    string   `json:"signature"`
}

// Outcome is the classification result for one feed message.
type Outcome int

const (
	// OutcomeAccepted: a graduation event to process.
	OutcomeAccepted Outcome = iota
	// OutcomeIgnoredVenue: a migration on a non-pump venue. Recognized
	// but not processed; logged for diagnostics.
	OutcomeIgnoredVenue
	// OutcomeNotGraduation: a valid message that is not a migration.
	OutcomeNotGraduation
	// OutcomeParseError: not valid structured data.
	OutcomeParseError
)

// String returns the metric label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeIgnoredVenue:
		return "ignored_venue"
	case OutcomeNotGraduation:
		return "not_graduation"
	default:
		return "parse_error"
	}
}

// Classification carries the outcome and, when parseable, the decoded
// event.
type Classification struct {
	Outcome Outcome
	Event   *GraduationEvent
}

// Classify decides whether a raw feed message is a graduation event.
// A message is accepted iff txType equals the migration marker, the
// mint is non-empty, and the pool equals the pump-AMM marker.
func Classify(raw json.RawMessage) Classification {
	var event GraduationEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return Classification{Outcome: OutcomeParseError}
	}

	if event.TxType != TxTypeMigrate {
		return Classification{Outcome: OutcomeNotGraduation, Event: &event}
	}
	if event.Mint == "" {
		return Classification{Outcome: OutcomeNotGraduation, Event: &event}
	}
	if event.Pool != PoolPumpAMM {
		return Classification{Outcome: OutcomeIgnoredVenue, Event: &event}
	}

	return Classification{Outcome: OutcomeAccepted, Event: &event}
}

// PlausibleMint reports whether the mint base58-decodes to a 32-byte
// Solana address. Diagnostic only: the feed contract requires just a
// non-empty mint, but an implausible one is worth logging.
func PlausibleMint(mint string) bool {
	decoded, err := base58.Decode(mint)
	if err != nil {
		return false
	}
	return len(decoded) == 32
}
