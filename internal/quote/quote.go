package quote

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a normalized observation of one symbol from one provider response.
// Numeric fields are null when the provider omitted them or sent something
// that does not parse; Symbol and FetchedAt are always set.
type Quote struct {
	Symbol    string
	FetchedAt time.Time

	Open  decimal.NullDecimal
	High  decimal.NullDecimal
	Low   decimal.NullDecimal
	Close decimal.NullDecimal

	Volume *int64

	// Raw is the provider response body, kept verbatim.
	Raw json.RawMessage
}

// Validate reports whether the quote carries its required fields.
func (q Quote) Validate() error {
	if q.Symbol == "" {
		return errors.New("quote has empty symbol")
	}
	if q.FetchedAt.IsZero() {
		return errors.New("quote has no fetched_at time")
	}
	return nil
}
