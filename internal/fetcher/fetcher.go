package fetcher

import (
	"context"

	"github.com/manja7304/stock-pipeline/internal/quote"
)

// QuoteSource is the core interface a market-data provider implements.
// Each call issues exactly one request for one symbol and returns the
// normalized quote, or a *FetchError describing why it could not.
//
//go:generate mockgen -source=fetcher.go -destination=../testutil/mock_fetcher.go -package=testutil
type QuoteSource interface {
	Fetch(ctx context.Context, symbol string) (quote.Quote, error)
}
