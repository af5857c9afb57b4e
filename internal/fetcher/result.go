package fetcher

import (
	"errors"

	"github.com/manja7304/stock-pipeline/internal/quote"
)

// Result represents the outcome of fetching a single symbol.
type Result struct {
	// Symbol is the ticker as it was requested
	Symbol string

	// Quote is the normalized observation. Only meaningful when Err is nil.
	Quote quote.Quote

	// Err contains any error that occurred while fetching or normalizing.
	Err error
}

// ErrorType returns the FetchError category of the result, or "" on success.
func (r Result) ErrorType() ErrorType {
	if r.Err == nil {
		return ""
	}
	var fe *FetchError
	if errors.As(r.Err, &fe) {
		return fe.Type
	}
	return ErrorTypeUnknown
}
