package alphavantage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/manja7304/stock-pipeline/internal/fetcher"
	"github.com/manja7304/stock-pipeline/internal/quote"
)

// Keys of the GLOBAL_QUOTE payload:
//
//	{"Global Quote": {"01. symbol": "MSFT", "02. open": "402.12", ...}}
const (
	globalQuoteKey = "Global Quote"

	keyOpen             = "02. open"
	keyHigh             = "03. high"
	keyLow              = "04. low"
	keyPrice            = "05. price"
	keyVolume           = "06. volume"
	keyLatestTradingDay = "07. latest trading day"

	// Soft errors the provider reports with HTTP 200
	keyNote         = "Note"
	keyInformation  = "Information"
	keyErrorMessage = "Error Message"

	tradingDayLayout = "2006-01-02"
)

var errVolumeRange = errors.New("volume out of int64 range")

// FieldError records a quote field that was present but could not be parsed.
// The field is stored as null; the quote itself is kept.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e FieldError) Error() string {
	return fmt.Sprintf("field %q: cannot parse %q: %v", e.Field, e.Value, e.Err)
}

// Normalize converts a GLOBAL_QUOTE response body into a Quote. now is used as
// the observation time when the body carries no latest trading day.
//
// Provider-level problems (throttling notes, error messages, a missing or
// empty quote object) are returned as *fetcher.FetchError. Bad individual
// fields never fail the quote; they come back as FieldErrors.
func Normalize(symbol string, body []byte, now time.Time) (quote.Quote, []FieldError, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		fe := fetcher.NewValidationError("response is not a JSON object")
		fe.Cause = err
		return quote.Quote{}, nil, fe.WithSymbol(symbol)
	}

	if msg, ok := payload[keyNote].(string); ok {
		return quote.Quote{}, nil, throttled(symbol, msg)
	}
	if msg, ok := payload[keyInformation].(string); ok {
		return quote.Quote{}, nil, throttled(symbol, msg)
	}
	if msg, ok := payload[keyErrorMessage].(string); ok {
		return quote.Quote{}, nil, fetcher.NewClientError(0, msg).WithSymbol(symbol)
	}

	g, ok := payload[globalQuoteKey].(map[string]any)
	if !ok {
		return quote.Quote{}, nil, fetcher.NewValidationError("response has no quote object").WithSymbol(symbol)
	}
	if len(g) == 0 {
		// the provider answers unknown symbols with an empty object
		return quote.Quote{}, nil, fetcher.NewValidationError("quote object is empty").WithSymbol(symbol)
	}

	var fieldErrs []FieldError
	dec := func(key string) decimal.NullDecimal {
		raw, ok := lookup(g, key)
		if !ok {
			return decimal.NullDecimal{}
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			fieldErrs = append(fieldErrs, FieldError{Field: key, Value: raw, Err: err})
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(d)
	}

	q := quote.Quote{
		Symbol:    symbol,
		FetchedAt: now.UTC(),
		Open:      dec(keyOpen),
		High:      dec(keyHigh),
		Low:       dec(keyLow),
		Close:     dec(keyPrice),
		Raw:       json.RawMessage(append([]byte(nil), body...)),
	}

	if raw, ok := lookup(g, keyVolume); ok {
		v, err := parseVolume(raw)
		if err != nil {
			fieldErrs = append(fieldErrs, FieldError{Field: keyVolume, Value: raw, Err: err})
		} else {
			q.Volume = &v
		}
	}

	if raw, ok := lookup(g, keyLatestTradingDay); ok {
		day, err := time.ParseInLocation(tradingDayLayout, raw, time.UTC)
		if err != nil {
			fieldErrs = append(fieldErrs, FieldError{Field: keyLatestTradingDay, Value: raw, Err: err})
		} else {
			q.FetchedAt = day
		}
	}

	return q, fieldErrs, nil
}

// lookup returns the trimmed string value for key, also trying the key with
// its dots removed ("02 open"). Empty and non-string values count as absent.
func lookup(g map[string]any, key string) (string, bool) {
	for _, k := range []string{key, strings.ReplaceAll(key, ".", "")} {
		v, ok := g[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s, true
		}
	}
	return "", false
}

// parseVolume accepts integral strings and decimal strings, truncating the latter.
func parseVolume(raw string) (int64, error) {
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, err
	}
	if !d.BigInt().IsInt64() {
		return 0, errVolumeRange
	}
	return d.IntPart(), nil
}

func throttled(symbol, msg string) *fetcher.FetchError {
	fe := fetcher.NewRateLimitError(0)
	fe.Message = msg
	return fe.WithSymbol(symbol)
}
