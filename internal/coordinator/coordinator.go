package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/manja7304/stock-pipeline/internal/fetcher"
	"github.com/manja7304/stock-pipeline/internal/quote"
	"github.com/manja7304/stock-pipeline/internal/ratelimit"
)

var (
	// ErrNoSymbols is returned when FetchAll is given nothing to fetch
	ErrNoSymbols = errors.New("no symbols configured")
	// ErrEmptySymbol is returned when a symbol is blank after trimming
	ErrEmptySymbol = errors.New("symbol is empty")
)

// Report is the outcome of one FetchAll run
type Report struct {
	// Quotes holds successfully fetched quotes in input order
	Quotes []quote.Quote
	// Failures holds one entry per symbol that could not be fetched
	Failures []fetcher.Result
	// Requests is the number of provider requests issued
	Requests int
}

// Coordinator fetches symbols one at a time, pacing requests to stay within
// provider throttling limits
type Coordinator struct {
	source   fetcher.QuoteSource
	pacer    *ratelimit.Pacer
	logger   *zap.Logger
	failFast bool
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithFailFast stops the run at the first symbol that fails instead of
// skipping it
func WithFailFast(failFast bool) Option {
	return func(c *Coordinator) {
		c.failFast = failFast
	}
}

// New creates a new Coordinator
func New(source fetcher.QuoteSource, pacer *ratelimit.Pacer, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		source: source,
		pacer:  pacer,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAll fetches every symbol in order. Duplicates are fetched
// independently. A failed symbol is recorded in Report.Failures and the run
// moves on, unless fail-fast is enabled, in which case the first failure is
// returned as the error. Invalid input is rejected before any request.
func (c *Coordinator) FetchAll(ctx context.Context, symbols []string) (Report, error) {
	normalized, err := NormalizeSymbols(symbols)
	if err != nil {
		return Report{}, err
	}

	report := Report{Quotes: make([]quote.Quote, 0, len(normalized))}

	for _, symbol := range normalized {
		if err := c.pacer.Wait(ctx); err != nil {
			return report, fmt.Errorf("waiting to fetch %s: %w", symbol, err)
		}

		report.Requests++
		q, err := c.source.Fetch(ctx, symbol)
		if err == nil {
			err = q.Validate()
		}
		if err != nil {
			result := fetcher.Result{Symbol: symbol, Err: err}
			report.Failures = append(report.Failures, result)

			c.logger.Warn("failed to fetch quote",
				zap.String("symbol", symbol),
				zap.String("error_type", string(result.ErrorType())),
				zap.Error(err))

			if c.failFast {
				return report, fmt.Errorf("fetch %s: %w", symbol, err)
			}
			continue
		}

		c.logger.Debug("fetched quote",
			zap.String("symbol", symbol),
			zap.Time("fetched_at", q.FetchedAt))
		report.Quotes = append(report.Quotes, q)
	}

	c.logger.Debug("fetch complete",
		zap.Int("requests", report.Requests),
		zap.Int("paced_total", c.pacer.Calls()),
		zap.Int("fetched", len(report.Quotes)),
		zap.Int("failed", len(report.Failures)))

	return report, nil
}

// NormalizeSymbols trims and upper-cases symbols, keeping order and
// duplicates. It fails if the list is empty or any entry is blank.
func NormalizeSymbols(symbols []string) ([]string, error) {
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}

	out := make([]string, 0, len(symbols))
	for i, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			return nil, fmt.Errorf("symbol at position %d: %w", i, ErrEmptySymbol)
		}
		out = append(out, s)
	}
	return out, nil
}
