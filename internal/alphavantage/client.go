package alphavantage

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"resty.dev/v3"

	"github.com/manja7304/stock-pipeline/internal/fetcher"
	"github.com/manja7304/stock-pipeline/internal/quote"
)

const (
	// DefaultBaseURL is the Alpha Vantage query endpoint
	DefaultBaseURL = "https://www.alphavantage.co/query"

	// FunctionGlobalQuote is the only provider function this client requests
	FunctionGlobalQuote = "GLOBAL_QUOTE"
)

// ErrMissingAPIKey is returned when a client is built without an API key
var ErrMissingAPIKey = errors.New("alphavantage: API key is required")

// QuoteClient fetches latest quotes from the Alpha Vantage GLOBAL_QUOTE function
type QuoteClient struct {
	apiKey  string
	baseURL string
	client  *resty.Client
	now     func() time.Time
	logger  *zap.Logger
}

// Option is a configuration option for the QuoteClient
type Option func(*QuoteClient)

// WithHTTPClient sets the resty client used for requests
func WithHTTPClient(client *resty.Client) Option {
	return func(c *QuoteClient) {
		c.client = client
	}
}

// WithBaseURL overrides the provider endpoint. Ignored when WithHTTPClient
// supplies a client, which carries its own base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *QuoteClient) {
		c.baseURL = baseURL
	}
}

// WithNow sets the time source used when a response has no trading day
func WithNow(now func() time.Time) Option {
	return func(c *QuoteClient) {
		c.now = now
	}
}

// WithLogger sets the logger for field-level parse warnings
func WithLogger(logger *zap.Logger) Option {
	return func(c *QuoteClient) {
		c.logger = logger
	}
}

// NewQuoteClient creates a new quote client. It fails before any network
// activity if apiKey is blank.
func NewQuoteClient(apiKey string, options ...Option) (*QuoteClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	c := &QuoteClient{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, option := range options {
		option(c)
	}
	if c.client == nil {
		c.client = fetcher.NewHTTPClient(fetcher.HTTPOptions{
			BaseURL: c.baseURL,
			Logger:  c.logger,
		})
	}

	return c, nil
}

// Fetch issues one GLOBAL_QUOTE request for symbol and normalizes the response
func (c *QuoteClient) Fetch(ctx context.Context, symbol string) (quote.Quote, error) {
	requestedAt := c.now()

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"apikey":   c.apiKey,
			"function": FunctionGlobalQuote,
			"symbol":   symbol,
		}).
		Get("")

	if err != nil {
		return quote.Quote{}, fetcher.ClassifyTransportError(err).WithSymbol(symbol)
	}

	if !resp.IsSuccess() {
		return quote.Quote{}, fetcher.ClassifyHTTPError(resp.StatusCode()).WithSymbol(symbol)
	}

	q, fieldErrs, err := Normalize(symbol, resp.Bytes(), requestedAt)
	if err != nil {
		return quote.Quote{}, err
	}

	for _, fe := range fieldErrs {
		c.logger.Warn("quote field stored as null",
			zap.String("symbol", symbol),
			zap.String("field", fe.Field),
			zap.String("value", fe.Value),
			zap.Error(fe.Err))
	}

	return q, nil
}

// Close releases the idle connections held by the underlying HTTP client
func (c *QuoteClient) Close() error {
	return c.client.Close()
}
