package alphavantage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/manja7304/stock-pipeline/internal/fetcher"
)

var requestTime = time.Date(2024, 1, 16, 15, 30, 0, 0, time.UTC)

func newTestClient(t *testing.T, baseURL string) *QuoteClient {
	t.Helper()
	client, err := NewQuoteClient("test_key",
		WithBaseURL(baseURL),
		WithNow(func() time.Time { return requestTime }),
	)
	if err != nil {
		t.Fatalf("NewQuoteClient() returned unexpected error: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewQuoteClient(t *testing.T) {
	client, err := NewQuoteClient("test_api_key")
	if err != nil {
		t.Fatalf("NewQuoteClient() returned unexpected error: %v", err)
	}
	defer client.Close()

	if client.apiKey != "test_api_key" {
		t.Errorf("apiKey = %q, want %q", client.apiKey, "test_api_key")
	}
	if client.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q, want %q", client.baseURL, DefaultBaseURL)
	}
	if client.client == nil {
		t.Error("client is nil")
	}
}

func TestNewQuoteClient_MissingAPIKey(t *testing.T) {
	for _, key := range []string{"", "   "} {
		_, err := NewQuoteClient(key)
		if !errors.Is(err, ErrMissingAPIKey) {
			t.Errorf("NewQuoteClient(%q) error = %v, want ErrMissingAPIKey", key, err)
		}
	}
}

func TestQuoteClient_Fetch_Success(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"Global Quote": {
				"01. symbol": "AAPL",
				"02. open": "175.50",
				"03. high": "178.75",
				"04. low": "174.25",
				"05. price": "178.23",
				"06. volume": "50000000",
				"07. latest trading day": "2024-01-15",
				"08. previous close": "176.50",
				"09. change": "1.73",
				"10. change percent": "0.98%"
			}
		}`))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client := newTestClient(t, server.URL)

	q, err := client.Fetch(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Fetch() returned unexpected error: %v", err)
	}

	if q.Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want AAPL", q.Symbol)
	}
	if got := q.Close.Decimal.String(); !q.Close.Valid || got != "178.23" {
		t.Errorf("Close = %v (valid=%v), want 178.23", got, q.Close.Valid)
	}
	if got := q.Open.Decimal.String(); got != "175.5" {
		t.Errorf("Open = %q, want 175.5", got)
	}
	if q.Volume == nil || *q.Volume != 50000000 {
		t.Errorf("Volume = %v, want 50000000", q.Volume)
	}
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if !q.FetchedAt.Equal(want) {
		t.Errorf("FetchedAt = %v, want %v", q.FetchedAt, want)
	}
	if len(q.Raw) == 0 {
		t.Error("Raw is empty")
	}
}

func TestQuoteClient_Fetch_VerifyQueryParams(t *testing.T) {
	apiKey := "test_api_key_123"
	ticker := "GOOGL"

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		// Verify all query parameters
		if got := r.URL.Query().Get("apikey"); got != apiKey {
			t.Errorf("apikey = %q, want %q", got, apiKey)
		}
		if got := r.URL.Query().Get("function"); got != "GLOBAL_QUOTE" {
			t.Errorf("function = %q, want GLOBAL_QUOTE", got)
		}
		if got := r.URL.Query().Get("symbol"); got != ticker {
			t.Errorf("symbol = %q, want %q", got, ticker)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"Global Quote": {
				"01. symbol": "GOOGL",
				"05. price": "142.56"
			}
		}`))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client, err := NewQuoteClient(apiKey, WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewQuoteClient() returned unexpected error: %v", err)
	}
	defer client.Close()

	if _, err := client.Fetch(context.Background(), ticker); err != nil {
		t.Fatalf("Fetch() returned unexpected error: %v", err)
	}
}

func TestQuoteClient_Fetch_HTTPError(t *testing.T) {
	tests := []struct {
		status   int
		wantType fetcher.ErrorType
	}{
		{http.StatusInternalServerError, fetcher.ErrorTypeServer},
		{http.StatusTooManyRequests, fetcher.ErrorTypeRateLimit},
		{http.StatusForbidden, fetcher.ErrorTypeClient},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)

			_, err := client.Fetch(context.Background(), "AAPL")
			var fe *fetcher.FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("Fetch() error = %v, want *fetcher.FetchError", err)
			}
			if fe.Type != tt.wantType {
				t.Errorf("error type = %q, want %q", fe.Type, tt.wantType)
			}
			if fe.Symbol != "AAPL" {
				t.Errorf("error symbol = %q, want AAPL", fe.Symbol)
			}
		})
	}
}

func TestQuoteClient_Fetch_RateLimitResponse(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."
		}`))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.Fetch(context.Background(), "AAPL")
	var fe *fetcher.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Fetch() error = %v, want *fetcher.FetchError", err)
	}
	if fe.Type != fetcher.ErrorTypeRateLimit {
		t.Errorf("error type = %q, want %q", fe.Type, fetcher.ErrorTypeRateLimit)
	}
}

func TestQuoteClient_Fetch_EmptyResponse(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client := newTestClient(t, server.URL)

	if _, err := client.Fetch(context.Background(), "AAPL"); err == nil {
		t.Error("Fetch() expected error for empty response, got nil")
	}
}

func TestQuoteClient_Fetch_ContextCancellation(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Server will be slow to respond
		<-r.Context().Done()
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client := newTestClient(t, server.URL)

	// Create a context that is already cancelled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Fetch(ctx, "AAPL"); err == nil {
		t.Error("Fetch() expected error for cancelled context, got nil")
	}
}

func TestQuoteClient_Fetch_RequestTimeout(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	httpClient := fetcher.NewHTTPClient(fetcher.HTTPOptions{
		BaseURL: server.URL,
		Timeout: 50 * time.Millisecond,
	})
	client, err := NewQuoteClient("test_key", WithHTTPClient(httpClient))
	if err != nil {
		t.Fatalf("NewQuoteClient() returned unexpected error: %v", err)
	}
	defer client.Close()

	_, err = client.Fetch(context.Background(), "AAPL")
	var fe *fetcher.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Fetch() error = %v, want *fetcher.FetchError", err)
	}
	if fe.Type != fetcher.ErrorTypeTimeout {
		t.Errorf("error type = %q, want %q", fe.Type, fetcher.ErrorTypeTimeout)
	}
}
