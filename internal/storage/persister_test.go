package storage_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manja7304/stock-pipeline/internal/quote"
	"github.com/manja7304/stock-pipeline/internal/storage"
	"github.com/manja7304/stock-pipeline/internal/testutil"
)

var tradingDay = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func newQuote(symbol string, close string) quote.Quote {
	volume := int64(50000000)
	q := quote.Quote{
		Symbol:    symbol,
		FetchedAt: tradingDay,
		Open:      decimal.NewNullDecimal(decimal.RequireFromString("175.5")),
		Volume:    &volume,
		Raw:       []byte(fmt.Sprintf(`{"Global Quote":{"01. symbol":%q,"05. price":%q}}`, symbol, close)),
	}
	if d, err := decimal.NewFromString(close); err == nil {
		q.Close = decimal.NewNullDecimal(d)
	}
	return q
}

func TestPersist_WritesEveryRecord(t *testing.T) {
	client := testutil.NewSQLiteClient(t)
	p := storage.NewPersister(client.DB, testutil.SQLiteSchema, storage.DefaultTable, 0, nil)

	quotes := []quote.Quote{
		newQuote("AAPL", "178.23"),
		newQuote("MSFT", "404.87"),
		newQuote("AAPL", "178.23"),
	}

	n, err := p.Persist(context.Background(), quotes)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.EqualValues(t, 3, testutil.CountRows(t, client))

	var rows []storage.StockRecord
	require.NoError(t, client.DB.Table("main.stocks").Order("id").Find(&rows).Error)
	require.Len(t, rows, 3)

	assert.Equal(t, "AAPL", rows[0].Symbol)
	assert.True(t, rows[0].FetchedAt.Equal(tradingDay))
	assert.True(t, rows[1].Close.Valid)
	assert.True(t, rows[1].Close.Decimal.Equal(decimal.RequireFromString("404.87")))
	assert.False(t, rows[0].High.Valid, "absent field should be stored as NULL")
	require.NotNil(t, rows[2].Volume)
	assert.EqualValues(t, 50000000, *rows[2].Volume)
	assert.JSONEq(t, string(quotes[1].Raw), string(rows[1].Raw))
	assert.False(t, rows[0].CreatedAt.IsZero(), "created_at should come from the database default")
}

func TestPersist_NullClose(t *testing.T) {
	client := testutil.NewSQLiteClient(t)
	p := storage.NewPersister(client.DB, testutil.SQLiteSchema, "", 0, nil)

	q := newQuote("IBM", "N/A")
	require.False(t, q.Close.Valid)

	_, err := p.Persist(context.Background(), []quote.Quote{q})
	require.NoError(t, err)

	var row storage.StockRecord
	require.NoError(t, client.DB.Table("main.stocks").First(&row).Error)
	assert.False(t, row.Close.Valid)
	assert.Contains(t, string(row.Raw), "N/A")
}

func TestPersist_AppendsOnRepeatedRuns(t *testing.T) {
	client := testutil.NewSQLiteClient(t)
	p := storage.NewPersister(client.DB, testutil.SQLiteSchema, storage.DefaultTable, 0, nil)

	quotes := []quote.Quote{newQuote("AAPL", "1"), newQuote("MSFT", "2")}

	for i := 0; i < 2; i++ {
		n, err := p.Persist(context.Background(), quotes)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}
	assert.EqualValues(t, 4, testutil.CountRows(t, client))
}

func TestPersist_AllOrNothing(t *testing.T) {
	for _, batchSize := range []int{0, 2} {
		t.Run(fmt.Sprintf("batch size %d", batchSize), func(t *testing.T) {
			client := testutil.NewSQLiteClient(t)
			p := storage.NewPersister(client.DB, testutil.SQLiteSchema, storage.DefaultTable, batchSize, nil)

			// the third symbol violates the table's length check
			quotes := []quote.Quote{
				newQuote("AAPL", "1"),
				newQuote("MSFT", "2"),
				newQuote("TOOLONG", "3"),
				newQuote("IBM", "4"),
				newQuote("NVDA", "5"),
			}

			n, err := p.Persist(context.Background(), quotes)
			require.Error(t, err)
			assert.Zero(t, n)

			var perr *storage.PersistError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, 5, perr.Records)
			assert.Equal(t, "main.stocks", perr.Table)

			assert.EqualValues(t, 0, testutil.CountRows(t, client))
		})
	}
}

func TestPersist_Batches(t *testing.T) {
	client := testutil.NewSQLiteClient(t)
	p := storage.NewPersister(client.DB, testutil.SQLiteSchema, storage.DefaultTable, 2, nil)

	quotes := []quote.Quote{
		newQuote("A", "1"), newQuote("B", "2"), newQuote("C", "3"), newQuote("D", "4"), newQuote("E", "5"),
	}

	n, err := p.Persist(context.Background(), quotes)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.EqualValues(t, 5, testutil.CountRows(t, client))
}

func TestPersist_EmptyBatchSkipsDatabase(t *testing.T) {
	// a nil handle would panic if touched
	p := storage.NewPersister(nil, "public", "stocks", 0, nil)

	n, err := p.Persist(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = p.Persist(context.Background(), []quote.Quote{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPersist_InvalidQuoteRejectedBeforeInsert(t *testing.T) {
	client := testutil.NewSQLiteClient(t)
	p := storage.NewPersister(client.DB, testutil.SQLiteSchema, storage.DefaultTable, 0, nil)

	quotes := []quote.Quote{newQuote("AAPL", "1"), {Symbol: "MSFT"}}

	_, err := p.Persist(context.Background(), quotes)
	var perr *storage.PersistError
	require.ErrorAs(t, err, &perr)
	assert.EqualValues(t, 0, testutil.CountRows(t, client))
}

func TestPersist_CancelledContext(t *testing.T) {
	client := testutil.NewSQLiteClient(t)
	p := storage.NewPersister(client.DB, testutil.SQLiteSchema, storage.DefaultTable, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Persist(ctx, []quote.Quote{newQuote("AAPL", "1")})
	require.Error(t, err)
	assert.EqualValues(t, 0, testutil.CountRows(t, client))
}

func TestStore_PersistAndClose(t *testing.T) {
	client := testutil.NewSQLiteClient(t)
	store := storage.NewStore(client, testutil.SQLiteSchema, storage.DefaultTable, 0, nil)

	n, err := store.Persist(context.Background(), []quote.Quote{newQuote("AAPL", "1")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, client.Ping(context.Background()))
	require.NoError(t, store.Close())
	assert.Error(t, client.Ping(context.Background()))
}
