package storage

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/manja7304/stock-pipeline/internal/quote"
)

// DefaultTable is the table quotes are appended to unless configured otherwise.
const DefaultTable = "stocks"

// StockRecord is one stored quote observation. Rows are only ever appended.
type StockRecord struct {
	ID int64 `gorm:"primaryKey;autoIncrement"`

	Symbol    string    `gorm:"type:text;not null"`
	FetchedAt time.Time `gorm:"type:timestamptz;not null"`

	Open  decimal.NullDecimal `gorm:"type:numeric"`
	High  decimal.NullDecimal `gorm:"type:numeric"`
	Low   decimal.NullDecimal `gorm:"type:numeric"`
	Close decimal.NullDecimal `gorm:"type:numeric"`

	Volume *int64 `gorm:"type:bigint"`

	// Raw is the provider response body as received
	Raw datatypes.JSON `gorm:"type:jsonb;not null"`

	// set by the database on insert
	CreatedAt time.Time `gorm:"->;type:timestamptz"`
}

// TableName overrides the default table name for GORM.
func (StockRecord) TableName() string {
	return DefaultTable
}

// FromQuote converts a normalized quote into a row for insertion.
func FromQuote(q quote.Quote) StockRecord {
	raw := datatypes.JSON(append([]byte(nil), q.Raw...))
	if len(raw) == 0 {
		raw = datatypes.JSON("{}")
	}

	return StockRecord{
		Symbol:    q.Symbol,
		FetchedAt: q.FetchedAt.UTC(),
		Open:      q.Open,
		High:      q.High,
		Low:       q.Low,
		Close:     q.Close,
		Volume:    q.Volume,
		Raw:       raw,
	}
}
