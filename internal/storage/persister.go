package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/manja7304/stock-pipeline/internal/quote"
)

// PersistError reports a batch that was not written. When it is returned,
// no row of the batch is stored.
type PersistError struct {
	Table   string
	Records int
	Err     error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %d records into %s: %v", e.Records, e.Table, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Persister appends quote batches to one table.
type Persister struct {
	db        *gorm.DB
	table     string
	batchSize int
	logger    *zap.Logger
}

// NewPersister creates a persister writing to schema.table. A batchSize of
// zero or less sends the whole batch in a single INSERT.
func NewPersister(db *gorm.DB, schema, table string, batchSize int, logger *zap.Logger) *Persister {
	if table == "" {
		table = DefaultTable
	}
	if schema != "" {
		table = schema + "." + table
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{
		db:        db,
		table:     table,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Persist writes every quote in one transaction and returns the number of
// rows written. Either all rows are committed or none are. An empty batch
// returns 0 without touching the database.
func (p *Persister) Persist(ctx context.Context, quotes []quote.Quote) (int, error) {
	if len(quotes) == 0 {
		return 0, nil
	}

	records := make([]StockRecord, 0, len(quotes))
	for i, q := range quotes {
		if err := q.Validate(); err != nil {
			return 0, &PersistError{Table: p.table, Records: len(quotes), Err: fmt.Errorf("record %d: %w", i, err)}
		}
		records = append(records, FromQuote(q))
	}

	size := p.batchSize
	if size <= 0 || size > len(records) {
		size = len(records)
	}

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(records); start += size {
			end := min(start+size, len(records))
			batch := records[start:end]
			if err := tx.Table(p.table).Create(&batch).Error; err != nil {
				return fmt.Errorf("insert rows %d-%d: %w", start, end-1, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, &PersistError{Table: p.table, Records: len(records), Err: err}
	}

	p.logger.Info("persisted quotes",
		zap.String("table", p.table),
		zap.Int("rows", len(records)))

	return len(records), nil
}
