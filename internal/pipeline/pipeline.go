package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/manja7304/stock-pipeline/internal/config"
	"github.com/manja7304/stock-pipeline/internal/coordinator"
	"github.com/manja7304/stock-pipeline/internal/quote"
)

// Stage identifies where a run stopped.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StagePersist Stage = "persist"
)

// Error is returned when a run stops before all quotes are stored.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Sink is where fetched quotes are written. It is opened per run and closed
// right after the write.
type Sink interface {
	Persist(ctx context.Context, quotes []quote.Quote) (int, error)
	Close() error
}

// Deps holds the collaborators of a run.
type Deps struct {
	Coordinator *coordinator.Coordinator
	OpenSink    func(ctx context.Context) (Sink, error)
	Logger      *zap.Logger
}

// Summary counts what a run did.
type Summary struct {
	Requested int
	Fetched   int
	Failed    int
	Written   int
}

// Run fetches every configured symbol and appends the results in one batch.
// The sink is only opened when at least one quote was fetched and ctx is
// still live.
func Run(ctx context.Context, cfg *config.Config, deps Deps) (Summary, error) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	report, err := deps.Coordinator.FetchAll(ctx, cfg.Symbols)
	summary := Summary{
		Requested: report.Requests,
		Fetched:   len(report.Quotes),
		Failed:    len(report.Failures),
	}
	if err != nil {
		return summary, &Error{Stage: StageFetch, Err: err}
	}
	// A cancellation that lands during the last request is still an aborted fetch
	if err := ctx.Err(); err != nil {
		return summary, &Error{Stage: StageFetch, Err: err}
	}

	if len(report.Failures) > 0 {
		failed := make([]string, 0, len(report.Failures))
		for _, f := range report.Failures {
			failed = append(failed, f.Symbol)
		}
		log.Warn("some symbols were not fetched", zap.Strings("symbols", failed))
	}

	if len(report.Quotes) == 0 {
		log.Info("nothing to persist", zap.Int("requested", summary.Requested))
		return summary, nil
	}

	written, err := persist(ctx, deps.OpenSink, report.Quotes, log)
	summary.Written = written
	if err != nil {
		return summary, &Error{Stage: StagePersist, Err: err}
	}

	log.Info("run complete",
		zap.Int("requested", summary.Requested),
		zap.Int("fetched", summary.Fetched),
		zap.Int("failed", summary.Failed),
		zap.Int("written", summary.Written))

	return summary, nil
}

func persist(ctx context.Context, open func(context.Context) (Sink, error), quotes []quote.Quote, log *zap.Logger) (n int, err error) {
	if open == nil {
		return 0, errors.New("no sink configured")
	}
	sink, err := open(ctx)
	if err != nil {
		return 0, fmt.Errorf("open sink: %w", err)
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			log.Warn("failed to close sink", zap.Error(cerr))
		}
	}()

	return sink.Persist(ctx, quotes)
}
