package exchange

import (
	"context"
	"time"

	"github.com/milkywaybrain/exchangeloader/internal/config"
	"github.com/milkywaybrain/exchangeloader/internal/selection"
	"github.com/milkywaybrain/exchangeloader/internal/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Observer is notified of every refresh outcome.
type Observer interface {
	ObserveRefresh(res Result, took time.Duration)
}

// Loader refreshes the exchange selection widget of a document from a Source.
type Loader struct {
	source      Source
	doc         selection.Locator
	widget      string
	placeholder string
	store       storage.Store
	observer    Observer
	logger      zerolog.Logger
	now         func() time.Time
}

// NewLoader creates a Loader for the configured widget.
// store receives a snapshot after every rebuild and may be nil.
func NewLoader(cfg *config.Widget, source Source, doc selection.Locator, store storage.Store, logger zerolog.Logger) *Loader {
	return &Loader{
		source:      source,
		doc:         doc,
		widget:      cfg.Name,
		placeholder: cfg.Placeholder,
		store:       store,
		logger:      logger,
		now:         time.Now,
	}
}

// SetObserver sets the observer of refresh outcomes.
func (l *Loader) SetObserver(o Observer) {
	l.observer = o
}

// Fetch returns the current exchange list without touching the widget.
func (l *Loader) Fetch(ctx context.Context) (List, error) {
	return l.source.Fetch(ctx)
}

// Refresh locates the widget, fetches the exchange list and replaces the
// widget options with the placeholder followed by one option per exchange.
// On any failure the widget keeps its options and the failure is logged
// once and returned in the Result.
func (l *Loader) Refresh(ctx context.Context) Result {
	if l.observer == nil {
		return l.refresh(ctx)
	}
	start := time.Now()
	res := l.refresh(ctx)
	l.observer.ObserveRefresh(res, time.Since(start))
	return res
}

func (l *Loader) refresh(ctx context.Context) Result {
	target, ok := l.doc.Lookup(l.widget)
	if !ok {
		err := errors.WithStack(ErrTargetMissing)
		l.logErr(ctx, err)
		return Result{Err: err}
	}

	list, err := l.source.Fetch(ctx)
	if err != nil {
		l.logErr(ctx, err)
		return Result{Err: err}
	}

	target.Replace(selection.BuildOptions(l.placeholder, list))
	l.logger.Debug().Str("widget", l.widget).Int("count", len(list)).Msg("exchanges loaded")

	if l.store != nil {
		snap := storage.Snapshot{
			Widget:    l.widget,
			Exchanges: list,
			Timestamp: l.now().UTC(),
		}
		if err := l.store.CommitSnapshot(ctx, snap); err != nil {
			l.logger.Error().Stack().Err(errors.WithStack(err)).Str("widget", l.widget).Msg("error storing exchange options")
		}
	}
	return Result{Exchanges: list}
}

// RefreshAsync runs Refresh on its own goroutine.
// The returned channel receives exactly one Result.
func (l *Loader) RefreshAsync(ctx context.Context) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		out <- l.Refresh(ctx)
	}()
	return out
}

// Run refreshes once immediately and then in every interval till the
// context is done. Zero interval refreshes only once and returns nil.
func (l *Loader) Run(ctx context.Context, interval time.Duration) error {
	l.Refresh(ctx)
	if interval <= 0 {
		return nil
	}

	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			l.Refresh(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// logErr logs a refresh failure. Failures caused by the caller
// canceling the context are logged at debug level.
func (l *Loader) logErr(ctx context.Context, err error) {
	ev := l.logger.Error()
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		ev = l.logger.Debug()
	}
	ev.Stack().Err(err).Str("widget", l.widget).Msg("error loading exchanges")
}
