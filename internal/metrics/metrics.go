package metrics

import (
	"net/http"
	"time"

	"github.com/milkywaybrain/exchangeloader/internal/exchange"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RefreshTotal counts refreshes by widget and result.
	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "exchange_refresh_total", Help: "Count of exchange widget refreshes by result"},
		[]string{"widget", "result"},
	)
	// RefreshSeconds observes how long refreshes take.
	RefreshSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "exchange_refresh_seconds", Help: "Duration of exchange widget refreshes", Buckets: prometheus.DefBuckets},
		[]string{"widget"},
	)
	// Options is the exchange count of the last successful refresh.
	Options = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "exchange_options", Help: "Exchanges offered after the last successful refresh"},
		[]string{"widget"},
	)
)

func init() {
	prometheus.MustRegister(RefreshTotal, RefreshSeconds, Options)
}

// Result labels.
const (
	ResultOK            = "ok"
	ResultTransport     = "transport"
	ResultResponse      = "response"
	ResultTargetMissing = "target_missing"
	ResultOther         = "other"
)

// Recorder records refresh outcomes of one widget.
type Recorder struct {
	widget string
}

// NewRecorder creates a Recorder for the named widget.
func NewRecorder(widget string) *Recorder {
	return &Recorder{widget: widget}
}

// ObserveRefresh counts the refresh by result and tracks the option count
// of successful ones.
func (r *Recorder) ObserveRefresh(res exchange.Result, took time.Duration) {
	RefreshTotal.WithLabelValues(r.widget, resultLabel(res.Err)).Inc()
	RefreshSeconds.WithLabelValues(r.widget).Observe(took.Seconds())
	if res.OK() {
		Options.WithLabelValues(r.widget).Set(float64(len(res.Exchanges)))
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, exchange.ErrTransport):
		return ResultTransport
	case errors.Is(err, exchange.ErrResponse):
		return ResultResponse
	case errors.Is(err, exchange.ErrTargetMissing):
		return ResultTargetMissing
	default:
		return ResultOther
	}
}

// Handler serves the registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
