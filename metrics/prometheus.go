// Copyright (C) 2023 Gobalsky Labs Limited
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"code.vegaprotocol.io/ondemand/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Gauge ...
	Gauge instrument = iota
	// Counter ...
	Counter
	// Histogram ...
	Histogram
)

const namespace = "ondemand"

var (
	// ErrInstrumentNotSupported signals the specified instrument is not yet supported.
	ErrInstrumentNotSupported = errors.New("instrument type unsupported")
	// ErrInstrumentTypeMismatch signal the type of the instrument is not expected.
	ErrInstrumentTypeMismatch = errors.New("instrument is not of the expected type")
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry

	submissionCounter *prometheus.CounterVec
	orderCounter      *prometheus.CounterVec
	violationCounter  *prometheus.CounterVec
	heightGauge       *prometheus.GaugeVec
	stepDuration      *prometheus.HistogramVec
)

// abstract prometheus types
type instrument int

type instrumentOpts struct {
	opts    prometheus.Opts
	buckets []float64
	vectors []string
}

type mi struct {
	gaugeV     *prometheus.GaugeVec
	counterV   *prometheus.CounterVec
	histogramV *prometheus.HistogramVec
}

// InstrumentOption - vararg for instrument options setting.
type InstrumentOption func(o *instrumentOpts)

// Vectors - configuration used to create a vector of a given interface, slice of label names.
func Vectors(labels ...string) InstrumentOption {
	return func(o *instrumentOpts) {
		o.vectors = labels
	}
}

// Help - set the help field on instrument.
func Help(help string) InstrumentOption {
	return func(o *instrumentOpts) {
		o.opts.Help = help
	}
}

// Buckets - specific to histogram type.
func Buckets(b []float64) InstrumentOption {
	return func(o *instrumentOpts) {
		o.buckets = b
	}
}

// addInstrument configures and registers a new vector instrument on the
// registry.
func addInstrument(reg *prometheus.Registry, t instrument, name string, opts ...InstrumentOption) (*mi, error) {
	var col prometheus.Collector
	ret := mi{}
	opt := instrumentOpts{
		opts: prometheus.Opts{
			Namespace: namespace,
			Name:      name,
		},
	}
	for _, o := range opts {
		o(&opt)
	}
	switch t {
	case Gauge:
		ret.gaugeV = prometheus.NewGaugeVec(prometheus.GaugeOpts(opt.opts), opt.vectors)
		col = ret.gaugeV
	case Counter:
		ret.counterV = prometheus.NewCounterVec(prometheus.CounterOpts(opt.opts), opt.vectors)
		col = ret.counterV
	case Histogram:
		ret.histogramV = prometheus.NewHistogramVec(opt.histogram(), opt.vectors)
		col = ret.histogramV
	default:
		return nil, ErrInstrumentNotSupported
	}
	if err := reg.Register(col); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (i instrumentOpts) histogram() prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Name:        i.opts.Name,
		Namespace:   i.opts.Namespace,
		Subsystem:   i.opts.Subsystem,
		ConstLabels: i.opts.ConstLabels,
		Help:        i.opts.Help,
		Buckets:     i.buckets,
	}
}

// GaugeVec returns a prometheus GaugeVec instrument.
func (m mi) GaugeVec() (*prometheus.GaugeVec, error) {
	if m.gaugeV == nil {
		return nil, ErrInstrumentTypeMismatch
	}
	return m.gaugeV, nil
}

// CounterVec returns a prometheus CounterVec instrument.
func (m mi) CounterVec() (*prometheus.CounterVec, error) {
	if m.counterV == nil {
		return nil, ErrInstrumentTypeMismatch
	}
	return m.counterV, nil
}

func (m mi) HistogramVec() (*prometheus.HistogramVec, error) {
	if m.histogramV == nil {
		return nil, ErrInstrumentTypeMismatch
	}
	return m.histogramV, nil
}

// Setup creates the instruments on a fresh registry. Until it's called,
// every recording function is a no-op.
func Setup() error {
	reg := prometheus.NewRegistry()

	h, err := addInstrument(reg, Counter, "submissions_total",
		Vectors("chain", "state"),
		Help("Number of submissions by terminal state"),
	)
	if err != nil {
		return err
	}
	sc, err := h.CounterVec()
	if err != nil {
		return err
	}

	h, err = addInstrument(reg, Counter, "orders_total",
		Vectors("chain"),
		Help("Number of on-demand orders observed"),
	)
	if err != nil {
		return err
	}
	oc, err := h.CounterVec()
	if err != nil {
		return err
	}

	h, err = addInstrument(reg, Counter, "violations_total",
		Vectors("kind"),
		Help("Number of fairness violations detected"),
	)
	if err != nil {
		return err
	}
	vc, err := h.CounterVec()
	if err != nil {
		return err
	}

	h, err = addInstrument(reg, Gauge, "height",
		Vectors("chain"),
		Help("Last observed block height"),
	)
	if err != nil {
		return err
	}
	hg, err := h.GaugeVec()
	if err != nil {
		return err
	}

	h, err = addInstrument(reg, Histogram, "step_seconds",
		Vectors("step", "status"),
		Help("Duration of the scenario steps"),
		Buckets([]float64{1, 6, 12, 30, 60, 120, 300, 600}),
	)
	if err != nil {
		return err
	}
	sd, err := h.HistogramVec()
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	registry = reg
	submissionCounter = sc
	orderCounter = oc
	violationCounter = vc
	heightGauge = hg
	stepDuration = sd
	return nil
}

// Handler returns the HTTP handler exposing the registry.
func Handler() http.Handler {
	mu.RLock()
	defer mu.RUnlock()
	if registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Start enables the metrics and serves them, according to the given
// configuration. The returned server is nil when metrics are disabled.
func Start(log *logging.Logger, conf Config) (*http.Server, error) {
	if !conf.Enabled {
		return nil, nil
	}
	if err := Setup(); err != nil {
		return nil, fmt.Errorf("could not set up metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(conf.Path, Handler())
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", conf.Port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics endpoint stopped", logging.Error(err))
		}
	}()
	log.Info("metrics endpoint started",
		logging.Int("port", conf.Port),
		logging.String("path", conf.Path),
	)
	return srv, nil
}

// SubmissionCounterInc increments the submission counter.
func SubmissionCounterInc(labelValues ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if submissionCounter == nil {
		return
	}
	submissionCounter.WithLabelValues(labelValues...).Inc()
}

// OrderCounterInc increments the order counter.
func OrderCounterInc(labelValues ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if orderCounter == nil {
		return
	}
	orderCounter.WithLabelValues(labelValues...).Inc()
}

// ViolationCounterInc increments the violation counter.
func ViolationCounterInc(labelValues ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if violationCounter == nil {
		return
	}
	violationCounter.WithLabelValues(labelValues...).Inc()
}

// HeightGaugeSet records the last height observed on a chain.
func HeightGaugeSet(height uint64, labelValues ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if heightGauge == nil {
		return
	}
	heightGauge.WithLabelValues(labelValues...).Set(float64(height))
}

// StepDurationObserve records the duration of a scenario step, in seconds.
func StepDurationObserve(seconds float64, labelValues ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if stepDuration == nil {
		return
	}
	stepDuration.WithLabelValues(labelValues...).Observe(seconds)
}
