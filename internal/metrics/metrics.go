package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ActiveDialogsProvider exposes the number of MAP dialogs in flight.
type ActiveDialogsProvider interface {
	ActiveDialogCount() int
}

// DeferredRegistrationsProvider exposes the number of registered deferred
// location callbacks.
type DeferredRegistrationsProvider interface {
	Size() int
}

// CDRClassCounter returns stored CDR counts grouped by result class.
type CDRClassCounter interface {
	CountByClass(ctx context.Context) (map[string]int64, error)
}

// Collector is a prometheus.Collector that gathers GMLC metrics at scrape time.
type Collector struct {
	dialogs   ActiveDialogsProvider
	deferred  DeferredRegistrationsProvider
	cdrs      CDRClassCounter
	startTime time.Time

	// Metric descriptors.
	activeDialogsDesc *prometheus.Desc
	deferredDesc      *prometheus.Desc
	requestsTotalDesc *prometheus.Desc
	uptimeDesc        *prometheus.Desc
}

// NewCollector creates a new metrics collector. Any provider may be nil if unavailable.
func NewCollector(
	dialogs ActiveDialogsProvider,
	deferred DeferredRegistrationsProvider,
	cdrs CDRClassCounter,
	startTime time.Time,
) *Collector {
	return &Collector{
		dialogs:   dialogs,
		deferred:  deferred,
		cdrs:      cdrs,
		startTime: startTime,

		activeDialogsDesc: prometheus.NewDesc(
			"gmlc_active_dialogs",
			"Number of MAP dialogs currently awaiting a response",
			nil, nil,
		),
		deferredDesc: prometheus.NewDesc(
			"gmlc_deferred_registrations",
			"Number of registered deferred location report callbacks",
			nil, nil,
		),
		requestsTotalDesc: prometheus.NewDesc(
			"gmlc_location_requests_total",
			"Total location requests processed (from CDR store)",
			[]string{"class"}, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"gmlc_uptime_seconds",
			"Seconds since the GMLC process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeDialogsDesc
	ch <- c.deferredDesc
	ch <- c.requestsTotalDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.dialogs != nil {
		ch <- prometheus.MustNewConstMetric(
			c.activeDialogsDesc, prometheus.GaugeValue,
			float64(c.dialogs.ActiveDialogCount()),
		)
	}

	if c.deferred != nil {
		ch <- prometheus.MustNewConstMetric(
			c.deferredDesc, prometheus.GaugeValue,
			float64(c.deferred.Size()),
		)
	}

	if c.cdrs != nil {
		counts, err := c.cdrs.CountByClass(ctx)
		if err != nil {
			slog.Error("metrics: failed to count cdrs by class", "error", err)
		} else {
			for class, n := range counts {
				ch <- prometheus.MustNewConstMetric(
					c.requestsTotalDesc, prometheus.CounterValue,
					float64(n), class,
				)
			}
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
