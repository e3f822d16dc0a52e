package astieit

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors fed by the decoder pipeline and the registry
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	admissions       *prometheus.CounterVec
	anomalies        prometheus.Counter
	decodeErrors     *prometheus.CounterVec
	registrySections prometheus.Gauge
	sections         *prometheus.CounterVec
}

// NewMetrics creates the collectors. They still have to be registered.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_admissions_total",
			Help:      "Number of sections handed to the registry by result",
		}, []string{"result"}),
		anomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Number of non fatal data quality issues found while decoding",
		}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Number of discarded sections by error kind",
		}, []string{"kind"}),
		registrySections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_sections",
			Help:      "Number of sections stored in the registry",
		}),
		sections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sections_total",
			Help:      "Number of sections received by table type",
		}, []string{"table"}),
	}
}

// Register registers the collectors
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.admissions,
		m.anomalies,
		m.decodeErrors,
		m.registrySections,
		m.sections,
	} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) incSection(t TableID) {
	if m == nil {
		return
	}
	m.sections.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) incDecodeError(err error) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(errorKind(err)).Inc()
}

func (m *Metrics) addAnomalies(n int) {
	if m == nil || n == 0 {
		return
	}
	m.anomalies.Add(float64(n))
}

func (m *Metrics) incAdmission(r AdmitResult, updated bool) {
	if m == nil {
		return
	}
	l := r.String()
	if updated {
		l = "updated"
	}
	m.admissions.WithLabelValues(l).Inc()
}

func (m *Metrics) setRegistrySections(n int) {
	if m == nil {
		return
	}
	m.registrySections.Set(float64(n))
}

// errorKind maps a decode error to a bounded label value
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrCRC32Mismatch):
		return "crc32_mismatch"
	case errors.Is(err, ErrLoopLengthMismatch):
		return "loop_length_mismatch"
	case errors.Is(err, ErrMalformedDescriptor):
		return "malformed_descriptor"
	case errors.Is(err, ErrNotEITSection):
		return "not_eit"
	case errors.Is(err, ErrSectionTruncated):
		return "truncated"
	}
	return "other"
}
