package astieit

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegister(t *testing.T) {
	r := prometheus.NewRegistry()
	m := NewMetrics("test")
	require.NoError(t, m.Register(r))
	assert.Error(t, m.Register(r))
}

func TestMetricsNil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.incSection(TableIDEITActualPresentFollowing)
		m.incDecodeError(ErrCRC32Mismatch)
		m.addAnomalies(1)
		m.incAdmission(AdmitResultAdmitted, false)
		m.setRegistrySections(1)
	})
}

func TestMetricsRegistry(t *testing.T) {
	m := NewMetrics("test")
	r := NewEITRegistry(EITRegistryOptMetrics(m))
	r.Admit(newTestEITSection(testEITSectionKey, 1, 0))
	r.Admit(newTestEITSection(testEITSectionKey, 1, 0))
	r.Admit(newTestEITSection(testEITSectionKey, 2, 0))
	r.MergeHeader(newTestEITSection(testEITSectionKey, 3, 0).EITSectionHeader)
	k := testEITSectionKey
	k.SectionNumber = 1
	r.Admit(newTestEITSection(k, 1, 0))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.admissions.WithLabelValues("admitted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.admissions.WithLabelValues("merged")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.admissions.WithLabelValues("updated")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.registrySections))
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "crc32_mismatch", errorKind(ErrCRC32Mismatch))
	assert.Equal(t, "loop_length_mismatch", errorKind(ErrLoopLengthMismatch))
	assert.Equal(t, "malformed_descriptor", errorKind(ErrMalformedDescriptor))
	assert.Equal(t, "not_eit", errorKind(ErrNotEITSection))
	assert.Equal(t, "truncated", errorKind(fmt.Errorf("astieit: parsing failed: %w", ErrSectionTruncated)))
	assert.Equal(t, "other", errorKind(ErrNoMorePackets))
}
