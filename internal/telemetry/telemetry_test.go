package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramesRXIncrementsByLabel(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.FramesRX.WithLabelValues("eth0", "0x0800").Inc()
	r.FramesRX.WithLabelValues("eth0", "0x0800").Inc()

	m := &dto.Metric{}
	require.NoError(t, r.FramesRX.WithLabelValues("eth0", "0x0800").Write(m))
	assert.Equal(t, float64(2), m.GetCounter().GetValue())
}

func TestIPv4PendingQueueDepthIsGauge(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.IPv4PendingQueueDepth.WithLabelValues("eth0").Set(5)
	r.IPv4PendingQueueDepth.WithLabelValues("eth0").Dec()

	m := &dto.Metric{}
	require.NoError(t, r.IPv4PendingQueueDepth.WithLabelValues("eth0").Write(m))
	assert.Equal(t, float64(4), m.GetGauge().GetValue())
}

func TestRecordSegmentRTTObservesHistogram(t *testing.T) {
	r := New(prometheus.NewRegistry())
	sent := time.Unix(0, 0)
	r.RecordSegmentRTT(sent, sent.Add(50*time.Millisecond))

	m := &dto.Metric{}
	require.NoError(t, r.TCPSegmentLatency.Write(m))
	assert.EqualValues(t, 1, m.GetHistogram().GetSampleCount())
}

func TestTwoRegistriesAreIndependent(t *testing.T) {
	a := New(prometheus.NewRegistry())
	b := New(prometheus.NewRegistry())

	a.TCPRetransmits.Inc()

	ma, mb := &dto.Metric{}, &dto.Metric{}
	require.NoError(t, a.TCPRetransmits.Write(ma))
	require.NoError(t, b.TCPRetransmits.Write(mb))
	assert.Equal(t, float64(1), ma.GetCounter().GetValue())
	assert.Equal(t, float64(0), mb.GetCounter().GetValue())
}
