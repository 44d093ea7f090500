// Package telemetry exposes the stack's operational counters and
// histograms through prometheus/client_golang, replacing the teacher's
// hand-rolled atomic-histogram Metrics type (metrics.go) with real
// Prometheus collectors while keeping its shape: per-subsystem counters
// held by one registry object. There is no NoOp type; components that
// were never given a *Registry simply record nothing.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every collector the stack registers. A fresh Registry
// uses its own prometheus.Registerer so tests can create independent
// instances without colliding on the default global registry, the way
// the teacher's NewMetrics() returns an independent instance per device.
type Registry struct {
	reg prometheus.Registerer

	FramesRX     *prometheus.CounterVec // by device, ethertype
	FramesTX     *prometheus.CounterVec
	FramesDropped *prometheus.CounterVec // by device, reason

	ARPResolutions *prometheus.CounterVec // by device, outcome (resolved/pending/failed)

	IPv4PendingQueueDepth *prometheus.GaugeVec // by device

	TCPConnections   *prometheus.GaugeVec   // by state
	TCPRetransmits   prometheus.Counter
	TCPSegmentLatency prometheus.Histogram // time from send to ACK

	ATACacheHits   prometheus.Counter
	ATACacheMisses prometheus.Counter
}

// New creates a Registry and registers all collectors against reg. Pass
// prometheus.NewRegistry() for an isolated instance (tests), or
// prometheus.DefaultRegisterer for the process-wide registry.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		reg: reg,
		FramesRX: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exos_net_frames_received_total",
			Help: "Ethernet frames received, by device and ethertype.",
		}, []string{"device", "ethertype"}),
		FramesTX: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exos_net_frames_sent_total",
			Help: "Ethernet frames transmitted, by device and ethertype.",
		}, []string{"device", "ethertype"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exos_net_frames_dropped_total",
			Help: "Ingress frames dropped, by device and reason.",
		}, []string{"device", "reason"}),
		ARPResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exos_arp_resolutions_total",
			Help: "ARP resolve() outcomes, by device and outcome.",
		}, []string{"device", "outcome"}),
		IPv4PendingQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exos_ipv4_pending_queue_depth",
			Help: "Current depth of the ARP-pending packet queue, by device.",
		}, []string{"device"}),
		TCPConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exos_tcp_connections",
			Help: "Live TCP connections, by state.",
		}, []string{"state"}),
		TCPRetransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exos_tcp_retransmits_total",
			Help: "Total segment retransmissions across all connections.",
		}),
		TCPSegmentLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "exos_tcp_segment_ack_latency_seconds",
			Help:    "Time from segment send to covering ACK.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		ATACacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exos_ata_sector_cache_hits_total",
			Help: "ATA sector cache hits.",
		}),
		ATACacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exos_ata_sector_cache_misses_total",
			Help: "ATA sector cache misses.",
		}),
	}

	for _, c := range []prometheus.Collector{
		r.FramesRX, r.FramesTX, r.FramesDropped, r.ARPResolutions,
		r.IPv4PendingQueueDepth, r.TCPConnections, r.TCPRetransmits,
		r.TCPSegmentLatency, r.ATACacheHits, r.ATACacheMisses,
	} {
		_ = reg.Register(c)
	}
	return r
}

// RecordSegmentRTT observes the latency between a segment's send
// timestamp and the ACK that covered it.
func (r *Registry) RecordSegmentRTT(sent time.Time, acked time.Time) {
	r.TCPSegmentLatency.Observe(acked.Sub(sent).Seconds())
}
