package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sfu"

// Metrics 发送端重传相关的Prometheus指标，按照媒体类型(audio/video)区分
type Metrics struct {
	// 缓冲区
	PacketsStored   *prometheus.CounterVec
	PacketsRejected *prometheus.CounterVec

	// NACK
	NackRequested           *prometheus.CounterVec
	RetransmissionMisses    *prometheus.CounterVec
	RetransmissionThrottled *prometheus.CounterVec
	RetransmissionExpired   *prometheus.CounterVec
	PacketsRetransmitted    *prometheus.CounterVec
	PacketsRepaired         *prometheus.CounterVec

	// RTX
	RtxFallbacks *prometheus.CounterVec
	RtxDropped   *prometheus.CounterVec

	// 质量
	RTT   *prometheus.HistogramVec
	Score *prometheus.HistogramVec
}

// New 创建并注册所有指标，reg为nil时注册到prometheus.DefaultRegisterer
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	labels := []string{"kind"}

	return &Metrics{
		PacketsStored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rtx_buffer_packets_stored_total",
			Help:      "Packets stored in the retransmission buffer",
		}, labels),
		PacketsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rtx_buffer_packets_rejected_total",
			Help:      "Packets the retransmission buffer refused to store",
		}, labels),
		NackRequested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nack_requested_packets_total",
			Help:      "Sequence numbers requested through NACK feedback",
		}, labels),
		RetransmissionMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retransmission_misses_total",
			Help:      "NACKed packets no longer (or never) in the retransmission buffer",
		}, labels),
		RetransmissionThrottled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retransmission_throttled_total",
			Help:      "NACKed packets skipped because they were resent too recently",
		}, labels),
		RetransmissionExpired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retransmission_expired_total",
			Help:      "NACKed packets skipped because they are too old to be useful",
		}, labels),
		PacketsRetransmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_retransmitted_total",
			Help:      "Packets handed out for retransmission",
		}, labels),
		PacketsRepaired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_repaired_total",
			Help:      "Lost packets recovered by their first retransmission",
		}, labels),
		RtxFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rtx_fallbacks_total",
			Help:      "Retransmissions sent without RTX encapsulation",
		}, labels),
		RtxDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rtx_dropped_total",
			Help:      "Retransmission candidates dropped because RTX encoding failed",
		}, labels),
		RTT: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rtt_milliseconds",
			Help:      "Smoothed round trip time computed from receiver reports",
			Buckets:   []float64{10, 25, 50, 100, 200, 400, 800, 1600},
		}, labels),
		Score: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_score",
			Help:      "Send stream quality score changes (0-10)",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}, labels),
	}
}

// Stream 某个stream使用的指标，构造时绑定好label，热路径上不再查找
type Stream struct {
	PacketsStored           prometheus.Counter
	PacketsRejected         prometheus.Counter
	NackRequested           prometheus.Counter
	RetransmissionMisses    prometheus.Counter
	RetransmissionThrottled prometheus.Counter
	RetransmissionExpired   prometheus.Counter
	PacketsRetransmitted    prometheus.Counter
	PacketsRepaired         prometheus.Counter
	RtxFallbacks            prometheus.Counter
	RtxDropped              prometheus.Counter
	RTT                     prometheus.Observer
	Score                   prometheus.Observer
}

// ForKind 返回kind（audio/video）对应的一组指标
func (m *Metrics) ForKind(kind string) *Stream {
	return &Stream{
		PacketsStored:           m.PacketsStored.WithLabelValues(kind),
		PacketsRejected:         m.PacketsRejected.WithLabelValues(kind),
		NackRequested:           m.NackRequested.WithLabelValues(kind),
		RetransmissionMisses:    m.RetransmissionMisses.WithLabelValues(kind),
		RetransmissionThrottled: m.RetransmissionThrottled.WithLabelValues(kind),
		RetransmissionExpired:   m.RetransmissionExpired.WithLabelValues(kind),
		PacketsRetransmitted:    m.PacketsRetransmitted.WithLabelValues(kind),
		PacketsRepaired:         m.PacketsRepaired.WithLabelValues(kind),
		RtxFallbacks:            m.RtxFallbacks.WithLabelValues(kind),
		RtxDropped:              m.RtxDropped.WithLabelValues(kind),
		RTT:                     m.RTT.WithLabelValues(kind),
		Score:                   m.Score.WithLabelValues(kind),
	}
}
