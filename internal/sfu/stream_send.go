package sfu

import (
	"errors"
	"fmt"

	"github.com/jnoring/mediasoup/internal/buffer"
	"github.com/jnoring/mediasoup/internal/log"
	"github.com/jnoring/mediasoup/internal/metrics"

	"github.com/lucsky/cuid"
	"github.com/pion/randutil"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// SendStreamListener 监听发送流的分数变化
type SendStreamListener interface {
	OnRtpStreamSendScore(stream *RtpStreamSend, score uint8)
}

// SendStreamListenerFunc 把函数适配成SendStreamListener
type SendStreamListenerFunc func(stream *RtpStreamSend, score uint8)

func (f SendStreamListenerFunc) OnRtpStreamSendScore(stream *RtpStreamSend, score uint8) {
	f(stream, score)
}

// RandomSource 安全随机数来源，用于生成rtx的初始序号
type RandomSource func() (uint64, error)

// Option 构造RtpStreamSend时的可选项
type Option func(*RtpStreamSend)

// WithRandomSource 替换默认的随机数来源(crypto/rand)
func WithRandomSource(r RandomSource) Option {
	return func(s *RtpStreamSend) {
		s.random = r
	}
}

// WithMetrics 把统计同步到prometheus
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *RtpStreamSend) {
		if m != nil {
			s.metrics = m.ForKind(s.params.Kind().String())
		}
	}
}

// WithMonitor 替换默认的质量监控
func WithMonitor(newMonitor func(MonitorListener) Monitor) Option {
	return func(s *RtpStreamSend) {
		s.newMonitor = newMonitor
	}
}

// Stats 发送流的统计，热路径上的失败都只计数，不返回错误
type Stats struct {
	PacketsSent uint64
	OctetsSent  uint64

	PacketsStored   uint64
	PacketsRejected uint64

	NackRequested           uint64
	RetransmissionMisses    uint64
	RetransmissionThrottled uint64
	RetransmissionExpired   uint64
	PacketsRetransmitted    uint64
	PacketsRepaired         uint64

	RtxFallbacks uint64
	RtxDropped   uint64

	RTT   float64
	Score uint8
}

// RtpStreamSend 发送给某个consumer的rtp流，负责缓存发送过的包，响应nack重传，生成SR
// 非并发安全：存包、nack、rtx、SR都必须在同一个goroutine中调用
type RtpStreamSend struct {
	id       string
	params   Params
	config   Config
	listener SendStreamListener

	random     RandomSource
	newMonitor func(MonitorListener) Monitor
	monitor    Monitor
	metrics    *metrics.Stream

	// buffer 对端不支持nack或者bufferSize为0时为nil
	buffer *buffer.RetransmissionBuffer
	nack   *nackResolver

	rtt       float64
	rtxSeq    uint16
	lastScore uint8

	// SR 需要的发送统计
	started     bool
	packetCount uint32
	octetCount  uint32
	maxPacketTs uint32
	maxPacketMs uint64

	stats Stats
}

// NewRtpStreamSend 创建发送流
func NewRtpStreamSend(listener SendStreamListener, params Params, config Config, opts ...Option) (*RtpStreamSend, error) {
	if listener == nil {
		return nil, errNoListener
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &RtpStreamSend{
		id:         cuid.New(),
		params:     params,
		config:     config,
		listener:   listener,
		random:     randutil.CryptoUint64,
		newMonitor: func(l MonitorListener) Monitor { return NewRtpMonitor(l) },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.monitor = s.newMonitor(s)

	if params.UseNack && config.BufferSize > 0 {
		b, err := buffer.NewRetransmissionBuffer(config.BufferSize, config.MTU)
		if err != nil {
			return nil, fmt.Errorf("create retransmission buffer: %w", err)
		}
		s.buffer = b
		s.nack = newNackResolver(b, config)
	}

	if params.HasRtx() {
		if err := s.seedRtxSeq(); err != nil {
			return nil, err
		}
	}

	log.Debugf("NewRtpStreamSend id=%s ssrc=%d mime=%s bufferSize=%d rtx=%v",
		s.id, params.SSRC, params.MimeType, s.bufferSize(), params.HasRtx())
	return s, nil
}

func (s *RtpStreamSend) ID() string {
	return s.id
}

func (s *RtpStreamSend) SSRC() uint32 {
	return s.params.SSRC
}

func (s *RtpStreamSend) Params() Params {
	return s.params
}

// RTT 平滑后的往返时延(ms)，还没有收到有效的RR时为0
func (s *RtpStreamSend) RTT() float64 {
	return s.rtt
}

// Score 最近一次通知给listener的分数
func (s *RtpStreamSend) Score() uint8 {
	return s.lastScore
}

func (s *RtpStreamSend) Stats() Stats {
	st := s.stats
	st.RTT = s.rtt
	st.Score = s.lastScore
	return st
}

// SetRtx 重新设置rtx的负载类型和ssrc，同时重新生成随机的初始序号
func (s *RtpStreamSend) SetRtx(payloadType uint8, ssrc uint32) error {
	s.params.RtxPayloadType = payloadType
	s.params.RtxSSRC = ssrc
	if !s.params.HasRtx() {
		return nil
	}
	return s.seedRtxSeq()
}

func (s *RtpStreamSend) seedRtxSeq() error {
	v, err := s.random()
	if err != nil {
		return fmt.Errorf("seed rtx sequence number: %w", err)
	}
	s.rtxSeq = uint16(v)
	return nil
}

// ReceivePacket 记录一个即将发送的包，now为Unix时间(ms)
func (s *RtpStreamSend) ReceivePacket(pkt *rtp.Packet, now uint64) bool {
	s.packetCount++
	s.octetCount += uint32(len(pkt.Payload))
	s.stats.PacketsSent++
	s.stats.OctetsSent += uint64(len(pkt.Payload))

	if !s.started || buffer.IsLaterTimestamp(pkt.Timestamp, s.maxPacketTs) {
		s.started = true
		s.maxPacketTs = pkt.Timestamp
		s.maxPacketMs = now
	}

	if s.buffer != nil {
		s.storePacket(pkt, now)
	}
	return true
}

func (s *RtpStreamSend) storePacket(pkt *rtp.Packet, now uint64) {
	if err := s.buffer.Store(pkt, now); err != nil {
		s.stats.PacketsRejected++
		if s.metrics != nil {
			s.metrics.PacketsRejected.Inc()
		}
		if errors.Is(err, buffer.ErrPacketTooLarge) {
			log.Warnf("packet too big to be stored [ssrc:%d, seq:%d, size:%d]",
				pkt.SSRC, pkt.SequenceNumber, pkt.MarshalSize())
		} else {
			log.Debugf("packet not stored [ssrc:%d, seq:%d]: %v", pkt.SSRC, pkt.SequenceNumber, err)
		}
		return
	}
	s.stats.PacketsStored++
	if s.metrics != nil {
		s.metrics.PacketsStored.Inc()
	}
}

// ClearRetransmissionBuffer 丢弃所有缓存的包，用于stream重置、暂停或者重协商
func (s *RtpStreamSend) ClearRetransmissionBuffer() {
	if s.buffer == nil {
		return
	}
	s.buffer.Clear()
}

// RetransmissionBuffer 返回重传缓冲区，没有开启nack时为nil
func (s *RtpStreamSend) RetransmissionBuffer() *buffer.RetransmissionBuffer {
	return s.buffer
}

// SourceDescriptionChunks 生成SDES中的CNAME
func (s *RtpStreamSend) SourceDescriptionChunks() []rtcp.SourceDescriptionChunk {
	if s.params.Cname == "" {
		return nil
	}
	return []rtcp.SourceDescriptionChunk{
		{
			Source: s.params.SSRC,
			Items: []rtcp.SourceDescriptionItem{{
				Type: rtcp.SDESCNAME,
				Text: s.params.Cname,
			}},
		},
	}
}

func (s *RtpStreamSend) bufferSize() int {
	if s.buffer == nil {
		return 0
	}
	return s.buffer.Cap()
}
