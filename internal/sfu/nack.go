package sfu

import (
	"math"

	"github.com/jnoring/mediasoup/internal/buffer"
	"github.com/jnoring/mediasoup/internal/log"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// maxRequestedPackets 一个NackPair最多请求17个包：PacketID 加上16位的BLP
const maxRequestedPackets = 17

// RetransmissionCandidate 需要重传的包
type RetransmissionCandidate struct {
	// Packet 从缓冲区中复制出来的原始包(rtx封装之前)
	Packet *rtp.Packet
	// Resends 包括这一次在内的重传次数，为1时表示第一次重传
	Resends uint8
}

type nackResult int

const (
	nackResend nackResult = iota
	nackMiss
	nackThrottled
	nackExpired
)

// nackResolver 把nack请求转换成需要重传的包，只挑选，不负责发送
type nackResolver struct {
	buffer      *buffer.RetransmissionBuffer
	minInterval float64
	maxAge      uint64
}

func newNackResolver(b *buffer.RetransmissionBuffer, c Config) *nackResolver {
	return &nackResolver{
		buffer:      b,
		minInterval: float64(c.MinResendInterval),
		maxAge:      uint64(c.MaxRetransmissionAge),
	}
}

// resolve 处理单个序号
func (n *nackResolver) resolve(sn uint16, now uint64, rtt float64) (RetransmissionCandidate, nackResult) {
	e, ok := n.buffer.Find(sn)
	if !ok {
		return RetransmissionCandidate{}, nackMiss
	}
	if n.maxAge > 0 && now > e.StoredAt && now-e.StoredAt > n.maxAge {
		return RetransmissionCandidate{}, nackExpired
	}
	// 如果没有重传过，或者距离上次重传的时间不小于 max(rtt, minInterval)，才会重传
	if e.Resends > 0 {
		var elapsed float64
		if now > e.LastResend {
			elapsed = float64(now - e.LastResend)
		}
		if elapsed < math.Max(rtt, n.minInterval) {
			return RetransmissionCandidate{}, nackThrottled
		}
	}
	pkt, err := n.buffer.Packet(e)
	if err != nil {
		log.Debugf("stored packet unreadable [seq:%d]: %v", sn, err)
		return RetransmissionCandidate{}, nackMiss
	}
	e, _ = n.buffer.MarkResent(sn, now)
	return RetransmissionCandidate{Packet: pkt, Resends: e.Resends}, nackResend
}

// RequestRtpRetransmission 处理一个NackPair，seq是第一个丢失的包，bitmask的第i位表示seq+i+1也丢失了
// 需要重传的包按照序号升序追加到out后返回
func (s *RtpStreamSend) RequestRtpRetransmission(seq, bitmask uint16, now uint64, out []RetransmissionCandidate) []RetransmissionCandidate {
	if s.nack == nil {
		return out
	}

	for i := 0; i < maxRequestedPackets; i++ {
		// 第0个是PacketID本身，后面16个由BLP表示
		if i > 0 && bitmask&(1<<(i-1)) == 0 {
			continue
		}
		sn := seq + uint16(i)
		s.stats.NackRequested++
		if s.metrics != nil {
			s.metrics.NackRequested.Inc()
		}

		c, res := s.nack.resolve(sn, now, s.rtt)
		switch res {
		case nackResend:
			out = append(out, c)
		case nackMiss:
			s.stats.RetransmissionMisses++
			if s.metrics != nil {
				s.metrics.RetransmissionMisses.Inc()
			}
		case nackThrottled:
			s.stats.RetransmissionThrottled++
			if s.metrics != nil {
				s.metrics.RetransmissionThrottled.Inc()
			}
		case nackExpired:
			s.stats.RetransmissionExpired++
			if s.metrics != nil {
				s.metrics.RetransmissionExpired.Inc()
			}
		}
	}
	return out
}

// ReceiveNack 处理一个NACK报文的所有NackPair
func (s *RtpStreamSend) ReceiveNack(nack *rtcp.TransportLayerNack, now uint64, out []RetransmissionCandidate) []RetransmissionCandidate {
	for _, pair := range nack.Nacks {
		out = s.RequestRtpRetransmission(pair.PacketID, uint16(pair.LostPackets), now, out)
	}
	return out
}

// RtpPacketRetransmitted 记录一次重传
func (s *RtpStreamSend) RtpPacketRetransmitted(pkt *rtp.Packet) {
	s.stats.PacketsRetransmitted++
	if s.metrics != nil {
		s.metrics.PacketsRetransmitted.Inc()
	}
}
