package sfu

import (
	"encoding/binary"

	"github.com/jnoring/mediasoup/internal/log"

	"github.com/pion/rtp"
)

// rtxHeaderSize rtx负载前面的原始序号(OSN)
const rtxHeaderSize = 2

// RtxEncode 把包封装成rtx格式(RFC 4588)
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                         RTP Header                            |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|            OSN                |                               |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+                               |
//	|                  Original RTP Packet Payload                  |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//
// 时间戳和marker保持不变，负载类型和ssrc换成rtx的，序号使用rtx自己的序号空间
// 每调用一次rtx序号加一，同一个包封装两次会得到两个不同的序号
// 没有配置rtx时什么都不做，原始包按原来的序号重发
func (s *RtpStreamSend) RtxEncode(pkt *rtp.Packet) error {
	if !s.params.HasRtx() {
		return nil
	}
	if pkt.MarshalSize()+rtxHeaderSize > s.config.MTU {
		return ErrRtxPacketTooLarge
	}

	payload := make([]byte, rtxHeaderSize+len(pkt.Payload))
	binary.BigEndian.PutUint16(payload, pkt.SequenceNumber)
	copy(payload[rtxHeaderSize:], pkt.Payload)

	pkt.Payload = payload
	pkt.PayloadType = s.params.RtxPayloadType
	pkt.SSRC = s.params.RtxSSRC
	pkt.SequenceNumber = s.rtxSeq
	s.rtxSeq++
	return nil
}

// PrepareRetransmission 对候选包做rtx封装，封装失败时根据配置直接重发原始包或者丢弃
func (s *RtpStreamSend) PrepareRetransmission(c RetransmissionCandidate) (*rtp.Packet, bool) {
	if err := s.RtxEncode(c.Packet); err != nil {
		if s.config.DirectResendFallback {
			s.stats.RtxFallbacks++
			if s.metrics != nil {
				s.metrics.RtxFallbacks.Inc()
			}
			log.Debugf("rtx encode failed, resending original [seq:%d]: %v", c.Packet.SequenceNumber, err)
			return c.Packet, true
		}
		s.stats.RtxDropped++
		if s.metrics != nil {
			s.metrics.RtxDropped.Inc()
		}
		log.Debugf("rtx encode failed, dropping [seq:%d]: %v", c.Packet.SequenceNumber, err)
		return nil, false
	}
	return c.Packet, true
}
