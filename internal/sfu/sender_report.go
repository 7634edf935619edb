package sfu

import (
	"github.com/jnoring/mediasoup/internal/log"

	"github.com/pion/rtcp"
)

// GetRtcpSenderReport 根据发送统计生成SR，now为Unix时间(ms)
// 只读取统计，不修改缓冲区和rtt；还没有发送过包时返回nil
func (s *RtpStreamSend) GetRtcpSenderReport(now uint64) *rtcp.SenderReport {
	if s.packetCount == 0 {
		return nil
	}

	// 用最新的rtp时间戳加上经过的时间推算出now对应的rtp时间戳
	var elapsed uint64
	if now > s.maxPacketMs {
		elapsed = now - s.maxPacketMs
	}
	rtpTime := s.maxPacketTs + uint32(elapsed*uint64(s.params.ClockRate)/1e3)

	return &rtcp.SenderReport{
		SSRC:        s.params.SSRC,
		NTPTime:     timeToNtp(now),
		RTPTime:     rtpTime,
		PacketCount: s.packetCount,
		OctetCount:  s.octetCount,
	}
}

// ReceiveRtcpReceiverReport 处理对端的RR，更新rtt并交给质量监控计算分数
func (s *RtpStreamSend) ReceiveRtcpReceiverReport(rr rtcp.ReceptionReport, now uint64) {
	s.updateRtt(rr, now)
	s.monitor.ReceiveRtcpReceiverReport(rr)
}

// updateRtt 接收到SR报文的时刻与发送该RR报文时刻的时间差值即DLSR，单位时间是1/65536秒
// rtt = now - LSR - DLSR
func (s *RtpStreamSend) updateRtt(rr rtcp.ReceptionReport, now uint64) {
	// 对端还没有收到过SR
	if rr.LastSenderReport == 0 {
		return
	}
	elapsed := compactNtp(timeToNtp(now)) - rr.LastSenderReport
	// elapsed 过大说明LSR比now还新，时钟有问题
	if elapsed < rr.Delay || elapsed >= 1<<31 {
		log.Debugf("invalid rtt sample [ssrc:%d, lsr:%d, dlsr:%d]", s.params.SSRC, rr.LastSenderReport, rr.Delay)
		return
	}
	sample := compactNtpToMs(elapsed - rr.Delay)

	if s.rtt == 0 {
		s.rtt = sample
	} else {
		s.rtt += s.config.RttSmoothing * (sample - s.rtt)
	}
	if s.metrics != nil {
		s.metrics.RTT.Observe(s.rtt)
	}
}
