package sfu

import (
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// MonitorListener 质量监控计算出分数后通知的对象，RtpStreamSend实现了该接口
type MonitorListener interface {
	OnMonitorScore(score uint8)
}

// Monitor 质量监控，根据RR以及被修复的包计算0~10的分数
type Monitor interface {
	RtpPacketRepaired(pkt *rtp.Packet)
	ReceiveRtcpReceiverReport(rr rtcp.ReceptionReport)
	Score() uint8
}

// OnMonitorScore 监控每次计算完分数都会回调，只有分数变化时才通知listener
func (s *RtpStreamSend) OnMonitorScore(score uint8) {
	if score == s.lastScore {
		return
	}
	s.lastScore = score
	if s.metrics != nil {
		s.metrics.Score.Observe(float64(score))
	}
	s.listener.OnRtpStreamSendScore(s, score)
}

// RtpPacketRepaired 丢失的包第一次被成功重传，交给质量监控
func (s *RtpStreamSend) RtpPacketRepaired(pkt *rtp.Packet) {
	s.stats.PacketsRepaired++
	if s.metrics != nil {
		s.metrics.PacketsRepaired.Inc()
	}
	s.monitor.RtpPacketRepaired(pkt)
}

// Monitor 返回当前使用的质量监控
func (s *RtpStreamSend) Monitor() Monitor {
	return s.monitor
}
