package sfu

import (
	"math"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

const (
	maxScore        = 10
	maxScoreHistory = 8
)

// RtpMonitor 默认的质量监控
// 每收到一个RR，根据两次RR之间对端期望收到的包数、丢包数以及这段时间内被修复的包数计算分数，
// 最终分数是最近几次分数的加权平均，越新的权重越大
type RtpMonitor struct {
	listener MonitorListener

	scores []uint8
	score  uint8

	init          bool
	highestPrior  uint32
	lostPrior     uint32
	repaired      uint32
	repairedPrior uint32
}

func NewRtpMonitor(listener MonitorListener) *RtpMonitor {
	return &RtpMonitor{
		listener: listener,
		scores:   make([]uint8, 0, maxScoreHistory),
	}
}

func (m *RtpMonitor) RtpPacketRepaired(_ *rtp.Packet) {
	m.repaired++
}

func (m *RtpMonitor) Score() uint8 {
	return m.score
}

func (m *RtpMonitor) ReceiveRtcpReceiverReport(rr rtcp.ReceptionReport) {
	// 第一个RR只作为基准
	if !m.init {
		m.init = true
		m.highestPrior = rr.LastSequenceNumber
		m.lostPrior = rr.TotalLost
		m.repairedPrior = m.repaired
		return
	}

	expected := rr.LastSequenceNumber - m.highestPrior
	// 重复或者乱序到达的RR
	if expected == 0 || expected >= 1<<31 {
		return
	}
	var lost uint32
	if rr.TotalLost > m.lostPrior {
		lost = rr.TotalLost - m.lostPrior
	}
	repaired := m.repaired - m.repairedPrior

	m.highestPrior = rr.LastSequenceNumber
	m.lostPrior = rr.TotalLost
	m.repairedPrior = m.repaired

	m.push(computeScore(expected, lost, repaired))
	m.listener.OnMonitorScore(m.score)
}

func (m *RtpMonitor) push(score uint8) {
	if len(m.scores) == maxScoreHistory {
		copy(m.scores, m.scores[1:])
		m.scores = m.scores[:maxScoreHistory-1]
	}
	m.scores = append(m.scores, score)

	var sum, weights float64
	for i, s := range m.scores {
		w := float64(i + 1)
		sum += w * float64(s)
		weights += w
	}
	m.score = uint8(math.Round(sum / weights))
}

// computeScore 被修复的包按照权重抵消丢包，修复比例越高权重越低
func computeScore(expected, lost, repaired uint32) uint8 {
	if lost > expected {
		lost = expected
	}
	if repaired > expected {
		repaired = expected
	}
	repairedRatio := float64(repaired) / float64(expected)
	repairedWeight := math.Pow(1/(repairedRatio+1), 4)

	effectiveLost := float64(lost) - float64(repaired)*repairedWeight
	if effectiveLost < 0 {
		effectiveLost = 0
	}
	delivered := 1 - effectiveLost/float64(expected)
	return uint8(math.Round(math.Pow(delivered, 4) * maxScore))
}
