package sfu

import (
	"testing"

	"github.com/pion/rtcp"
	"github.com/stretchr/testify/require"
)

func TestTimeToNtp(t *testing.T) {
	ntp := timeToNtp(1500)
	require.Equal(t, uint64(ntpEpoch+1), ntp>>32)
	// 0.5s
	require.Equal(t, uint64(1)<<31, ntp&0xFFFFFFFF)

	require.InDelta(t, 1500.0, compactNtpToMs(compactNtp(timeToNtp(1500))-compactNtp(timeToNtp(0))), 0.1)
}

func reportAt(lsrMs, dlsrMs uint64) rtcp.ReceptionReport {
	return rtcp.ReceptionReport{
		SSRC:             testSSRC,
		LastSenderReport: compactNtp(timeToNtp(lsrMs)),
		Delay:            uint32(dlsrMs * 65536 / 1000),
	}
}

func TestRttFromReceiverReport(t *testing.T) {
	s, _ := newTestStream(t, false, 8)
	require.Equal(t, float64(0), s.RTT())

	s.ReceiveRtcpReceiverReport(reportAt(testNow, 0), testNow+150)
	require.InDelta(t, 150, s.RTT(), 1)

	// 平滑: 150 + 0.125 * (250 - 150)
	s.ReceiveRtcpReceiverReport(reportAt(testNow+1000, 50), testNow+1300)
	require.InDelta(t, 162.5, s.RTT(), 1)
}

func TestRttInvalidSamplesIgnored(t *testing.T) {
	s, _ := newTestStream(t, false, 8)

	s.ReceiveRtcpReceiverReport(rtcp.ReceptionReport{SSRC: testSSRC}, testNow)
	require.Equal(t, float64(0), s.RTT())

	// DLSR大于经过的时间
	s.ReceiveRtcpReceiverReport(reportAt(testNow, 500), testNow+100)
	require.Equal(t, float64(0), s.RTT())

	// LSR在未来
	s.ReceiveRtcpReceiverReport(reportAt(testNow+5000, 0), testNow)
	require.Equal(t, float64(0), s.RTT())
}

func TestRttThrottlesRetransmission(t *testing.T) {
	s, _ := newTestStream(t, false, 8)
	s.ReceivePacket(newPacket(1, 10), testNow)
	s.ReceiveRtcpReceiverReport(reportAt(testNow, 0), testNow+400)

	require.Len(t, s.RequestRtpRetransmission(1, 0, testNow+400, nil), 1)
	require.Empty(t, s.RequestRtpRetransmission(1, 0, testNow+600, nil))
	require.Len(t, s.RequestRtpRetransmission(1, 0, testNow+801, nil), 1)
}

func TestSenderReportExtrapolatesAudioClock(t *testing.T) {
	p := testParams(false)
	p.MimeType = "audio/opus"
	p.ClockRate = 48000
	s, err := NewRtpStreamSend(&scoreRecorder{}, p, DefaultAudioConfig())
	require.NoError(t, err)

	pkt := newPacket(1, 10)
	pkt.Timestamp = 1_000_000
	s.ReceivePacket(pkt, testNow)
	// 比当前最大时间戳旧的包不影响推算
	old := newPacket(2, 10)
	old.Timestamp = 999_000
	s.ReceivePacket(old, testNow+10)

	sr := s.GetRtcpSenderReport(testNow + 20)
	require.Equal(t, uint32(1_000_960), sr.RTPTime)
	require.Equal(t, uint32(2), sr.PacketCount)
}
