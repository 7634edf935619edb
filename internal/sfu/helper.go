package sfu

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v3"
)

const (
	ntpEpoch = 2208988800

	mimeTypeRTX = "video/rtx"
)

// timeToNtp 把Unix时间(ms)转换成64位NTP时间，高32位秒，低32位秒的小数部分
func timeToNtp(ms uint64) uint64 {
	seconds := ms/1e3 + ntpEpoch
	fraction := ((ms % 1e3) << 32) / 1e3
	return seconds<<32 | fraction
}

// compactNtp 取64位NTP时间中间的32位，单位是1/65536秒，RR里的LSR和DLSR都是这个格式
func compactNtp(ntp uint64) uint32 {
	return uint32(ntp >> 16)
}

// compactNtpToMs 把1/65536秒转换成ms
func compactNtpToMs(v uint32) float64 {
	return float64(v>>16)*1000 + float64(v&0xFFFF)*1000/65536
}

// kindFromMime 根据MimeType判断媒体类型
func kindFromMime(mime string) webrtc.RTPCodecType {
	switch {
	case strings.HasPrefix(strings.ToLower(mime), "audio/"):
		return webrtc.RTPCodecTypeAudio
	case strings.HasPrefix(strings.ToLower(mime), "video/"):
		return webrtc.RTPCodecTypeVideo
	default:
		return webrtc.RTPCodecType(0)
	}
}

// findRtxCodec 在编解码器列表中查找和负载类型pt关联的rtx编解码器（a=fmtp:xx apt=pt）
func findRtxCodec(pt webrtc.PayloadType, haystack []webrtc.RTPCodecParameters) (webrtc.RTPCodecParameters, error) {
	apt := fmt.Sprintf("apt=%d", pt)
	for _, c := range haystack {
		if !strings.EqualFold(c.MimeType, mimeTypeRTX) {
			continue
		}
		for _, param := range strings.Split(c.SDPFmtpLine, ";") {
			if strings.TrimSpace(param) == apt {
				return c, nil
			}
		}
	}
	// 没有匹配到，codec not found
	return webrtc.RTPCodecParameters{}, webrtc.ErrCodecNotFound
}
