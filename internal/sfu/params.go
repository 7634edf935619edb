package sfu

import (
	"github.com/pion/webrtc/v3"
)

// Params 发送流的参数，构造时确定，rtx可以之后通过SetRtx设置
type Params struct {
	SSRC        uint32
	PayloadType uint8
	MimeType    string
	ClockRate   uint32
	Cname       string
	// UseNack 对端是否支持nack，不支持时不创建重传缓冲区
	UseNack bool

	RtxSSRC        uint32
	RtxPayloadType uint8
}

// HasRtx 是否配置了rtx
func (p Params) HasRtx() bool {
	return p.RtxSSRC != 0 && p.RtxPayloadType != 0
}

// Kind 媒体类型
func (p Params) Kind() webrtc.RTPCodecType {
	return kindFromMime(p.MimeType)
}

// ParamsFromCodec 根据协商结果生成Params
// codecs 为协商后双方都支持的编解码器，用于查找和codec关联的rtx
func ParamsFromCodec(codec webrtc.RTPCodecParameters, enc webrtc.RTPCodingParameters, codecs []webrtc.RTPCodecParameters) Params {
	p := Params{
		SSRC:        uint32(enc.SSRC),
		PayloadType: uint8(codec.PayloadType),
		MimeType:    codec.MimeType,
		ClockRate:   codec.ClockRate,
	}
	for _, fb := range codec.RTCPFeedback {
		// 只有 a=rtcp-fb:xx nack 才表示支持重传，nack pli 是关键帧请求
		if fb.Type == webrtc.TypeRTCPFBNACK && fb.Parameter == "" {
			p.UseNack = true
		}
	}
	if enc.RTX.SSRC != 0 {
		if rtx, err := findRtxCodec(codec.PayloadType, codecs); err == nil {
			p.RtxSSRC = uint32(enc.RTX.SSRC)
			p.RtxPayloadType = uint8(rtx.PayloadType)
		}
	}
	return p
}

func (p Params) validate() error {
	if p.SSRC == 0 {
		return errNoSSRC
	}
	if p.ClockRate == 0 {
		return errNoClockRate
	}
	return nil
}
