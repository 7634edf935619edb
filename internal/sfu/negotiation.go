package sfu

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

// ParamsFromSDP 从sdp中找到mid对应的m=行并生成Params，mid为空时取第一个音视频m=行
// 重协商时用新的sdp重新生成参数
func ParamsFromSDP(raw []byte, mid string) (Params, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal(raw); err != nil {
		return Params{}, fmt.Errorf("unmarshal sdp: %w", err)
	}
	for _, md := range sd.MediaDescriptions {
		if md.MediaName.Media != "audio" && md.MediaName.Media != "video" {
			continue
		}
		if mid != "" {
			if v, ok := md.Attribute("mid"); !ok || v != mid {
				continue
			}
		}
		return ParamsFromMediaDescription(md)
	}
	return Params{}, errNoMediaSection
}

// ParamsFromMediaDescription 解析一个m=行
//
//	m=video 9 UDP/TLS/RTP/SAVPF 96 97
//	a=rtpmap:96 VP8/90000
//	a=rtcp-fb:96 nack
//	a=rtpmap:97 rtx/90000
//	a=fmtp:97 apt=96
//	a=ssrc-group:FID 1111 2222
//	a=ssrc:1111 cname:stream
func ParamsFromMediaDescription(md *sdp.MediaDescription) (Params, error) {
	if len(md.MediaName.Formats) == 0 {
		return Params{}, errNoPayloadType
	}
	pt, err := strconv.ParseUint(md.MediaName.Formats[0], 10, 8)
	if err != nil {
		return Params{}, fmt.Errorf("%w: %v", errNoPayloadType, err)
	}
	p := Params{PayloadType: uint8(pt)}
	ptStr := md.MediaName.Formats[0]

	rtpmaps := make(map[string]string)
	cnames := make(map[uint32]string)
	for _, a := range md.Attributes {
		key, value := a.Key, strings.TrimSpace(a.Value)
		switch key {
		case "rtpmap":
			// 96 VP8/90000
			if fields := strings.Fields(value); len(fields) == 2 {
				rtpmaps[fields[0]] = fields[1]
			}
		case "rtcp-fb":
			if value == ptStr+" nack" {
				p.UseNack = true
			}
		case "fmtp":
			// 97 apt=96
			fields := strings.Fields(value)
			if len(fields) == 2 && fields[1] == "apt="+ptStr {
				if rtxPT, err := strconv.ParseUint(fields[0], 10, 8); err == nil {
					p.RtxPayloadType = uint8(rtxPT)
				}
			}
		case "ssrc-group":
			// FID 1111 2222，第一个是媒体ssrc，第二个是rtx ssrc
			fields := strings.Fields(value)
			if len(fields) == 3 && fields[0] == "FID" {
				p.SSRC = parseSSRC(fields[1])
				p.RtxSSRC = parseSSRC(fields[2])
			}
		case "ssrc":
			// 1111 cname:stream
			fields := strings.Fields(value)
			if len(fields) < 2 {
				continue
			}
			ssrc := parseSSRC(fields[0])
			if p.SSRC == 0 {
				p.SSRC = ssrc
			}
			if strings.HasPrefix(fields[1], "cname:") {
				cnames[ssrc] = strings.TrimPrefix(fields[1], "cname:")
			}
		}
	}

	p.Cname = cnames[p.SSRC]
	if codec, ok := rtpmaps[ptStr]; ok {
		// VP8/90000 或者 opus/48000/2
		parts := strings.Split(codec, "/")
		p.MimeType = md.MediaName.Media + "/" + parts[0]
		if len(parts) > 1 {
			if rate, err := strconv.ParseUint(parts[1], 10, 32); err == nil {
				p.ClockRate = uint32(rate)
			}
		}
	}
	if p.RtxPayloadType != 0 {
		if codec, ok := rtpmaps[strconv.Itoa(int(p.RtxPayloadType))]; !ok || !strings.HasPrefix(strings.ToLower(codec), "rtx/") {
			p.RtxPayloadType = 0
		}
	}
	if p.RtxPayloadType == 0 {
		p.RtxSSRC = 0
	}
	return p, nil
}

func parseSSRC(s string) uint32 {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}
