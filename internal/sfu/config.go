package sfu

import (
	"encoding/json"
	"fmt"
)

const (
	// rtpMinHeaderSize RTP固定头部长度
	rtpMinHeaderSize = 12
	maxMTU           = 9000
	// maxBufferSize 缓冲区中的序号必须落在半个序号空间内，才能比较先后
	maxBufferSize = 1<<15 - 1

	defaultBufferSize      = 600
	defaultAudioBufferSize = 100
	defaultMTU             = 1500
	// 上次重传后100ms之内的重复nack不再重传
	defaultMinResendInterval    = 100
	defaultMaxRetransmissionAge = 2000
	defaultRttSmoothing         = 0.125
)

// Config 发送端重传相关配置，时间单位都是ms
type Config struct {
	// BufferSize 重传缓冲区最多保存的包数，0表示不缓存（不支持nack）
	BufferSize int `json:"bufferSize"`
	// MTU 单个slot的大小，超过这个大小的包不缓存
	MTU int `json:"mtu"`
	// MinResendInterval 同一个包两次重传的最小间隔，实际间隔取 max(rtt, MinResendInterval)
	MinResendInterval int `json:"minResendIntervalMs"`
	// MaxRetransmissionAge 存入缓冲区超过这个时间的包不再重传，0表示不限制
	MaxRetransmissionAge int `json:"maxRetransmissionAgeMs"`
	// RttSmoothing rtt指数平滑系数
	RttSmoothing float64 `json:"rttSmoothing"`
	// DirectResendFallback rtx封装失败时是否直接重发原始包
	DirectResendFallback bool `json:"directResendFallback"`
}

// DefaultConfig 视频流默认配置
func DefaultConfig() Config {
	return Config{
		BufferSize:           defaultBufferSize,
		MTU:                  defaultMTU,
		MinResendInterval:    defaultMinResendInterval,
		MaxRetransmissionAge: defaultMaxRetransmissionAge,
		RttSmoothing:         defaultRttSmoothing,
		DirectResendFallback: true,
	}
}

// DefaultAudioConfig 音频包小而密集，缓存更少的包，重传时效要求更高
func DefaultAudioConfig() Config {
	c := DefaultConfig()
	c.BufferSize = defaultAudioBufferSize
	c.MaxRetransmissionAge = 1000
	return c
}

// ParseConfig 在默认配置的基础上解析json
func ParseConfig(data []byte) (Config, error) {
	c := DefaultConfig()
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse send stream config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.BufferSize < 0 || c.BufferSize > maxBufferSize {
		return fmt.Errorf("%w: %d", errInvalidBufferSize, c.BufferSize)
	}
	if c.MTU <= rtpMinHeaderSize || c.MTU > maxMTU {
		return fmt.Errorf("%w: %d", errInvalidMTU, c.MTU)
	}
	if c.MinResendInterval < 0 {
		return errInvalidResendWindow
	}
	if c.MaxRetransmissionAge < 0 {
		return errInvalidMaxAge
	}
	if c.RttSmoothing <= 0 || c.RttSmoothing > 1 {
		return errInvalidSmoothing
	}
	return nil
}
