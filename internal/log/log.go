package log

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// logger 全局日志，默认输出到stderr，级别为info
var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
	With().Timestamp().Logger().Level(zerolog.InfoLevel)

// SetLevel 设置日志级别，如 "debug"、"info"、"warn"、"error"
func SetLevel(level string) error {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	logger = logger.Level(l)
	return nil
}

// SetOutput 替换日志输出，测试里常用
func SetOutput(w io.Writer) {
	logger = logger.Output(w)
}

// Logger 返回底层的zerolog.Logger，需要结构化字段时使用
func Logger() *zerolog.Logger {
	return &logger
}

func Debugf(format string, v ...interface{}) {
	logger.Debug().Msgf(format, v...)
}

func Infof(format string, v ...interface{}) {
	logger.Info().Msgf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	logger.Warn().Msgf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	logger.Error().Msgf(format, v...)
}
