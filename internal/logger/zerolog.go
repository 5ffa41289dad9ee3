package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 日志初始化选项
type Options struct {
	Level   string   // debug/info/warn/error
	Writers []string // console/file
	File    string   // file writer 输出路径
}

type zeroLogger struct {
	l zerolog.Logger
}

// New 基于 zerolog 创建 Logger
func New(opts Options) Logger {
	var ws []io.Writer
	for _, w := range opts.Writers {
		switch w {
		case "console":
			ws = append(ws, zerolog.ConsoleWriter{Out: os.Stderr})
		case "file":
			path := opts.File
			if path == "" {
				path = "bidimapper.log"
			}
			ws = append(ws, &lumberjack.Logger{
				Filename:   path,
				MaxSize:    50, // MB
				MaxBackups: 3,
				MaxAge:     7, // days
			})
		}
	}
	if len(ws) == 0 {
		ws = append(ws, zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(ws...)).
		Level(level).
		With().Timestamp().Logger()
	return &zeroLogger{l: zl}
}

func (z *zeroLogger) Debug(msg string, kv ...any) { emit(z.l.Debug(), msg, kv) }
func (z *zeroLogger) Info(msg string, kv ...any)  { emit(z.l.Info(), msg, kv) }
func (z *zeroLogger) Warn(msg string, kv ...any)  { emit(z.l.Warn(), msg, kv) }
func (z *zeroLogger) Error(msg string, kv ...any) { emit(z.l.Error(), msg, kv) }

func (z *zeroLogger) With(kv ...any) Logger {
	c := z.l.With()
	for i := 0; i+1 < len(kv); i += 2 {
		c = c.Interface(keyOf(kv[i]), kv[i+1])
	}
	return &zeroLogger{l: c.Logger()}
}

func emit(e *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		e = e.Interface(keyOf(kv[i]), kv[i+1])
	}
	e.Msg(msg)
}

func keyOf(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprint(k)
}
