// Package logger is a thin structured-logging facade over logrus, modeled on
// nabbar-golib/logger: one constructor, a Fields map, and a small Logger
// interface so callers never import logrus directly.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Fields carries structured key/value context attached to a log line.
type Fields map[string]interface{}

// Level mirrors logrus' level ordering without leaking the logrus type.
type Level uint8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
	LevelPanic
)

func (l Level) toLogrus() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	case LevelFatal:
		return logrus.FatalLevel
	case LevelPanic:
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

// Logger is the façade every core component logs through.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
	WithField(key string, val interface{}) Logger
	SetLevel(l Level)
	io.Closer
}

type entry struct {
	l *logrus.Logger
	e *logrus.Entry
}

// New builds a Logger writing to w (stdout when w is nil) at the given level.
func New(w io.Writer, lvl Level) Logger {
	if w == nil {
		w = os.Stdout
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(lvl.toLogrus())
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &entry{l: l, e: logrus.NewEntry(l)}
}

func (en *entry) log(lvl logrus.Level, msg string, f Fields) {
	if len(f) == 0 {
		en.e.Log(lvl, msg)
		return
	}
	en.e.WithFields(logrus.Fields(f)).Log(lvl, msg)
}

func (en *entry) Debug(msg string, f Fields) { en.log(logrus.DebugLevel, msg, f) }
func (en *entry) Info(msg string, f Fields)  { en.log(logrus.InfoLevel, msg, f) }
func (en *entry) Warn(msg string, f Fields)  { en.log(logrus.WarnLevel, msg, f) }
func (en *entry) Error(msg string, f Fields) { en.log(logrus.ErrorLevel, msg, f) }

func (en *entry) WithField(key string, val interface{}) Logger {
	return &entry{l: en.l, e: en.e.WithField(key, val)}
}

func (en *entry) SetLevel(l Level) {
	en.l.SetLevel(l.toLogrus())
}

func (en *entry) Close() error {
	return nil
}
