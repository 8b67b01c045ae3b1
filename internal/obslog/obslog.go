// Package obslog wires up the process-wide structured logger. It mirrors
// the teacher bridge's logger.InitLogger/logger.Close surface (see
// cmd/lspbench's main, which calls Init then defers Close) but backs it
// with logrus and a rotating file writer instead of a bespoke logger.
package obslog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config mirrors the teacher's LoggerConfig: a log path, a textual level,
// and a rotation cap.
type Config struct {
	LogPath     string
	LogLevel    string
	MaxLogFiles int
}

var log = logrus.New()

// Init configures the shared logger. Safe to call once at process start.
func Init(cfg Config) error {
	level, err := logrus.ParseLevel(normalizeLevel(cfg.LogLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var out io.Writer = os.Stderr
	if cfg.LogPath != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.LogPath,
			MaxBackups: maxOr(cfg.MaxLogFiles, 10),
			MaxSize:    50, // MB
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, rotated)
	}
	log.SetOutput(out)
	return nil
}

// Close releases logger resources. Kept symmetric with Init even though
// logrus/lumberjack need no explicit close, matching the teacher's
// defer logger.Close() call site.
func Close() {}

func normalizeLevel(level string) string {
	if level == "" {
		return "info"
	}
	return level
}

func maxOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// L returns the shared logger, for components that want structured
// fields (server label, method name) attached.
func L() *logrus.Logger { return log }

// Debugf, Infof, Warnf, Errorf are thin convenience wrappers matching the
// teacher's logger.Info/Warn/Error call shape.
func Debugf(format string, args ...interface{}) { log.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { log.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { log.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { log.Errorf(format, args...) }

// WithFields attaches structured fields for per-server/per-method logging.
func WithFields(fields map[string]interface{}) *logrus.Entry {
	return log.WithFields(logrus.Fields(fields))
}
