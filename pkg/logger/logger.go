// Package logger is the process-wide zerolog setup. Debug through warn go
// to stdout, error and above to stderr, so CLI output stays pipeable.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var root zerolog.Logger

func init() {
	writer := zerolog.MultiLevelWriter(
		SpecificLevelWriter{
			Writer: zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: time.RFC3339,
			},
			Levels: []zerolog.Level{
				zerolog.DebugLevel, zerolog.InfoLevel, zerolog.WarnLevel,
			},
		},
		SpecificLevelWriter{
			Writer: zerolog.ConsoleWriter{
				Out: os.Stderr,
			},
			Levels: []zerolog.Level{
				zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel,
			},
		},
	)
	root = zerolog.New(writer).Level(levelFromEnv()).With().Timestamp().Logger()
}

func levelFromEnv() zerolog.Level {
	switch strings.ToLower(os.Getenv("NOPEA_LOG_LEVEL")) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a sub-logger tagged with the owning component name.
func Component(name string) zerolog.Logger {
	return root.With().Str("component", name).Logger()
}

func Info(msg string) {
	root.Info().Msg(msg)
}

func Infof(format string, args ...interface{}) {
	root.Info().Msgf(format, args...)
}

func Warn(msg string) {
	root.Warn().Msg(msg)
}

func Warnf(format string, args ...interface{}) {
	root.Warn().Msgf(format, args...)
}

func Error(msg string) {
	root.Error().Msg(msg)
}

func Errorf(format string, args ...interface{}) {
	root.Error().Msgf(format, args...)
}

func Debug(msg string) {
	root.Debug().Msg(msg)
}

func Debugf(format string, args ...interface{}) {
	root.Debug().Msgf(format, args...)
}

// SpecificLevelWriter forwards only the listed levels to its writer.
type SpecificLevelWriter struct {
	io.Writer
	Levels []zerolog.Level
}

func (w SpecificLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	for _, l := range w.Levels {
		if l == level {
			return w.Write(p)
		}
	}
	return len(p), nil
}
