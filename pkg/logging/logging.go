package logging

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	WithCaller bool
	Level      string
	// Format is "json" or "text".
	Format string
	File   string
	// Output defaults to stderr.
	Output io.Writer
}

// InitLogger configures the global zerolog logger.
func InitLogger(config *Config) error {
	level := zerolog.InfoLevel
	if config.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(config.Level))
		if err != nil {
			return errors.Wrapf(err, "invalid log level %q", config.Level)
		}
		level = l
	}

	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	// default is json
	var logWriter io.Writer
	if config.Format == "text" {
		logWriter = zerolog.ConsoleWriter{Out: out}
	} else {
		logWriter = out
	}

	if config.File != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.File,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28, // days
				},
			})
	}

	logger := zerolog.New(logWriter).With().Timestamp().Logger()
	if config.WithCaller {
		logger = logger.With().Caller().Logger()
	}
	log.Logger = logger
	zerolog.SetGlobalLevel(level)

	return nil
}
