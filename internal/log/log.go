// Package log wraps logrus with the prefixed formatter: a single global
// logger, per-component entries obtained via PrefixedLog rather than
// ad-hoc fields at each call site.
package log

import (
	"strings"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Format selects the log output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config is the ambient logging configuration, decoded from the [log]
// section of the TOML startup config.
type Config struct {
	Level     string `toml:"level" default:"info"`
	Format    Format `toml:"format" default:"text"`
	Timestamp bool   `toml:"timestamp" default:"true"`
}

// nolint:gochecknoglobals
var logger *logrus.Logger

func init() {
	logger = logrus.New()
	Configure(Config{Level: "info", Format: FormatText, Timestamp: true})
}

// Log returns the global logger.
func Log() *logrus.Logger { return logger }

// PrefixedLog returns the global logger scoped with a "prefix" field, the
// convention every component (store, zone, dnsserver, httpapi) uses to
// identify its own log lines.
func PrefixedLog(prefix string) *logrus.Entry {
	return logger.WithField("prefix", prefix)
}

// Configure applies cfg to the global logger.
func Configure(cfg Config) {
	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		f := &prefixed.TextFormatter{
			TimestampFormat:  "2006-01-02 15:04:05",
			FullTimestamp:    true,
			ForceFormatting:  true,
			QuoteEmptyFields: true,
			DisableTimestamp: !cfg.Timestamp,
		}
		f.SetColorScheme(&prefixed.ColorScheme{
			PrefixStyle:    "blue+b",
			TimestampStyle: "white+h",
		})
		logger.SetFormatter(f)
	}
}
