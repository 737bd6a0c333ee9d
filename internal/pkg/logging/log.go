package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logger.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// SetLogLevel sets the logging level by name.
func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	Logger.SetLevel(lvl)
	return nil
}

// SetLogOutput sets the log output destination.
func SetLogOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// SetJSONFormat switches the logger to JSON output.
func SetJSONFormat() {
	Logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
}

// Configure applies a level and format in one call.
func Configure(level string, json bool) error {
	if level != "" {
		if err := SetLogLevel(level); err != nil {
			return err
		}
	}
	if json {
		SetJSONFormat()
	}
	return nil
}

// WithComponent returns a logger tagged with a component name.
func WithComponent(name string) *logrus.Entry {
	return Logger.WithField("component", name)
}

// WithSwitch returns a logger tagged with a datapath id.
func WithSwitch(dpid fmt.Stringer) *logrus.Entry {
	return Logger.WithField("dpid", dpid.String())
}

// WithSlice returns a logger tagged with a slice name.
func WithSlice(name string) *logrus.Entry {
	return Logger.WithField("slice", name)
}
