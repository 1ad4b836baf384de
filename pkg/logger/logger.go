package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	APP          = "APP"
	CLI          = "CLI"
	CLIENT       = "CLIENT"
	CONFIG       = "CONFIG"
	CONVERSATION = "CONVERSATION"
	HANDLER      = "HANDLER"
	MIDDLEWARE   = "MIDDLEWARE"
	OAUTH        = "OAUTH"
	OPENAI       = "OPENAI"
	PROGRESS     = "PROGRESS"
	REDIS        = "REDIS"
	SEARCH       = "SEARCH"
	SERVICE      = "SERVICE"
	SESSION      = "SESSION"
	TRANSPORT    = "TRANSPORT"
)

func getLogLevel() zerolog.Level {
	level := strings.ToUpper(os.Getenv("LOG_LEVEL"))
	switch level {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init installs the global zerolog logger. When pretty is set, output is
// rendered for a terminal instead of as JSON lines.
func Init(w io.Writer, pretty bool) {
	if w == nil {
		w = os.Stderr
	}

	zerolog.SetGlobalLevel(getLogLevel())
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// For returns a child of the global logger tagged with namespace.
func For(namespace string) zerolog.Logger {
	return log.Logger.With().Str("namespace", namespace).Logger()
}
