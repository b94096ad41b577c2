package logger

import (
	"context"
	"os"
	"strings"
	"time"

	appCtx "github.com/societyhub/registration-service/internal/pkg/context"
	"github.com/rs/zerolog"
)

// Logger is the process-wide root logger. Call Init once at startup.
var Logger zerolog.Logger

// Init configures the root logger from LOG_LEVEL and APP_ENV. Dev gets the
// console writer; everything else emits JSON lines.
func Init() {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	var w zerolog.ConsoleWriter
	if strings.EqualFold(strings.TrimSpace(os.Getenv("APP_ENV")), "dev") {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
		return
	}

	Logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

// WithCtx returns a child logger carrying the request id, if one is present.
func WithCtx(ctx context.Context) *zerolog.Logger {
	if rid := appCtx.GetRequestID(ctx); rid != "" {
		l := Logger.With().Str("request_id", rid).Logger()
		return &l
	}
	return &Logger
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
