package gologger

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	RunIDKey ctxKey = "runID"
	ReqIDKey ctxKey = "reqID"
)

func init() {
	l := NewLogger()
	zerolog.DefaultContextLogger = &l
	zerolog.CallerMarshalFunc = callerWithFunc
}

// callerWithFunc renders file:line plus the short function name.
func callerWithFunc(pc uintptr, file string, line int) string {
	caller := file + ":" + strconv.Itoa(line)
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return caller
	}
	name := fn.Name()
	if i := strings.LastIndex(name, "/"); i > 0 {
		name = name[i+1:]
	}
	return caller + " " + name + "()"
}

// NewLogger writes to stderr: stdout belongs to the reports the CLI prints.
// PRETTY=1 switches to console output, DEBUG=1 or LOG_LEVEL set the level.
func NewLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "time"

	var logger zerolog.Logger
	if os.Getenv("PRETTY") == "1" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	logger = logger.With().Timestamp().Logger().Hook(CallerHook{})

	if lvl, ok := levelFromEnv(); ok {
		zerolog.SetGlobalLevel(lvl)
	}
	return logger
}

func levelFromEnv() (zerolog.Level, bool) {
	if os.Getenv("DEBUG") == "1" {
		return zerolog.DebugLevel, true
	}
	raw := os.Getenv("LOG_LEVEL")
	if raw == "" {
		return zerolog.NoLevel, false
	}
	lvl, err := zerolog.ParseLevel(raw)
	if err != nil {
		return zerolog.NoLevel, false
	}
	return lvl, true
}

type CallerHook struct{}

func (h CallerHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	e.Caller(3)
}
