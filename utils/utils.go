package utils

import (
	"os"
	"strconv"

	"github.com/danthegoodman1/parquetlayout/gologger"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/segmentio/ksuid"
)

var logger = gologger.NewLogger()

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// envOr parses env with parse, falling back to defaultVal when unset. A set
// but unparsable value is fatal: config is read once at startup.
func envOr[T any](env string, defaultVal T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(env)
	if !ok || raw == "" {
		return defaultVal
	}
	v, err := parse(raw)
	if err != nil {
		logger.Fatal().Err(err).Str("env", env).Str("value", raw).Msg("invalid environment variable")
	}
	return v
}

func GetEnvOrDefault(env, defaultVal string) string {
	return envOr(env, defaultVal, func(s string) (string, error) { return s, nil })
}

func GetEnvOrDefaultInt(env string, defaultVal int64) int64 {
	return envOr(env, defaultVal, func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) })
}

func GetEnvOrDefaultFloat(env string, defaultVal float64) float64 {
	return envOr(env, defaultVal, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func GetEnvOrDefaultBool(env string, defaultVal bool) bool {
	return envOr(env, defaultVal, strconv.ParseBool)
}

// GenRandomID is for request IDs, GenKSortedID for anything listed by time.
func GenRandomID(prefix string) string {
	return prefix + gonanoid.MustGenerate(idAlphabet, 22)
}

func GenKSortedID(prefix string) string {
	return prefix + ksuid.New().String()
}

func Ptr[T any](v T) *T {
	return &v
}

func Deref[T any](ref *T, fallback T) T {
	if ref != nil {
		return *ref
	}
	return fallback
}

// ArrayOrEmpty keeps nil slices from encoding as JSON null.
func ArrayOrEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func ContainsString(s []string, str string) bool {
	for _, v := range s {
		if v == str {
			return true
		}
	}
	return false
}
