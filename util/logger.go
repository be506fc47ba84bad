// Package util provides small helpers shared across the backend: logger setup,
// environment lookups and storage key sanitising.
//
//revive:disable-next-line:var-naming
package util

import (
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger sets up the Zap Logger to log to the console in a human readable format
func InitLogger() *zap.Logger {
	prodConfig := zap.NewProductionConfig()
	prodConfig.Encoding = "console"
	prodConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	prodConfig.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	if lvl, ok := os.LookupEnv("LOG_LEVEL"); ok {
		if parsed, err := zapcore.ParseLevel(lvl); err == nil {
			prodConfig.Level = zap.NewAtomicLevelAt(parsed)
		}
	}
	logger, err := prodConfig.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// GetEnvDefault is a convenience function for handling env vars
func GetEnvDefault(key, defVal string) string {
	val, ex := os.LookupEnv(key) // get the env var
	if !ex {                     // not found return default
		return defVal
	}
	return val // return value for env var
}

// GetEnvBool parses a boolean env var, returning defVal when unset or malformed.
func GetEnvBool(key string, defVal bool) bool {
	val, ex := os.LookupEnv(key)
	if !ex {
		return defVal
	}
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return defVal
	}
	return b
}

// GetEnvInt parses an integer env var, returning defVal when unset or malformed.
func GetEnvInt(key string, defVal int) int {
	val, ex := os.LookupEnv(key)
	if !ex {
		return defVal
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return defVal
	}
	return n
}

// GetEnvDuration parses a Go duration env var ("90s", "10m").
func GetEnvDuration(key string, defVal time.Duration) time.Duration {
	val, ex := os.LookupEnv(key)
	if !ex {
		return defVal
	}
	d, err := time.ParseDuration(strings.TrimSpace(val))
	if err != nil {
		return defVal
	}
	return d
}

// SanitizeKey ensures the database key is valid for ArangoDB
// ArangoDB keys cannot contain spaces, slashes, or brackets
func SanitizeKey(key string) string {
	key = strings.TrimSpace(key)

	replacer := strings.NewReplacer(
		" ", "-",
		"/", "-",
		"[", "",
		"]", "",
		"(", "",
		")", "",
	)

	return replacer.Replace(key)
}

// Truncate returns s cut to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
