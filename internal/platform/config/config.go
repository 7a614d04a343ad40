package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load merges .env style files into the process environment without
// overriding variables already set. With no paths ".env" is read. A missing
// file is reported but callers usually ignore it and run on system env and
// defaults.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// parse returns fn(os.Getenv(key)), or fallback when the variable is
// empty or fn fails.
func parse[T any](key string, fallback T, fn func(string) (T, error)) T {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := fn(s)
	if err != nil {
		return fallback
	}
	return v
}

// GetEnv returns the variable named by key, or fallback when empty.
func GetEnv(key, fallback string) string {
	return parse(key, fallback, func(s string) (string, error) { return s, nil })
}

// GetEnvInt reads key as a base-10 integer.
func GetEnvInt(key string, fallback int) int {
	return parse(key, fallback, strconv.Atoi)
}

// GetEnvFloat reads key as a float64.
func GetEnvFloat(key string, fallback float64) float64 {
	return parse(key, fallback, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// GetEnvDuration reads key with time.ParseDuration ("2s", "150ms"). A bare
// integer is taken as milliseconds.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	return parse(key, fallback, func(s string) (time.Duration, error) {
		if n, err := strconv.Atoi(s); err == nil {
			return time.Duration(n) * time.Millisecond, nil
		}
		return time.ParseDuration(s)
	})
}
