package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// getEnv parses the environment variable key as the type of defaultValue.
// An unset or empty variable yields defaultValue.
func getEnv[T any](key string, defaultValue T) (T, error) {
	v, exists := os.LookupEnv(key)
	if !exists || v == "" {
		return defaultValue, nil
	}

	var err error
	var parsed any

	switch any(defaultValue).(type) {
	case string:
		return any(v).(T), nil
	case int:
		parsed, err = strconv.Atoi(v)
	case int64:
		parsed, err = strconv.ParseInt(v, 10, 64)
	case float64:
		parsed, err = strconv.ParseFloat(v, 64)
	case bool:
		parsed, err = strconv.ParseBool(v)
	case time.Duration:
		var ms int64
		ms, err = strconv.ParseInt(v, 10, 64)
		parsed = time.Duration(ms) * time.Millisecond
	default:
		return defaultValue, fmt.Errorf("unsupported type for env var %s: %T", key, defaultValue)
	}

	if err != nil {
		return defaultValue, fmt.Errorf("failed to parse env %s as %T: %w", key, defaultValue, err)
	}
	return parsed.(T), nil
}
