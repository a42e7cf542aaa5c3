package env

import (
	"os"
	"strconv"
	"time"
)

func GetEnv(key string, defaultValue string) string {
	value, ok := os.LookupEnv(key)
	if ok {
		return value
	}
	return defaultValue
}

func GetInt(key string, defaultValue int) int {
	value, ok := os.LookupEnv(key)
	if ok {
		valueInt, err := strconv.Atoi(value)
		if err != nil {
			panic(err) // expected developer provide suitable config
		}
		return valueInt
	}
	return defaultValue
}

func GetBool(key string, defaultValue bool) bool {
	value, ok := os.LookupEnv(key)
	if ok {
		return (value == "true")
	}
	return defaultValue
}

// GetDuration accepts anything time.ParseDuration does ("30s", "72h").
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			panic(err) // same contract as GetInt
		}
		return d
	}
	return defaultValue
}
