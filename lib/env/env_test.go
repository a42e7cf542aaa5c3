package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvFallsBackToDefault(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8080", GetEnv("FEED_TEST_UNSET_ADDR", "127.0.0.1:8080"))

	t.Setenv("FEED_TEST_ADDR", "0.0.0.0:9000")
	assert.Equal(t, "0.0.0.0:9000", GetEnv("FEED_TEST_ADDR", "127.0.0.1:8080"))
}

func TestGetInt(t *testing.T) {
	assert.Equal(t, 500, GetInt("FEED_TEST_UNSET_INT", 500))

	t.Setenv("FEED_TEST_INT", "42")
	assert.Equal(t, 42, GetInt("FEED_TEST_INT", 500))

	t.Setenv("FEED_TEST_INT", "many")
	assert.Panics(t, func() { GetInt("FEED_TEST_INT", 500) })
}

func TestGetBool(t *testing.T) {
	assert.True(t, GetBool("FEED_TEST_UNSET_BOOL", true))

	t.Setenv("FEED_TEST_BOOL", "false")
	assert.False(t, GetBool("FEED_TEST_BOOL", true))

	t.Setenv("FEED_TEST_BOOL", "true")
	assert.True(t, GetBool("FEED_TEST_BOOL", false))
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, time.Minute, GetDuration("FEED_TEST_UNSET_TTL", time.Minute))

	t.Setenv("FEED_TEST_TTL", "72h")
	assert.Equal(t, 72*time.Hour, GetDuration("FEED_TEST_TTL", time.Minute))

	t.Setenv("FEED_TEST_TTL", "soon")
	assert.Panics(t, func() { GetDuration("FEED_TEST_TTL", time.Minute) })
}
