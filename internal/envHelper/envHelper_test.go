package envHelper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("ARXIV_FEED_TEST", "  value ")
	assert.Equal(t, "value", GetEnvOrDefault("ARXIV_FEED_TEST", "def"))
	t.Setenv("ARXIV_FEED_TEST", "")
	assert.Equal(t, "def", GetEnvOrDefault("ARXIV_FEED_TEST", "def"))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("ARXIV_FEED_INT", "7")
	assert.Equal(t, 7, GetEnvInt("ARXIV_FEED_INT", 1))
	t.Setenv("ARXIV_FEED_INT", "seven")
	assert.Equal(t, 1, GetEnvInt("ARXIV_FEED_INT", 1))
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("ARXIV_FEED_DUR", "90")
	assert.Equal(t, 90*time.Second, GetEnvDuration("ARXIV_FEED_DUR", time.Second))
	t.Setenv("ARXIV_FEED_DUR", "1m30s")
	assert.Equal(t, 90*time.Second, GetEnvDuration("ARXIV_FEED_DUR", time.Second))
	t.Setenv("ARXIV_FEED_DUR", "soon")
	assert.Equal(t, time.Second, GetEnvDuration("ARXIV_FEED_DUR", time.Second))
}

func TestGetEnvBool(t *testing.T) {
	for value, want := range map[string]bool{"true": true, "YES": true, "1": true, "off": false, "0": false} {
		t.Setenv("ARXIV_FEED_BOOL", value)
		assert.Equal(t, want, GetEnvBool("ARXIV_FEED_BOOL", !want), value)
	}
	t.Setenv("ARXIV_FEED_BOOL", "maybe")
	assert.True(t, GetEnvBool("ARXIV_FEED_BOOL", true))
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("ARXIV_FEED_LIST", "http://a, http://b ,,")
	assert.Equal(t, []string{"http://a", "http://b"}, GetEnvList("ARXIV_FEED_LIST", nil))
	t.Setenv("ARXIV_FEED_LIST", "")
	assert.Equal(t, []string{"x"}, GetEnvList("ARXIV_FEED_LIST", []string{"x"}))
}
