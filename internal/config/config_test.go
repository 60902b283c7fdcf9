package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FACE_TIMEOUT", "")
	t.Setenv("MAX_DAILY_ATTEMPTS", "")
	t.Setenv("ARCHIVE_MAX_RETRIES", "")
	t.Setenv("ARCHIVE_RETRY_BACKOFF", "")
	cfg := Load()

	assert.Equal(t, 10*time.Second, cfg.FaceTimeout)
	assert.Equal(t, 5, cfg.MaxDailyAttempts)
	assert.Equal(t, 0.4, cfg.FaceMatchThreshold)
	assert.False(t, cfg.CloudinaryEnabled())
	assert.Equal(t, 5, cfg.ArchiveMaxRetries)
	assert.Equal(t, 2*time.Second, cfg.ArchiveRetryBackoff)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FACE_TIMEOUT", "3s")
	t.Setenv("MAX_DAILY_ATTEMPTS", "7")
	t.Setenv("FACE_MATCH_THRESHOLD", "0.35")
	t.Setenv("FACE_SKIP", "false")
	t.Setenv("CAMPUS_TZ", "Asia/Kolkata")
	cfg := Load()

	assert.Equal(t, 3*time.Second, cfg.FaceTimeout)
	assert.Equal(t, 7, cfg.MaxDailyAttempts)
	assert.Equal(t, 0.35, cfg.FaceMatchThreshold)
	assert.False(t, cfg.FaceSkip)
	assert.Equal(t, "Asia/Kolkata", cfg.Location().String())
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("FACE_TIMEOUT", "soon")
	t.Setenv("MAX_DAILY_ATTEMPTS", "many")
	t.Setenv("CAMPUS_TZ", "Mars/Olympus")
	cfg := Load()

	assert.Equal(t, 10*time.Second, cfg.FaceTimeout)
	assert.Equal(t, 5, cfg.MaxDailyAttempts)
	assert.Equal(t, time.Local, cfg.Location())
}
