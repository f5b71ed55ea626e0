package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcdev12/arena/go/internal/submission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]byte(`
submission:
  required_parts: [prompt]
  expiry_policy: record_only
  grader: fixed
  fixed_score: 40
workspace:
  sweep_interval: 1m
`))
	require.NoError(t, err)

	sub, err := cfg.SubmissionConfig()
	require.NoError(t, err)
	assert.Equal(t, submission.PolicyRecordOnly, sub.ExpiryPolicy)
	assert.Equal(t, []string{"prompt"}, sub.RequiredParts)
	assert.Equal(t, "fixed", cfg.Submission.Grader)
	assert.Equal(t, 40, cfg.Submission.FixedScore)

	assert.Equal(t, time.Minute, cfg.SweeperConfig().Interval)
	assert.Equal(t, 30*time.Second, cfg.SweeperConfig().Grace, "unset fields keep defaults")
	assert.Equal(t, 3, cfg.WorkspaceConfig().ExpiryRetries)
}

func TestParseConfigRequiresExpiryPolicy(t *testing.T) {
	_, err := parseConfig([]byte("submission:\n  empty_score: 0\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expiry_policy")

	_, err = parseConfig([]byte("submission:\n  expiry_policy: lenient\n"))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("submission:\n  expiry_policy: allow_empty\n"), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	sub, err := cfg.SubmissionConfig()
	require.NoError(t, err)
	assert.Equal(t, submission.PolicyAllowEmpty, sub.ExpiryPolicy)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
