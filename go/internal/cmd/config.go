package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mcdev12/arena/go/internal/submission"
	"github.com/mcdev12/arena/go/internal/workspace"
	"gopkg.in/yaml.v3"
)

// Config is the runtime policy read from CONFIG_PATH.
type Config struct {
	Submission struct {
		RequiredParts []string      `yaml:"required_parts"`
		ExpiryPolicy  string        `yaml:"expiry_policy"`
		EmptyScore    int           `yaml:"empty_score"`
		Grader        string        `yaml:"grader"`
		FixedScore    int           `yaml:"fixed_score"`
		RandomMax     int           `yaml:"random_max"`
	} `yaml:"submission"`
	Workspace struct {
		ExpiryRetries int           `yaml:"expiry_retries"`
		RetryDelay    time.Duration `yaml:"retry_delay"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
		SweepGrace    time.Duration `yaml:"sweep_grace"`
		SweepBatch    int           `yaml:"sweep_batch"`
		SweepWorkers  int           `yaml:"sweep_workers"`
	} `yaml:"workspace"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return parseConfig(data)
}

// parseConfig fills unset fields with defaults. expiry_policy has none.
func parseConfig(data []byte) (*Config, error) {
	var config Config
	config.Submission.RequiredParts = []string{"prompt", "output"}
	config.Submission.Grader = "random"
	config.Submission.RandomMax = 100

	wsDefaults := workspace.DefaultConfig()
	sweepDefaults := workspace.DefaultSweeperConfig()
	config.Workspace.ExpiryRetries = wsDefaults.ExpiryRetries
	config.Workspace.RetryDelay = wsDefaults.RetryDelay
	config.Workspace.SweepInterval = sweepDefaults.Interval
	config.Workspace.SweepGrace = sweepDefaults.Grace
	config.Workspace.SweepBatch = sweepDefaults.Batch
	config.Workspace.SweepWorkers = sweepDefaults.Workers

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if config.Submission.ExpiryPolicy == "" {
		return nil, fmt.Errorf("submission.expiry_policy is required (%s or %s)",
			submission.PolicyAllowEmpty, submission.PolicyRecordOnly)
	}
	if _, err := config.SubmissionConfig(); err != nil {
		return nil, err
	}
	if config.Workspace.SweepInterval <= 0 {
		return nil, fmt.Errorf("workspace.sweep_interval must be positive")
	}
	return &config, nil
}

// SubmissionConfig converts the submission section.
func (c *Config) SubmissionConfig() (submission.Config, error) {
	policy, err := submission.ParseExpiryPolicy(c.Submission.ExpiryPolicy)
	if err != nil {
		return submission.Config{}, err
	}
	cfg := submission.Config{
		RequiredParts: c.Submission.RequiredParts,
		ExpiryPolicy:  policy,
		EmptyScore:    c.Submission.EmptyScore,
	}
	return cfg, cfg.Validate()
}

func (c *Config) WorkspaceConfig() workspace.Config {
	return workspace.Config{
		ExpiryRetries: c.Workspace.ExpiryRetries,
		RetryDelay:    c.Workspace.RetryDelay,
	}
}

func (c *Config) SweeperConfig() workspace.SweeperConfig {
	return workspace.SweeperConfig{
		Interval: c.Workspace.SweepInterval,
		Grace:    c.Workspace.SweepGrace,
		Batch:    c.Workspace.SweepBatch,
		Workers:  c.Workspace.SweepWorkers,
	}
}
