package app

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	KernelPath string // hcl file or directory

	FirstStep    int64
	Steps        int64
	OuterThreads int // 0 keeps the kernel's settings
	StatsOnly    bool

	// RankURL is the coordinator for runs over more than one rank.
	RankURL     string
	Rank        int
	NumRanks    int
	RankTimeout time.Duration

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.KernelPath == "" {
		return nil, errors.New("KernelPath is a required configuration field and cannot be empty")
	}
	if cfg.Steps < 0 {
		return nil, fmt.Errorf("steps must not be negative, got %d", cfg.Steps)
	}
	if cfg.OuterThreads < 0 {
		return nil, fmt.Errorf("outer threads must not be negative, got %d", cfg.OuterThreads)
	}
	if cfg.NumRanks == 0 {
		cfg.NumRanks = 1
	}
	if cfg.NumRanks < 0 || cfg.Rank < 0 || cfg.Rank >= cfg.NumRanks {
		return nil, fmt.Errorf("invalid rank %d of %d", cfg.Rank, cfg.NumRanks)
	}
	if cfg.NumRanks > 1 && cfg.RankURL == "" {
		return nil, errors.New("a coordinator URL is required when running on more than one rank")
	}
	return &cfg, nil
}
