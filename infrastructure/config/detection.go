package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DetectionConfig is the closed option set the orchestrator, reputation
// store, Markov tracker, and cluster engine are built from. It is decoded
// once at startup from YAML alone (no environment variable overrides it;
// the env overlay in pkg/config applies only to the process config) and
// then owned as an immutable value — hot-reload, if ever added, would swap the pointer
// rather than mutate fields in place.
type DetectionConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	BotThreshold float64 `yaml:"bot_threshold" json:"bot_threshold"`

	SoftDeadlineMS int `yaml:"soft_deadline_ms" json:"soft_deadline_ms"`
	HardDeadlineMS int `yaml:"hard_deadline_ms" json:"hard_deadline_ms"`

	Reputation ReputationOptions `yaml:"reputation" json:"reputation"`
	Markov     MarkovOptions     `yaml:"markov" json:"markov"`
	Cluster    ClusterOptions    `yaml:"cluster" json:"cluster"`
	Aggregator AggregatorOptions `yaml:"aggregator" json:"aggregator"`
	Learning   LearningOptions   `yaml:"learning" json:"learning"`
}

type ReputationOptions struct {
	UAHalfLifeHours int `yaml:"ua_half_life_hours" json:"ua_half_life_hours"`
	IPHalfLifeHours int `yaml:"ip_half_life_hours" json:"ip_half_life_hours"`
	SupportCap      int `yaml:"support_cap" json:"support_cap"`
}

type MarkovOptions struct {
	SignatureHalfLifeHours int `yaml:"signature_half_life_hours" json:"signature_half_life_hours"`
	CohortHalfLifeHours    int `yaml:"cohort_half_life_hours" json:"cohort_half_life_hours"`
	GlobalHalfLifeHours    int `yaml:"global_half_life_hours" json:"global_half_life_hours"`
	MaxEdgesPerNode        int `yaml:"max_edges_per_node" json:"max_edges_per_node"`
	RecentWindow           int `yaml:"recent_window" json:"recent_window"`
}

type ClusterOptions struct {
	IntervalSeconds     int     `yaml:"interval_seconds" json:"interval_seconds"`
	Resolution          float64 `yaml:"resolution" json:"resolution"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold"`
	MaxIterations       int     `yaml:"max_iterations" json:"max_iterations"`
}

type AggregatorOptions struct {
	ConfidenceScale float64 `yaml:"confidence_scale" json:"confidence_scale"`
}

type LearningOptions struct {
	Capacity int    `yaml:"capacity" json:"capacity"`
	Overflow string `yaml:"overflow" json:"overflow"`
}

// SoftDeadline and HardDeadline convert the millisecond fields to Durations
// for direct use against a monotonic clock.
func (c DetectionConfig) SoftDeadline() time.Duration {
	return time.Duration(c.SoftDeadlineMS) * time.Millisecond
}

func (c DetectionConfig) HardDeadline() time.Duration {
	return time.Duration(c.HardDeadlineMS) * time.Millisecond
}

// DefaultDetectionConfig returns the defaults enumerated in the closed
// option set.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		Enabled:        true,
		BotThreshold:   0.7,
		SoftDeadlineMS: 100,
		HardDeadlineMS: 500,
		Reputation: ReputationOptions{
			UAHalfLifeHours: 6,
			IPHalfLifeHours: 24,
			SupportCap:      1000,
		},
		Markov: MarkovOptions{
			SignatureHalfLifeHours: 1,
			CohortHalfLifeHours:    6,
			GlobalHalfLifeHours:    24,
			MaxEdgesPerNode:        20,
			RecentWindow:           30,
		},
		Cluster: ClusterOptions{
			IntervalSeconds:     30,
			Resolution:          1.0,
			SimilarityThreshold: 0.7,
			MaxIterations:       10,
		},
		Aggregator: AggregatorOptions{
			ConfidenceScale: 3.0,
		},
		Learning: LearningOptions{
			Capacity: 10000,
			Overflow: "DropOldest",
		},
	}
}

// LoadDetectionConfig reads the closed option set from a YAML file decoded
// over the defaults, so any field the file does not name keeps its default
// and a partial override file only needs to name what it changes. A field
// the file sets explicitly to zero stays zero; it does not fall back.
func LoadDetectionConfig(path string) (DetectionConfig, error) {
	cfg := DefaultDetectionConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return DetectionConfig{}, fmt.Errorf("failed to read detection config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DetectionConfig{}, fmt.Errorf("failed to parse detection config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return DetectionConfig{}, err
	}
	return cfg, nil
}

// Validate rejects configuration that would leave the engine in an
// inconsistent state. Per §7, a ConfigurationError at startup disables
// detection entirely until the config is fixed.
func (c DetectionConfig) Validate() error {
	if c.BotThreshold < 0 || c.BotThreshold > 1 {
		return fmt.Errorf("bot_threshold must be in [0,1], got %v", c.BotThreshold)
	}
	if c.SoftDeadlineMS <= 0 || c.HardDeadlineMS <= 0 {
		return fmt.Errorf("soft_deadline_ms and hard_deadline_ms must be positive")
	}
	if c.SoftDeadlineMS > c.HardDeadlineMS {
		return fmt.Errorf("soft_deadline_ms (%d) must not exceed hard_deadline_ms (%d)", c.SoftDeadlineMS, c.HardDeadlineMS)
	}
	if c.Cluster.SimilarityThreshold < 0 || c.Cluster.SimilarityThreshold > 1 {
		return fmt.Errorf("cluster.similarity_threshold must be in [0,1]")
	}
	if c.Reputation.SupportCap <= 0 {
		return fmt.Errorf("reputation.support_cap must be positive")
	}
	if c.Learning.Capacity <= 0 {
		return fmt.Errorf("learning.capacity must be positive")
	}
	return nil
}
