package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadDetectorsConfig loads the detector configuration from config/detectors.yaml.
func LoadDetectorsConfig() (*DetectorsConfig, error) {
	return LoadDetectorsConfigFromPath(filepath.Join("config", "detectors.yaml"))
}

// LoadDetectorsConfigFromPath loads the detector configuration from a specific path.
func LoadDetectorsConfigFromPath(path string) (*DetectorsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read detectors config: %w", err)
	}

	var cfg DetectorsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse detectors config: %w", err)
	}

	for id, settings := range cfg.Detectors {
		if settings.TimeoutMS < 0 {
			return nil, fmt.Errorf("detector %s: timeout_ms must not be negative", id)
		}
		if settings.Weight < 0 {
			return nil, fmt.Errorf("detector %s: weight must not be negative", id)
		}
	}

	return &cfg, nil
}

// LoadDetectorsConfigOrDefault loads the detector config or returns the default if not found.
func LoadDetectorsConfigOrDefault() *DetectorsConfig {
	cfg, err := LoadDetectorsConfig()
	if err != nil {
		return DefaultDetectorsConfig()
	}
	return cfg
}

// DefaultDetectorsConfig returns the built-in catalog of detectors with
// reasonable default budgets; every detector is enabled except heuristic
// and llm.
func DefaultDetectorsConfig() *DetectorsConfig {
	return &DetectorsConfig{
		Detectors: map[string]*DetectorSettings{
			"useragent": {
				Enabled:     true,
				TimeoutMS:   5,
				Weight:      1.0,
				Description: "Parses and classifies the User-Agent header",
			},
			"header": {
				Enabled:     true,
				TimeoutMS:   5,
				Weight:      1.0,
				Description: "Checks header ordering and presence against browser fingerprints",
			},
			"ip": {
				Enabled:     true,
				TimeoutMS:   10,
				Weight:      1.0,
				Description: "Classifies the client IP against known datacenter/proxy ranges",
			},
			"tls_ja3": {
				Enabled:     true,
				TimeoutMS:   5,
				Weight:      1.2,
				Description: "Compares the TLS client handshake fingerprint against known signatures",
			},
			"clientside": {
				Enabled:     true,
				TimeoutMS:   50,
				Weight:      1.5,
				Description: "Evaluates client-side challenge/telemetry submissions",
			},
			"behavioral": {
				Enabled:     true,
				TimeoutMS:   20,
				Weight:      1.2,
				Description: "Scores request timing and navigation behavior",
			},
			"markov": {
				Enabled:     true,
				TimeoutMS:   15,
				Weight:      1.3,
				Description: "Scores path-transition drift against the learned Markov model",
			},
			"cluster": {
				Enabled:     true,
				TimeoutMS:   10,
				Weight:      1.1,
				Description: "Scores membership in adaptively detected traffic clusters",
			},
			"reputation": {
				Enabled:     true,
				TimeoutMS:   10,
				Weight:      1.4,
				Description: "Scores the requester against the time-decayed reputation store",
			},
			"inconsistency": {
				Enabled:     true,
				TimeoutMS:   5,
				Weight:      1.6,
				Description: "Flags cross-signal contradictions between other detectors",
			},
			"honeypot": {
				Enabled:     true,
				TimeoutMS:   5,
				Weight:      2.0,
				Description: "Flags hits against honeypot fields, paths, and known tool signatures",
			},
			"heuristic": {
				Enabled:     false,
				TimeoutMS:   25,
				Weight:      1.0,
				Description: "Runs a sandboxed scoring script against the blackboard",
			},
			"llm": {
				Enabled:     false,
				TimeoutMS:   800,
				Weight:      1.0,
				Description: "Consults an external LLM for ambiguous sessions, behind a circuit breaker",
			},
		},
	}
}
