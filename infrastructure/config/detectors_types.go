package config

// DetectorSettings holds configuration for a single contributing detector from
// detectors.yaml.
type DetectorSettings struct {
	// Enabled determines if the detector is scheduled at all.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// TimeoutMS bounds how long the orchestrator waits for this detector
	// before marking it TimedOut.
	TimeoutMS int `yaml:"timeout_ms" json:"timeout_ms"`

	// Weight is checked to be non-negative when the file is loaded. It is
	// not applied to this detector's contributions: each detector sets its
	// own contribution weights, and the gateway does not rescale them.
	Weight float64 `yaml:"weight" json:"weight"`

	// Description is a human-readable description.
	Description string `yaml:"description" json:"description"`

	// Extra holds any additional detector-specific configuration (e.g. the
	// heuristic detector's script path, the LLM detector's endpoint).
	Extra map[string]any `yaml:"extra,omitempty" json:"extra,omitempty"`
}

// DetectorsConfig holds configuration for all contributing detectors.
type DetectorsConfig struct {
	Detectors map[string]*DetectorSettings `yaml:"detectors" json:"detectors"`
}

// IsEnabled checks if a detector is enabled in the configuration.
// Returns false if the detector is not found in config.
func (c *DetectorsConfig) IsEnabled(detectorID string) bool {
	if c == nil || c.Detectors == nil {
		return false
	}
	settings, ok := c.Detectors[detectorID]
	if !ok {
		return false
	}
	return settings.Enabled
}

// GetSettings returns the settings for a detector.
// Returns nil if the detector is not found.
func (c *DetectorsConfig) GetSettings(detectorID string) *DetectorSettings {
	if c == nil || c.Detectors == nil {
		return nil
	}
	return c.Detectors[detectorID]
}

// EnabledDetectors returns a list of enabled detector IDs.
func (c *DetectorsConfig) EnabledDetectors() []string {
	if c == nil || c.Detectors == nil {
		return nil
	}
	var enabled []string
	for id, settings := range c.Detectors {
		if settings.Enabled {
			enabled = append(enabled, id)
		}
	}
	return enabled
}

// DisabledDetectors returns a list of disabled detector IDs.
func (c *DetectorsConfig) DisabledDetectors() []string {
	if c == nil || c.Detectors == nil {
		return nil
	}
	var disabled []string
	for id, settings := range c.Detectors {
		if !settings.Enabled {
			disabled = append(disabled, id)
		}
	}
	return disabled
}
