package config

import "testing"

func TestDetectorsConfig_IsEnabled(t *testing.T) {
	cfg := &DetectorsConfig{
		Detectors: map[string]*DetectorSettings{
			"useragent": {Enabled: true},
			"llm":       {Enabled: false},
		},
	}

	if !cfg.IsEnabled("useragent") {
		t.Error("useragent should be enabled")
	}
	if cfg.IsEnabled("llm") {
		t.Error("llm should be disabled")
	}
	if cfg.IsEnabled("unknown") {
		t.Error("unknown detector should report disabled")
	}

	var nilCfg *DetectorsConfig
	if nilCfg.IsEnabled("useragent") {
		t.Error("nil config should report disabled")
	}
}

func TestDetectorsConfig_GetSettings(t *testing.T) {
	cfg := &DetectorsConfig{
		Detectors: map[string]*DetectorSettings{
			"ip": {Enabled: true, TimeoutMS: 10, Weight: 1.1},
		},
	}

	settings := cfg.GetSettings("ip")
	if settings == nil {
		t.Fatal("expected settings for ip detector")
	}
	if settings.TimeoutMS != 10 {
		t.Errorf("TimeoutMS = %d, want 10", settings.TimeoutMS)
	}

	if cfg.GetSettings("unknown") != nil {
		t.Error("expected nil settings for unknown detector")
	}
}

func TestDetectorsConfig_EnabledDisabled(t *testing.T) {
	cfg := &DetectorsConfig{
		Detectors: map[string]*DetectorSettings{
			"useragent": {Enabled: true},
			"header":    {Enabled: true},
			"llm":       {Enabled: false},
		},
	}

	enabled := cfg.EnabledDetectors()
	if len(enabled) != 2 {
		t.Errorf("expected 2 enabled detectors, got %d", len(enabled))
	}

	disabled := cfg.DisabledDetectors()
	if len(disabled) != 1 {
		t.Errorf("expected 1 disabled detector, got %d", len(disabled))
	}
}
