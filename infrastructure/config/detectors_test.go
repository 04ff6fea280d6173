package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultDetectorsConfig(t *testing.T) {
	cfg := DefaultDetectorsConfig()
	if cfg == nil {
		t.Fatal("DefaultDetectorsConfig() returned nil")
	}

	expectedDetectors := []string{
		"useragent",
		"header",
		"ip",
		"tls_ja3",
		"clientside",
		"behavioral",
		"markov",
		"cluster",
		"reputation",
		"inconsistency",
		"honeypot",
		"heuristic",
		"llm",
	}

	for _, d := range expectedDetectors {
		settings, ok := cfg.Detectors[d]
		if !ok {
			t.Errorf("missing detector %q in default config", d)
			continue
		}
		if settings.Description == "" {
			t.Errorf("detector %q has no description", d)
		}
		if settings.TimeoutMS <= 0 {
			t.Errorf("detector %q has no timeout configured", d)
		}
	}

	if cfg.Detectors["heuristic"].Enabled {
		t.Error("heuristic detector should be disabled by default")
	}
	if cfg.Detectors["llm"].Enabled {
		t.Error("llm detector should be disabled by default")
	}
	if !cfg.Detectors["useragent"].Enabled {
		t.Error("useragent detector should be enabled by default")
	}
}

func TestLoadDetectorsConfigFromPath(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "detectors.yaml")

		configContent := `
detectors:
  testdetector:
    enabled: true
    timeout_ms: 10
    weight: 1.5
    description: "Test detector"
`
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadDetectorsConfigFromPath(configPath)
		if err != nil {
			t.Fatalf("LoadDetectorsConfigFromPath() error = %v", err)
		}

		if cfg == nil {
			t.Fatal("LoadDetectorsConfigFromPath() returned nil")
		}

		det, ok := cfg.Detectors["testdetector"]
		if !ok {
			t.Fatal("testdetector not found in config")
		}
		if det.TimeoutMS != 10 {
			t.Errorf("timeout_ms = %d, want 10", det.TimeoutMS)
		}
		if !det.Enabled {
			t.Error("detector should be enabled")
		}
	})

	t.Run("negative timeout", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "detectors.yaml")

		configContent := `
detectors:
  testdetector:
    enabled: true
    timeout_ms: -5
    description: "Test detector"
`
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		_, err := LoadDetectorsConfigFromPath(configPath)
		if err == nil {
			t.Error("expected error for negative timeout_ms")
		}
	})

	t.Run("file not found", func(t *testing.T) {
		_, err := LoadDetectorsConfigFromPath("/nonexistent/path/detectors.yaml")
		if err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "detectors.yaml")

		if err := os.WriteFile(configPath, []byte("invalid: yaml: content:"), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		_, err := LoadDetectorsConfigFromPath(configPath)
		if err == nil {
			t.Error("expected error for invalid yaml")
		}
	})
}

func TestLoadDetectorsConfigOrDefault(t *testing.T) {
	// This should return default config since config/detectors.yaml likely doesn't exist in test
	cfg := LoadDetectorsConfigOrDefault()
	if cfg == nil {
		t.Fatal("LoadDetectorsConfigOrDefault() returned nil")
	}

	if len(cfg.Detectors) == 0 {
		t.Error("expected non-empty detectors map")
	}
}
