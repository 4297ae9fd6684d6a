package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDecodesReaderAndSecuritySections(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "engine.yaml")
	cfgYAML := `
reader:
  reader_index: 1
  contactless: true
  rate_per_second: 10
security:
  pin_plain_transmission: false
  pin_ciphering_kif: 48
  pin_ciphering_kvc: 121
  multiple_session: true
  disable_read_on_session_opening: false
  control_sam_resource: "HSM/controlSam"
`
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(nil, cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Reader.Index != 1 || !cfg.Reader.Contactless {
		t.Fatalf("unexpected reader config: %+v", cfg.Reader)
	}
	if !cfg.Security.MultipleSession {
		t.Fatalf("expected multiple_session to be true")
	}
	if cfg.Security.ControlSamResource != "HSM/controlSam" {
		t.Fatalf("unexpected control sam resource: %q", cfg.Security.ControlSamResource)
	}
}

func TestLoadWithoutConfigFileReturnsZeroValues(t *testing.T) {
	cfg, err := Load(nil, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Reader.Index != 0 {
		t.Fatalf("expected zero-value reader index, got %d", cfg.Reader.Index)
	}
}

func TestLoadRejectsMissingConfigFile(t *testing.T) {
	if _, err := Load(nil, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}
