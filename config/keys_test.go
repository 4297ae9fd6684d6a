package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAuthorizedKeysParsesEntries(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "keys.yaml")
	yamlContent := `
keys:
  - kif: 33
    kvc: 121
  - kif: 48
    kvc: 122
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write keys file: %v", err)
	}

	list, err := LoadAuthorizedKeys(path)
	if err != nil {
		t.Fatalf("LoadAuthorizedKeys: %v", err)
	}
	if len(list.Keys) != 2 {
		t.Fatalf("expected 2 key entries, got %d", len(list.Keys))
	}
	if list.Keys[0].KIF != 33 || list.Keys[0].KVC != 121 {
		t.Fatalf("unexpected first entry: %+v", list.Keys[0])
	}
}

func TestLoadAuthorizedKeysRejectsOutOfRangeValues(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "keys.yaml")
	yamlContent := `
keys:
  - kif: 999
    kvc: 1
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write keys file: %v", err)
	}
	if _, err := LoadAuthorizedKeys(path); err == nil {
		t.Fatalf("expected an error for an out-of-range kif")
	}
}

func TestLoadAuthorizedKeysRejectsUnknownFields(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "keys.yaml")
	yamlContent := `
keys:
  - kif: 33
    kvc: 121
    unexpected_field: true
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write keys file: %v", err)
	}
	if _, err := LoadAuthorizedKeys(path); err == nil {
		t.Fatalf("expected an error for an unknown field")
	}
}

func TestSecurityConfigApplyBuildsSecuritySetting(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "keys.yaml")
	yamlContent := `
keys:
  - kif: 33
    kvc: 121
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write keys file: %v", err)
	}

	sc := &SecurityConfig{
		MultipleSession:    true,
		ControlSamResource: "HSM/controlSam",
		AuthorizedKeysFile: path,
	}
	setting, err := sc.Apply(nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if setting == nil {
		t.Fatalf("expected a non-nil SecuritySetting")
	}
}
