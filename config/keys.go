package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"calypsocore/cryptoadapter"
	"calypsocore/transaction"
)

// AuthorizedKeyEntry is one allow-listed session key as it appears in
// an authorized-keys YAML file, grounded on sdmconfig's KnownFields
// yaml.v3 decode pattern.
type AuthorizedKeyEntry struct {
	KIF int `yaml:"kif"`
	KVC int `yaml:"kvc"`
}

// AuthorizedKeyList is the top-level shape of an authorized-keys file.
type AuthorizedKeyList struct {
	Keys []AuthorizedKeyEntry `yaml:"keys"`
}

// LoadAuthorizedKeys decodes an authorized-keys YAML file, rejecting
// unknown fields the way sdmconfig's loader does.
func LoadAuthorizedKeys(path string) (*AuthorizedKeyList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open authorized-keys file %q: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var list AuthorizedKeyList
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("parse authorized-keys yaml %q: %w", path, err)
	}
	for i, k := range list.Keys {
		if k.KIF < 0 || k.KIF > 0xFF || k.KVC < 0 || k.KVC > 0xFF {
			return nil, fmt.Errorf("authorized-keys entry %d: kif/kvc must be 0..255", i)
		}
	}
	return &list, nil
}

// Apply builds a *transaction.SecuritySetting from the decoded
// SecurityConfig, loading the authorized-keys file if one is named
// and wiring samRevocation in if the caller has one (the CLI's own
// SAM integration decides whether it does).
func (sc *SecurityConfig) Apply(samRevocation cryptoadapter.RevocationService) (*transaction.SecuritySetting, error) {
	s := transaction.NewSecuritySetting()
	if sc.PinPlainTransmission {
		s.EnablePinPlainTransmission()
	} else {
		s.SetPinModificationCipheringKey(byte(sc.PinCipheringKIF), byte(sc.PinCipheringKVC))
	}
	if sc.MultipleSession {
		s.EnableMultipleSession()
	}
	if sc.DisableReadOnOpen {
		s.DisableReadOnSessionOpening()
	}
	if sc.ControlSamResource != "" {
		s.SetControlSamResource(sc.ControlSamResource)
	}
	if samRevocation != nil {
		s.SetSamRevocationService(samRevocation)
	}
	if sc.AuthorizedKeysFile != "" {
		list, err := LoadAuthorizedKeys(sc.AuthorizedKeysFile)
		if err != nil {
			return nil, err
		}
		for _, k := range list.Keys {
			s.AddAuthorizedSessionKey(byte(k.KIF), byte(k.KVC))
		}
	}
	return s, nil
}
